package handlers

import (
	"fmt"
	"net/http"
)

// Kinds of failed uploads, as reported to clients
const (
	KindNoFile        = "no-file-provided"
	KindTooLarge      = "body-too-large"
	KindNameCollision = "name-collision"
	KindWriteFailed   = "write-failed"
)

// UploadError is the failure half of an upload result
type UploadError struct {
	Kind    string
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func errNoFile(field string, err error) *UploadError {
	return &UploadError{
		Kind:    KindNoFile,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("no file provided in field %q", field),
		Err:     err,
	}
}

func errTooLarge(err error) *UploadError {
	return &UploadError{
		Kind:    KindTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: "file exceeds maximum allowed size",
		Err:     err,
	}
}

func errNameCollision(err error) *UploadError {
	return &UploadError{
		Kind:    KindNameCollision,
		Status:  http.StatusConflict,
		Message: "stored name already in use, retry the upload",
		Err:     err,
	}
}

func errWriteFailed(err error) *UploadError {
	return &UploadError{
		Kind:    KindWriteFailed,
		Status:  http.StatusInternalServerError,
		Message: "failed to store file",
		Err:     err,
	}
}
