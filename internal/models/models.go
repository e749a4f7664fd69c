package models

import "time"

// Upload represents one accepted upload stored in the upload directory
type Upload struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Extension    string    `json:"extension"`
	StoredName   string    `json:"stored_name"`
	StoredPath   string    `json:"-"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	MirrorKey    string    `json:"mirror_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadEvent is published after an upload has been stored
type UploadEvent struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	MirrorKey    string    `json:"mirror_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event builds the event announcing u
func (u *Upload) Event() UploadEvent {
	return UploadEvent{
		ID:           u.ID,
		OriginalName: u.OriginalName,
		StoredName:   u.StoredName,
		Size:         u.Size,
		SHA256:       u.SHA256,
		MirrorKey:    u.MirrorKey,
		CreatedAt:    u.CreatedAt,
	}
}
