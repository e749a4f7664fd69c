package storage

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MirrorPrefix is prepended to stored names to form object keys
const MirrorPrefix = "uploads/"

// MinioClient mirrors stored uploads into an object storage bucket
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes a new MinIO client
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Printf("Creating bucket: %s", bucketName)
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Bucket %s created successfully", bucketName)
	}

	return mc, nil
}

// MirrorKey returns the object key a stored name is mirrored under
func MirrorKey(storedName string) string {
	return MirrorPrefix + storedName
}

// MirrorFile uploads the file at path under objectKey
func (mc *MinioClient) MirrorFile(ctx context.Context, objectKey, path string) error {
	ctx, span := tracer.Start(ctx, "minio.mirror_file",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	file, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to stat stored file: %w", err)
	}

	_, err = mc.client.PutObject(ctx, mc.bucketName, objectKey, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(path),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mirror file: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("size_bytes", info.Size()),
		attribute.Bool("upload_success", true),
	)
	return nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
