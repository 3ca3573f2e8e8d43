package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client the file store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// FileStore holds uploaded evidence and deliverable attachments in S3 and
// verifies references before they are accepted as dispute evidence.
type FileStore struct {
	client    s3API
	presigner *s3.PresignClient
	bucket    string
}

func NewFileStore(client *s3.Client, bucket string) *FileStore {
	return &FileStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// Upload stores one object.
func (f *FileStore) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download streams one object. The caller closes the reader.
func (f *FileStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes one object.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Validate confirms every referenced object exists and was not flagged by
// scanning. The scan verdict is written as object metadata by the upload
// pipeline; an explicit "infected" verdict rejects the reference.
func (f *FileStore) Validate(ctx context.Context, fileRefs []string) error {
	for _, ref := range fileRefs {
		head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(ref),
		})
		if err != nil {
			return fmt.Errorf("file reference %s not found: %w", ref, err)
		}
		if verdict, ok := head.Metadata["scan-status"]; ok && verdict == "infected" {
			return fmt.Errorf("file reference %s failed the malware scan", ref)
		}
	}
	return nil
}

// GetPresignedURL returns a time-limited download link.
func (f *FileStore) GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	req, err := f.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
