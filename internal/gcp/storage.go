package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable, falling back on absence or parse failure.
func GetEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring malformed integer environment variable", "key", key, "value", value)
	}
	return fallback
}

// GetEnvDuration reads a duration environment variable such as "90s".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Ignoring malformed duration environment variable", "key", key, "value", value)
	}
	return fallback
}

// ErrObjectExists is returned by Bucket.Save when ifAbsent is set and the
// object is already present.
var ErrObjectExists = errors.New("object already exists")

// Bucket reads and writes objects in one Cloud Storage bucket.
type Bucket struct {
	name   string
	handle *storage.BucketHandle
}

// NewBucket wraps the named bucket of client.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{name: name, handle: client.Bucket(name)}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// URI returns the gs:// URI of an object in the bucket.
func (b *Bucket) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, objectName)
}

// Save streams r into objectName and returns its gs:// URI. With ifAbsent the
// write is conditional on the object not existing yet.
func (b *Bucket) Save(ctx context.Context, objectName, contentType string, r io.Reader, ifAbsent bool) (string, error) {
	obj := b.handle.Object(objectName)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("%s: %w", objectName, ErrObjectExists)
		}
		return "", fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("%s: %w", objectName, ErrObjectExists)
		}
		return "", fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}
	return b.URI(objectName), nil
}

// Read returns the full content of objectName.
func (b *Bucket) Read(ctx context.Context, objectName string) ([]byte, error) {
	reader, err := b.handle.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", b.URI(objectName), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", b.URI(objectName), err)
	}
	return data, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// IsNotExist reports whether err means the object is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}
