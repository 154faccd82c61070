package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// ErrInvalidGCSURI is returned for gs:// locations without a bucket or object.
var ErrInvalidGCSURI = errors.New("invalid GCS URI")

// Fetcher reads SMS exports from the local filesystem or Google Cloud Storage.
// It assumes Application Default Credentials are configured for gs:// locations.
type Fetcher struct {
	readFile func(name string) ([]byte, error)
	fetchGCS func(ctx context.Context, bucket, object string) ([]byte, error)
}

// NewFetcher returns a Fetcher backed by os.ReadFile and the GCS client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		readFile: os.ReadFile,
		fetchGCS: fetchFromGCS,
	}
}

// IsGCS reports whether location points at Google Cloud Storage.
func IsGCS(location string) bool {
	return strings.HasPrefix(location, gcsScheme)
}

// Fetch returns the bytes stored at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !IsGCS(location) {
		data, err := f.readFile(location)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", location, err)
		}
		return data, nil
	}

	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	return f.fetchGCS(ctx, bucket, object)
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseGCSURI(uri string) (string, string, error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidGCSURI, uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidGCSURI, uri)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last path element of a local path or GCS URI.
// e.g., "gs://bucket/exports/sms.xml" → "sms.xml"
func Filename(location string) string {
	if IsGCS(location) {
		if _, object, err := ParseGCSURI(location); err == nil {
			return path.Base(object)
		}
		return strings.TrimPrefix(location, gcsScheme)
	}
	return path.Base(location)
}

func fetchFromGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// Upload writes data to the given gs:// URI.
func Upload(ctx context.Context, gcsURI string, r io.Reader, contentType string) error {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}
