package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://exports/sms/modified_sms_v2.xml", "exports", "sms/modified_sms_v2.xml", false},
		{"gs://bucket/file.xml", "bucket", "file.xml", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"gs:///file.xml", "", "", true},
		{"data/raw/sms.xml", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGCSURI) {
					t.Errorf("Expected ErrInvalidGCSURI, got %v", err)
				}
				return
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI() = (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gs://bucket/folder/sms.xml", "sms.xml"},
		{"data/raw/modified_sms_v2.xml", "modified_sms_v2.xml"},
		{"sms.xml", "sms.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Filename(tt.in); got != tt.want {
				t.Errorf("Filename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sms.xml")
	if err := os.WriteFile(path, []byte("<smses/>"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := NewFetcher().Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "<smses/>" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestFetcher_MissingFile(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestFetcher_GCSDispatch(t *testing.T) {
	var gotBucket, gotObject string
	f := &Fetcher{
		readFile: func(string) ([]byte, error) {
			t.Fatal("readFile should not be called for gs:// locations")
			return nil, nil
		},
		fetchGCS: func(ctx context.Context, bucket, object string) ([]byte, error) {
			gotBucket, gotObject = bucket, object
			return []byte("<smses/>"), nil
		},
	}

	if _, err := f.Fetch(context.Background(), "gs://momo/raw/sms.xml"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotBucket != "momo" || gotObject != "raw/sms.xml" {
		t.Errorf("fetchGCS called with (%q, %q)", gotBucket, gotObject)
	}

	if _, err := f.Fetch(context.Background(), "gs://momo"); !errors.Is(err, ErrInvalidGCSURI) {
		t.Errorf("Expected ErrInvalidGCSURI, got %v", err)
	}
}
