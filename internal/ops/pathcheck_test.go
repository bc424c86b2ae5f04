package ops

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/hpungsan/storysync/internal/errors"
)

func TestValidatePhotoPath_TraversalRejected(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../photo.jpg"},
		{"deep traversal", "../../etc/photo.jpg"},
		{"mid-path traversal", "/tmp/../etc/photo.jpg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePhotoPath(tc.path)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePhotoPath_ExtensionRequired(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"photo", "photo.txt", "photo.jsonl"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := ValidatePhotoPath(path); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got: %v", name, err)
		}
	}
}

func TestValidatePhotoPath_Missing(t *testing.T) {
	err := ValidatePhotoPath(filepath.Join(t.TempDir(), "missing.jpg"))
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidatePhotoPath_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jpg")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", MaxPhotoBytes+1)), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePhotoPath(path); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePhotoPath_SymlinkRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.jpg")
	if err := os.WriteFile(target, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.jpg")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePhotoPath(link); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestReadPhoto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Sunset.JPG")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}

	photo, err := ReadPhoto(path)
	if err != nil {
		t.Fatalf("ReadPhoto failed: %v", err)
	}
	if photo.Filename != "Sunset.JPG" {
		t.Errorf("Filename = %q", photo.Filename)
	}
	if photo.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", photo.ContentType)
	}
	if photo.Size != len(photo.Data) || photo.Size != 8 {
		t.Errorf("Size = %d, len(Data) = %d", photo.Size, len(photo.Data))
	}
}
