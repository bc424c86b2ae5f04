package ops

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/story"
)

// MaxPhotoBytes is the largest photo the story API accepts.
const MaxPhotoBytes = 1 << 20

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ValidatePhotoPath checks a photo path before it is attached to a story:
// no ".." components, an image extension, not a symlink, an existing regular file no
// larger than MaxPhotoBytes.
func ValidatePhotoPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("photo path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleaned))
	if !photoExtensions[ext] {
		return errors.NewInvalidRequest(fmt.Sprintf("unsupported photo extension %q", ext))
	}

	info, err := os.Lstat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if !info.Mode().IsRegular() {
		return errors.NewInvalidRequest("photo must be a regular file")
	}
	if info.Size() > MaxPhotoBytes {
		return errors.NewInvalidRequest(fmt.Sprintf("photo exceeds %d bytes", MaxPhotoBytes))
	}
	return nil
}

// ReadPhoto validates path and loads it as a story photo.
func ReadPhoto(path string) (*story.Photo, error) {
	if err := ValidatePhotoPath(path); err != nil {
		return nil, err
	}
	f, err := openFileNoFollowRead(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxPhotoBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read photo: %w", err))
	}
	if len(data) > MaxPhotoBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("photo exceeds %d bytes", MaxPhotoBytes))
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &story.Photo{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Size:        len(data),
		Data:        data,
	}, nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
