package story

import (
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// MaxFormMemory is the in-memory budget for multipart parsing; larger parts spill to temp files.
const MaxFormMemory = 10 << 20

// ParseForm extracts story fields from a multipart or urlencoded submission.
// The title is read from "name", falling back to "title". Unparseable or non-finite
// coordinates become 0. Multipart temp files are removed before returning.
func ParseForm(r *http.Request) (Fields, error) {
	var f Fields

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxFormMemory); err != nil {
			return f, fmt.Errorf("parse multipart form: %w", err)
		}
		defer r.MultipartForm.RemoveAll()
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return f, fmt.Errorf("parse form: %w", err)
		}
	default:
		return f, fmt.Errorf("unsupported content type %q", mediaType)
	}

	f.Name = r.PostFormValue("name")
	if f.Name == "" {
		f.Name = r.PostFormValue("title")
	}
	f.Description = r.PostFormValue("description")
	f.Lat = parseCoord(r.PostFormValue("lat"))
	f.Lon = parseCoord(r.PostFormValue("lon"))

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["photo"]; len(files) > 0 {
			fh := files[0]
			file, err := fh.Open()
			if err != nil {
				return f, fmt.Errorf("open photo: %w", err)
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return f, fmt.Errorf("read photo: %w", err)
			}
			ct := fh.Header.Get("Content-Type")
			if ct == "" {
				ct = http.DetectContentType(data)
			}
			f.Photo = &Photo{
				Filename:    fh.Filename,
				ContentType: ct,
				Size:        len(data),
				Data:        data,
			}
		}
	}

	return f, nil
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
