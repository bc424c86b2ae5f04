package errors

import (
	"fmt"
	"testing"
)

func TestEdgeError_Error(t *testing.T) {
	err := &EdgeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "story not found",
	}

	expected := "NOT_FOUND: story not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("description is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "description is required" {
		t.Errorf("Message = %q, want %q", err.Message, "description is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("local-01J")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "local-01J" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "local-01J")
	}
}

func TestNewFileNotFound(t *testing.T) {
	err := NewFileNotFound("/tmp/photo.jpg")

	if err.Code != ErrFileNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrFileNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["path"] != "/tmp/photo.jpg" {
		t.Errorf("Details[path] = %v, want /tmp/photo.jpg", err.Details["path"])
	}
}

func TestNewOffline(t *testing.T) {
	err := NewOffline("Network error and no cached data available")

	if err.Code != ErrOffline {
		t.Errorf("Code = %q, want %q", err.Code, ErrOffline)
	}
	if err.Status != 408 {
		t.Errorf("Status = %d, want 408", err.Status)
	}
}

func TestNewNoCredential(t *testing.T) {
	err := NewNoCredential("no connected clients")

	if err.Code != ErrNoCredential {
		t.Errorf("Code = %q, want %q", err.Code, ErrNoCredential)
	}
	if err.Status != 401 {
		t.Errorf("Status = %d, want 401", err.Status)
	}
	if err.Message != "no credential available: no connected clients" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewStoreFailed(t *testing.T) {
	err := NewStoreFailed("insert story", fmt.Errorf("disk full"))

	if err.Code != ErrStoreFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrStoreFailed)
	}
	if err.Message != "insert story: disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "insert story: disk full")
	}
	if err.Details["op"] != "insert story" {
		t.Errorf("Details[op] = %v, want %q", err.Details["op"], "insert story")
	}
}

func TestNewUpstream(t *testing.T) {
	err := NewUpstream(503, "story api unavailable")

	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Details["upstream_status"] != 503 {
		t.Errorf("Details[upstream_status] = %v, want 503", err.Details["upstream_status"])
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewNotFound("x"), ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewNotFound("x"), ErrConflict) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if Is(fmt.Errorf("plain error"), ErrNotFound) {
			t.Error("Is() = true, want false for plain error")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("reconcile: %w", NewNoCredential("timeout"))
		if !Is(wrapped, ErrNoCredential) {
			t.Error("Is() = false, want true for wrapped EdgeError")
		}
	})
}
