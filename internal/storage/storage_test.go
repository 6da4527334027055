package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir, "https://cdn.example.com/photos")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	url, err := s.Put(context.Background(), "tow1/point1/v1-0.jpg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://cdn.example.com/photos/tow1/point1/v1-0.jpg" {
		t.Fatalf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tow1", "point1", "v1-0.jpg"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("content = %q", data)
	}
}

func TestLocalPutRejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if _, err := s.Put(context.Background(), "../escape.jpg", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for traversal key")
	}
}
