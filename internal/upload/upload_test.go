package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveWritesFileAndReturnsURL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewStore(dir, "/uploads/")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	res, err := store.Save("report.pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if res.Filename != "report.pdf" {
		t.Errorf("Expected original filename, got %q", res.Filename)
	}
	if !strings.HasPrefix(res.FileURL, "/uploads/") || !strings.HasSuffix(res.FileURL, "-report.pdf") {
		t.Errorf("Unexpected file URL %q", res.FileURL)
	}

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(res.FileURL, "/uploads/")))
	if err != nil {
		t.Fatalf("Uploaded file not found: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("Unexpected file contents %q", data)
	}
}

func TestSaveKeepsDistinctFilesForSameName(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}

	a, err := store.Save("a.png", strings.NewReader("1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Save("a.png", strings.NewReader("2"))
	if err != nil {
		t.Fatal(err)
	}
	if a.FileURL == b.FileURL {
		t.Errorf("Expected distinct URLs, both were %q", a.FileURL)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":          "photo.jpg",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\cv.doc`: "cv.doc",
		".hidden":            "hidden",
		"":                   "file",
		"/":                  "file",
		"..":                 "file",
		"tab\tname.txt":      "tabname.txt",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
