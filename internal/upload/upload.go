// Package upload stores files shared in chat under a statically served
// directory and returns the URL clients put into sendMedia events.
package upload

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the JSON answer of a successful upload.
type Result struct {
	FileURL  string `json:"fileUrl"`
	Filename string `json:"filename"`
}

// Store writes uploads into Dir and addresses them below URLPrefix.
type Store struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// NewStore creates dir if needed and returns a Store serving files under
// urlPrefix (for example "/uploads").
func NewStore(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save copies r into a new file named after the upload time, a random tag
// and the sanitized original name.
func (s *Store) Save(original string, r io.Reader) (Result, error) {
	tag := uuid.New()
	name := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), hex.EncodeToString(tag[:4]), sanitizeName(original))

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return Result{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return Result{}, fmt.Errorf("failed to finish upload: %w", err)
	}

	return Result{
		FileURL:  path.Join(s.urlPrefix, url.PathEscape(name)),
		Filename: original,
	}, nil
}

// sanitizeName keeps only the final path element of a client-supplied name.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.TrimLeft(name, ".")
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "file"
	}
	return name
}
