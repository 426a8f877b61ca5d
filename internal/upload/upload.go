// Package upload validates incoming files and keeps them on disk, under
// generated names, for the lifetime of a single request.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docanalyzer/internal/apperr"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// File is an uploaded file that has not been persisted yet.
type File struct {
	Name string
	Size int64
	open func() (io.ReadCloser, error)
}

// FromHeader wraps a multipart file part.
func FromHeader(fh *multipart.FileHeader) *File {
	if fh == nil {
		return nil
	}
	return &File{
		Name: fh.Filename,
		Size: fh.Size,
		open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// FromBytes wraps in-memory content.
func FromBytes(name string, data []byte) *File {
	return &File{
		Name: name,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// FromPath wraps a file already on disk (used by the CLI).
func FromPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &File{
		Name: filepath.Base(path),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Extension returns the lowercased extension without the dot, or "" when
// the name has none.
func (f *File) Extension() string {
	name := SafeName(f.Name)
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// FileInfo describes a stored file.
type FileInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Modified  time.Time `json:"modified"`
	Extension string    `json:"extension"`
}

// Store owns the upload directory. No other component writes there.
type Store struct {
	dir         string
	allowed     map[string]bool
	allowedList []string
	maxSize     int64
}

// NewStore creates the upload directory if needed.
func NewStore(dir string, allowedExtensions []string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Store{
		dir:         dir,
		allowed:     allowed,
		allowedList: append([]string(nil), allowedExtensions...),
		maxSize:     maxSize,
	}, nil
}

// Dir is the upload directory.
func (s *Store) Dir() string { return s.dir }

// AllowedExtensions returns the configured extensions in configuration order.
func (s *Store) AllowedExtensions() []string {
	return append([]string(nil), s.allowedList...)
}

// DirExists reports whether the upload directory is present.
func (s *Store) DirExists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// IsAllowed reports whether name carries an allowed extension.
func (s *Store) IsAllowed(name string) bool {
	ext := (&File{Name: name}).Extension()
	return ext != "" && s.allowed[ext]
}

// Validate checks presence, extension and size. The returned error is an
// *apperr.Error of kind KindFile.
func (s *Store) Validate(f *File) error {
	if f == nil || strings.TrimSpace(f.Name) == "" {
		return apperr.File("No file provided")
	}
	if !s.IsAllowed(f.Name) {
		return apperr.File("File type not allowed. Supported types: %s", strings.Join(s.allowedList, ", "))
	}
	if f.Size > s.maxSize {
		return s.TooLarge()
	}
	if f.Size == 0 {
		return apperr.File("File is empty")
	}
	return nil
}

// TooLarge is the error reported for uploads over the size limit.
func (s *Store) TooLarge() error {
	return apperr.File("File too large. Maximum size: %.1fMB", float64(s.maxSize)/(1024*1024))
}

// Save validates f and writes it under a fresh random name that keeps only
// the original extension. It returns the stored path.
func (s *Store) Save(f *File) (string, error) {
	if err := s.Validate(f); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", apperr.WrapFile(err, "Failed to save file")
	}

	src, err := f.open()
	if err != nil {
		return "", apperr.WrapFile(err, "Failed to save file")
	}
	defer src.Close()

	filename := uuid.New().String() + "." + f.Extension()
	path := filepath.Join(s.dir, filename)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", apperr.WrapFile(err, "Failed to save file")
	}
	// Copy one byte past the limit so an understated Size is still caught.
	n, copyErr := io.Copy(dst, io.LimitReader(src, s.maxSize+1))
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return "", apperr.WrapFile(copyErr, "Failed to save file")
	}
	if n > s.maxSize {
		_ = os.Remove(path)
		return "", s.TooLarge()
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(path)
		return "", apperr.File("Failed to save file")
	}

	log.Info().Str("file", filename).Int64("size", info.Size()).Msg("File saved successfully")
	return path, nil
}

// Delete removes a stored file. It returns false, without an error, when
// the file is absent or lies outside the upload directory.
func (s *Store) Delete(path string) bool {
	if !s.contains(path) {
		log.Warn().Str("path", path).Msg("Refusing to delete file outside upload folder")
		return false
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", path).Msg("File not found for deletion")
		} else {
			log.Error().Err(err).Str("path", path).Msg("File deletion error")
		}
		return false
	}
	log.Info().Str("path", path).Msg("File deleted")
	return true
}

// CleanupOlderThan removes regular files whose modification time is older
// than maxAge and returns how many were deleted. Errors are logged, never
// returned.
func (s *Store) CleanupOlderThan(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error().Err(err).Str("dir", s.dir).Msg("Cleanup error")
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) && s.Delete(filepath.Join(s.dir, e.Name())) {
			deleted++
		}
	}
	log.Info().Int("deleted", deleted).Dur("max_age", maxAge).Msg("Cleanup completed")
	return deleted
}

// Info describes a regular file, or returns false when it does not exist.
func (s *Store) Info(path string) (*FileInfo, bool) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return nil, false
	}
	return &FileInfo{
		Filename:  st.Name(),
		Size:      st.Size(),
		Modified:  st.ModTime(),
		Extension: strings.ToLower(filepath.Ext(st.Name())),
	}, true
}

func (s *Store) contains(path string) bool {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SafeName strips any directory components from a client-supplied name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}
