package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const thumbWidth = 300

var (
	ErrTooLarge        = errors.New("image is too large")
	ErrUnsupportedType = errors.New("only jpeg, png and gif images are accepted")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Stored describes a saved image. Paths are relative to the store root.
type Stored struct {
	Path          string
	ThumbnailPath string
}

// Store writes uploaded images and their thumbnails under one directory.
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

func (s *Store) Dir() string {
	return s.dir
}

// Save validates and stores the image read from r under category
// ("payments", "portfolio"). A thumbnail 300px wide is written next to it.
func (s *Store) Save(r io.Reader, category string) (*Stored, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return nil, ErrUnsupportedType
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUnsupportedType
	}

	name := uuid.NewString()
	rel := filepath.Join(category, name+ext)
	thumbRel := filepath.Join(category, "thumb", name+".jpg")

	if err := os.MkdirAll(filepath.Join(s.dir, category, "thumb"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, rel), data, 0o644); err != nil {
		return nil, fmt.Errorf("save original image: %w", err)
	}

	thumb := imaging.Resize(img, thumbWidth, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(s.dir, thumbRel)); err != nil {
		os.Remove(filepath.Join(s.dir, rel))
		return nil, fmt.Errorf("save thumbnail: %w", err)
	}

	return &Stored{Path: filepath.ToSlash(rel), ThumbnailPath: filepath.ToSlash(thumbRel)}, nil
}

// Remove deletes a stored image and its thumbnail, ignoring missing files.
func (s *Store) Remove(st *Stored) {
	if st == nil {
		return
	}
	for _, p := range []string{st.Path, st.ThumbnailPath} {
		if p != "" {
			_ = os.Remove(filepath.Join(s.dir, filepath.FromSlash(p)))
		}
	}
}
