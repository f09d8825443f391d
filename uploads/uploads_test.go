package uploads

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSaveWritesImageAndThumbnail(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 1<<20)

	st, err := store.Save(bytes.NewReader(pngBytes(t, 600, 400)), "payments")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(st.Path, "payments/") || !strings.HasSuffix(st.Path, ".png") {
		t.Errorf("unexpected path %q", st.Path)
	}

	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(st.ThumbnailPath)))
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 300 || cfg.Height != 200 {
		t.Errorf("thumbnail is %dx%d, want 300x200", cfg.Width, cfg.Height)
	}

	store.Remove(st)
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(st.Path))); !os.IsNotExist(err) {
		t.Errorf("original should be removed, stat err = %v", err)
	}
}

func TestSaveRejects(t *testing.T) {
	store := NewStore(t.TempDir(), 1024)

	if _, err := store.Save(strings.NewReader("just some text, not an image"), "payments"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("text upload: err = %v, want ErrUnsupportedType", err)
	}
	if _, err := store.Save(bytes.NewReader(make([]byte, 2048)), "payments"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("large upload: err = %v, want ErrTooLarge", err)
	}
}
