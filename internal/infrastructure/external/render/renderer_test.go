package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

func writeTemplate(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	path := filepath.Join(dir, name)
	require.NoError(t, dc.SavePNG(path))
	return path
}

func newTestRenderer(t *testing.T) *ImageRenderer {
	t.Helper()
	dir := t.TempDir()
	r, err := NewImageRenderer(Config{
		CertificateTemplate: writeTemplate(t, dir, "certificate.png", 1200, 900),
		OfferTemplate:       writeTemplate(t, dir, "offer.png", 600, 400),
		OutputDir:           filepath.Join(dir, "out"),
		Clock:               timeutil.NewFakeClock(time.Date(2025, 3, 29, 10, 0, 0, 0, time.UTC)),
		Logger:              logger.Discard(),
	})
	require.NoError(t, err)
	return r
}

func TestImageRenderer_RendersUniqueFiles(t *testing.T) {
	r := newTestRenderer(t)
	ctx := context.Background()

	a, err := r.Render(ctx, notification.ArtifactCertificate, "Asha Rao", "Web Development")
	require.NoError(t, err)
	b, err := r.Render(ctx, notification.ArtifactCertificate, "Asha Rao", "Web Development")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	f, err := os.Open(a)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 900, cfg.Height)
}

func TestImageRenderer_DrawsText(t *testing.T) {
	r := newTestRenderer(t)

	path, err := r.Render(context.Background(), notification.ArtifactOfferLetter, "Asha Rao", "Data Science")
	require.NoError(t, err)

	img, err := gg.LoadImage(path)
	require.NoError(t, err)

	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
				dark++
			}
		}
	}
	assert.Positive(t, dark, "text pixels drawn on the template")
}

func TestImageRenderer_Concurrent(t *testing.T) {
	r := newTestRenderer(t)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(context.Background(), notification.ArtifactCertificate, "Student", "Python Programming")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestImageRenderer_MissingTemplate(t *testing.T) {
	r, err := NewImageRenderer(Config{
		CertificateTemplate: filepath.Join(t.TempDir(), "missing.png"),
		OutputDir:           t.TempDir(),
		Logger:              logger.Discard(),
	})
	require.NoError(t, err)

	_, err = r.Render(context.Background(), notification.ArtifactCertificate, "A", "B")
	assert.ErrorIs(t, err, shared.ErrRenderFailed)

	_, err = r.Render(context.Background(), notification.ArtifactKind("poster"), "A", "B")
	assert.ErrorIs(t, err, shared.ErrRenderFailed)
}

func TestImageRenderer_BadFontFallsBack(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.ttf")
	require.NoError(t, os.WriteFile(bad, []byte("not a font"), 0o644))

	r, err := NewImageRenderer(Config{
		CertificateTemplate: writeTemplate(t, dir, "certificate.png", 1200, 900),
		FontPath:            bad,
		OutputDir:           dir,
		Logger:              logger.Discard(),
	})
	require.NoError(t, err)

	_, err = r.Render(context.Background(), notification.ArtifactCertificate, "A", "B")
	assert.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// CachedRenderer
// ─────────────────────────────────────────────────────────────────────────────

type memoryStore struct {
	mu      sync.Mutex
	entries map[notification.ArtifactRef]string
	failGet bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[notification.ArtifactRef]string{}}
}

func (m *memoryStore) Lookup(_ context.Context, ref notification.ArtifactRef) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("redis down")
	}
	p, ok := m.entries[ref]
	return p, ok, nil
}

func (m *memoryStore) Store(_ context.Context, ref notification.ArtifactRef, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ref] = path
	return nil
}

func (m *memoryStore) Forget(_ context.Context, ref notification.ArtifactRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ref)
	return nil
}

func TestCachedRenderer(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	inner := notification.RendererFunc(func(_ context.Context, kind notification.ArtifactKind, name, program string) (string, error) {
		calls++
		p := filepath.Join(dir, name+"-"+string(rune('a'+calls))+".png")
		return p, os.WriteFile(p, []byte("png"), 0o644)
	})

	store := newMemoryStore()
	clock := timeutil.NewFakeClock(time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC))
	c := NewCachedRenderer(inner, store, clock, logger.Discard())
	ctx := context.Background()

	first, err := c.Render(ctx, notification.ArtifactCertificate, "asha", "Web Development")
	require.NoError(t, err)
	second, err := c.Render(ctx, notification.ArtifactCertificate, "asha", "Web Development")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	require.NoError(t, os.Remove(first))
	third, err := c.Render(ctx, notification.ArtifactCertificate, "asha", "Web Development")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, calls)

	other, err := c.Render(ctx, notification.ArtifactCertificate, "Asha", "Web Development")
	require.NoError(t, err)
	assert.NotEqual(t, third, other, "spelling is part of the key")
	assert.Equal(t, 3, calls)

	clock.Advance(20 * time.Minute)
	nextDay, err := c.Render(ctx, notification.ArtifactCertificate, "asha", "Web Development")
	require.NoError(t, err)
	assert.NotEqual(t, third, nextDay, "issue date is part of the key")
	assert.Equal(t, 4, calls)

	store.failGet = true
	_, err = c.Render(ctx, notification.ArtifactCertificate, "asha", "Web Development")
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}
