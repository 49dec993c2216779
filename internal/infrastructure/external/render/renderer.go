// Package render draws certificates and offer letters onto image templates.
package render

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

// Field positions a text value on the template, top-left anchored.
type Field struct {
	X, Y float64
	Size float64
}

// Layout places the three printed values on a template.
type Layout struct {
	Name    Field
	Program Field
	Date    Field
}

// CertificateLayout matches the completion certificate template.
var CertificateLayout = Layout{
	Name:    Field{X: 500, Y: 350, Size: 50},
	Program: Field{X: 899, Y: 443, Size: 18},
	Date:    Field{X: 350, Y: 805, Size: 20},
}

// OfferLayout matches the offer-letter template.
var OfferLayout = Layout{
	Name:    Field{X: 78, Y: 188, Size: 10},
	Program: Field{X: 278, Y: 222, Size: 10},
	Date:    Field{X: 50, Y: 55, Size: 10},
}

// Config configures the renderer.
type Config struct {
	CertificateTemplate string
	OfferTemplate       string

	// FontPath is a TTF file; empty or unreadable falls back to a built-in bitmap face.
	FontPath string

	// OutputDir receives one uniquely named PNG per render.
	OutputDir string

	Clock  timeutil.Clock
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// RENDERER
// ══════════════════════════════════════════════════════════════════════════════

// ImageRenderer implements notification.Renderer with gg.
type ImageRenderer struct {
	cfg    Config
	font   *truetype.Font
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewImageRenderer loads the font and prepares the output directory.
func NewImageRenderer(cfg Config) (*ImageRenderer, error) {
	r := &ImageRenderer{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: logger.OrDefault(cfg.Logger).With(logger.Component("renderer")),
	}
	if r.clock == nil {
		r.clock = timeutil.NewSystemClock(nil)
	}
	if cfg.OutputDir == "" {
		r.cfg.OutputDir = os.TempDir()
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create render output dir: %w", err)
	}

	if cfg.FontPath != "" {
		f, err := loadFont(cfg.FontPath)
		if err != nil {
			r.logger.Warn("font not loaded, using bitmap face", slog.String("path", cfg.FontPath), logger.Err(err))
		} else {
			r.font = f
		}
	}
	return r, nil
}

func loadFont(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return f, nil
}

// face builds a new face per call; truetype faces keep an unsynchronized glyph cache.
func (r *ImageRenderer) face(size float64) font.Face {
	if r.font == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(r.font, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

func (r *ImageRenderer) template(kind notification.ArtifactKind) (string, Layout, error) {
	switch kind {
	case notification.ArtifactCertificate:
		return r.cfg.CertificateTemplate, CertificateLayout, nil
	case notification.ArtifactOfferLetter:
		return r.cfg.OfferTemplate, OfferLayout, nil
	default:
		return "", Layout{}, fmt.Errorf("%w: unknown artifact %q", shared.ErrRenderFailed, kind)
	}
}

// Render draws name, program and today's date onto the template for kind.
func (r *ImageRenderer) Render(ctx context.Context, kind notification.ArtifactKind, name, program string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, layout, err := r.template(kind)
	if err != nil {
		return "", err
	}

	img, err := gg.LoadImage(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: load template %s: %v", shared.ErrRenderFailed, tmpl, err)
	}

	dc := gg.NewContextForImage(img)
	dc.SetColor(color.Black)

	issued := timeutil.FormatIssueDate(r.clock.Now())
	for _, item := range []struct {
		text  string
		field Field
	}{
		{program, layout.Program},
		{name, layout.Name},
		{issued, layout.Date},
	} {
		dc.SetFontFace(r.face(item.field.Size))
		dc.DrawStringAnchored(item.text, item.field.X, item.field.Y, 0, 1)
	}

	out := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%s-%s.png", kind, uuid.NewString()))
	if err := dc.SavePNG(out); err != nil {
		return "", fmt.Errorf("%w: save %s: %v", shared.ErrRenderFailed, out, err)
	}

	r.logger.Debug("artifact rendered", slog.String("artifact", string(kind)), slog.String("path", out))
	return out, nil
}

var _ notification.Renderer = (*ImageRenderer)(nil)
