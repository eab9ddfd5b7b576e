// Package render rasterizes composed memes: the template image with top and
// bottom captions, and a footer with the profile thumbnail and handle.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/benvon/situation-monitor/internal/composer"
	"github.com/benvon/situation-monitor/internal/logger"
)

// Variant selects between the on-screen and exported renderings.
type Variant int

const (
	OnScreen Variant = iota
	Export
)

func (v Variant) String() string {
	if v == Export {
		return "export"
	}
	return "on_screen"
}

const (
	CanvasWidth   = 600
	FooterHeight  = 64
	ThumbnailSize = 40

	captionSize = 44
	footerSize  = 18
	labelSize   = 13
	outline     = 2
	shadow      = 3
	captionPad  = 16

	// Caption offsets from the image edges, per variant.
	screenTopOffset    = 10
	screenBottomOffset = 10
	exportTopOffset    = screenTopOffset - 5
	exportBottomOffset = 20

	maxProfileImageBytes = 5 << 20
)

var (
	borderColor = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	footerColor = color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xff}
	mutedColor  = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
	placeholder = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}
	shadowColor = color.RGBA{A: 0x99}
)

var boldFont = mustParseFont(gobold.TTF)

func mustParseFont(data []byte) *opentype.Font {
	f, err := opentype.Parse(data)
	if err != nil {
		panic(err)
	}
	return f
}

// Options configures a Renderer.
type Options struct {
	AssetsDir  string
	SiteLabel  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Renderer draws memes from template images on disk.
type Renderer struct {
	assetsDir string
	siteLabel string
	client    *http.Client
	logger    *zap.Logger
}

// New creates a renderer.
func New(opts Options) *Renderer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		assetsDir: opts.AssetsDir,
		siteLabel: opts.SiteLabel,
		client:    client,
		logger:    log,
	}
}

// Render draws m in the given variant.
func (r *Renderer) Render(ctx context.Context, m *composer.Meme, v Variant) (*image.RGBA, error) {
	if m == nil {
		return nil, errors.New("nil meme")
	}
	tpl, err := r.loadTemplate(m.Image)
	if err != nil {
		return nil, err
	}

	b := tpl.Bounds()
	imgH := b.Dy() * CanvasWidth / b.Dx()
	if imgH < 1 {
		imgH = 1
	}
	canvas := image.NewRGBA(image.Rect(0, 0, CanvasWidth, imgH+FooterHeight))
	draw.CatmullRom.Scale(canvas, image.Rect(0, 0, CanvasWidth, imgH), tpl, b, draw.Src, nil)

	captions, err := newFace(captionSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = captions.Close() }()

	topOffset, bottomOffset := screenTopOffset, screenBottomOffset
	if v == Export {
		topOffset, bottomOffset = exportTopOffset, exportBottomOffset
	}
	drawCaption(canvas, captions, m.TopText, topOffset, imgH, true, v == Export)
	drawCaption(canvas, captions, m.BottomText, bottomOffset, imgH, false, v == Export)

	if err := r.drawFooter(ctx, canvas, m, imgH); err != nil {
		return nil, err
	}

	if v == OnScreen {
		drawBorder(canvas, imgH)
	}
	return canvas, nil
}

// ExportPNG renders the export variant and writes it as PNG.
func (r *Renderer) ExportPNG(ctx context.Context, w io.Writer, m *composer.Meme) error {
	img, err := r.Render(ctx, m, Export)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode meme: %w", err)
	}
	return nil
}

// Check decodes every catalog template image from the assets directory and
// reports all that are missing or unreadable.
func (r *Renderer) Check() error {
	var errs []error
	for _, tpl := range composer.Templates() {
		if _, err := r.loadTemplate(tpl.Image); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("template assets in %q are incomplete: %w", r.assetsDir, err)
	}
	return nil
}

func (r *Renderer) loadTemplate(name string) (image.Image, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid template image name %q", name)
	}
	f, err := os.Open(filepath.Join(r.assetsDir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open template image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template image %s: %w", name, err)
	}
	return img, nil
}

// fetchProfileImage loads the thumbnail source; failures are logged and
// reported as nil so the footer falls back to a placeholder.
func (r *Renderer) fetchProfileImage(ctx context.Context, url string) image.Image {
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.Debug("profile_image_fetch_failed", zap.String("url", logger.SanitizeString(url, logger.MaxPathLength)), zap.Error(err))
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("profile_image_fetch_failed", zap.String("url", logger.SanitizeString(url, logger.MaxPathLength)), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("profile_image_fetch_failed",
			zap.String("url", logger.SanitizeString(url, logger.MaxPathLength)),
			zap.Int("status", resp.StatusCode))
		return nil
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxProfileImageBytes))
	if err != nil {
		r.logger.Debug("profile_image_decode_failed", zap.String("url", logger.SanitizeString(url, logger.MaxPathLength)), zap.Error(err))
		return nil
	}
	return img
}

func (r *Renderer) drawFooter(ctx context.Context, dst *image.RGBA, m *composer.Meme, top int) error {
	bar := image.Rect(0, top, CanvasWidth, top+FooterHeight)
	draw.Draw(dst, bar, image.NewUniform(footerColor), image.Point{}, draw.Src)

	thumbY := top + (FooterHeight-ThumbnailSize)/2
	thumbRect := image.Rect(captionPad, thumbY, captionPad+ThumbnailSize, thumbY+ThumbnailSize)
	mask := &circle{r: ThumbnailSize / 2}
	if src := r.fetchProfileImage(ctx, m.ProfileImageURL); src != nil {
		thumb := image.NewRGBA(image.Rect(0, 0, ThumbnailSize, ThumbnailSize))
		draw.CatmullRom.Scale(thumb, thumb.Bounds(), src, src.Bounds(), draw.Src, nil)
		draw.DrawMask(dst, thumbRect, thumb, image.Point{}, mask, image.Point{}, draw.Over)
	} else {
		draw.DrawMask(dst, thumbRect, image.NewUniform(placeholder), image.Point{}, mask, image.Point{}, draw.Over)
	}

	handleFace, err := newFace(footerSize)
	if err != nil {
		return err
	}
	defer func() { _ = handleFace.Close() }()
	labelFace, err := newFace(labelSize)
	if err != nil {
		return err
	}
	defer func() { _ = labelFace.Close() }()

	baseline := top + FooterHeight/2 + footerSize/3
	handle := "@" + strings.TrimPrefix(strings.TrimSpace(m.Handle), "@")
	drawText(dst, handleFace, handle, captionPad+ThumbnailSize+12, baseline, color.White)

	if r.siteLabel != "" {
		w := font.MeasureString(labelFace, r.siteLabel).Ceil()
		drawText(dst, labelFace, r.siteLabel, CanvasWidth-captionPad-w, baseline, mutedColor)
	}
	return nil
}

func drawBorder(dst *image.RGBA, imgH int) {
	for x := 0; x < CanvasWidth; x++ {
		dst.Set(x, 0, borderColor)
	}
	for y := 0; y < imgH; y++ {
		dst.Set(0, y, borderColor)
		dst.Set(CanvasWidth-1, y, borderColor)
	}
}

func newFace(size float64) (font.Face, error) {
	face, err := opentype.NewFace(boldFont, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("failed to load font face: %w", err)
	}
	return face, nil
}

// drawCaption wraps text to the canvas width and draws it anchored to the top
// or bottom edge of the image area with a black outline.
func drawCaption(dst *image.RGBA, face font.Face, text string, offset, imgH int, top, withShadow bool) {
	lines := wrap(face, text, CanvasWidth-2*captionPad)
	if len(lines) == 0 {
		return
	}
	m := face.Metrics()
	lineH := m.Height.Ceil()
	ascent := m.Ascent.Ceil()

	y := offset + ascent
	if !top {
		y = imgH - offset - m.Descent.Ceil() - (len(lines)-1)*lineH
	}
	for i, line := range lines {
		w := font.MeasureString(face, line).Ceil()
		x := (CanvasWidth - w) / 2
		baseline := y + i*lineH
		if withShadow {
			drawText(dst, face, line, x+shadow, baseline+shadow, shadowColor)
		}
		for dx := -outline; dx <= outline; dx++ {
			for dy := -outline; dy <= outline; dy++ {
				if dx != 0 || dy != 0 {
					drawText(dst, face, line, x+dx, baseline+dy, color.Black)
				}
			}
		}
		drawText(dst, face, line, x, baseline, color.White)
	}
}

func drawText(dst *image.RGBA, face font.Face, text string, x, baseline int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}

// wrap breaks text into lines no wider than maxWidth. A single word wider
// than maxWidth gets its own line.
func wrap(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	var lines []string
	var cur string
	for _, w := range words {
		next := w
		if cur != "" {
			next = cur + " " + w
		}
		if cur != "" && font.MeasureString(face, next).Ceil() > maxWidth {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur = next
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// circle is an alpha mask for a centered disc of radius r.
type circle struct {
	r int
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle { return image.Rect(0, 0, 2*c.r, 2*c.r) }

func (c *circle) At(x, y int) color.Color {
	dx, dy := float64(x-c.r)+0.5, float64(y-c.r)+0.5
	if dx*dx+dy*dy <= float64(c.r*c.r) {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
