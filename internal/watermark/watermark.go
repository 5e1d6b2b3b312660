package watermark

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	// Padding is the distance of the label box from the bottom-right corner.
	Padding = 20
	// boxAlpha is the opacity of the dark rectangle behind the label.
	boxAlpha = 120
)

// Stamper draws a store label onto product images.
type Stamper struct {
	minFontPx int
	opacity   uint8
	log       *slog.Logger
}

// New creates a Stamper. minFontPx is the smallest label height in pixels and
// opacity the label alpha.
func New(minFontPx, opacity int, log *slog.Logger) *Stamper {
	if minFontPx <= 0 {
		minFontPx = 24
	}
	if opacity < 0 || opacity > 255 {
		opacity = 180
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stamper{minFontPx: minFontPx, opacity: uint8(opacity), log: log.With("component", "watermark")}
}

// Label builds the watermark text for a store.
func Label(storeName, botUsername string) string {
	return fmt.Sprintf("%s x @%s", storeName, strings.TrimPrefix(botUsername, "@"))
}

// StampedPath derives the output path for a stamped copy: a.jpg -> a_watermarked.jpg.
func StampedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_watermarked" + ext
}

// Stamp writes a labelled copy of path to outputPath and returns outputPath.
// On any failure it returns path unchanged.
func (s *Stamper) Stamp(path, label, outputPath string) string {
	if err := s.stamp(path, label, outputPath); err != nil {
		s.log.Warn("watermark failed, using original", "path", path, "err", err)
		return path
	}
	return outputPath
}

func (s *Stamper) stamp(path, label, outputPath string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	src, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	text := renderLabel(label, s.opacity)
	tw, th := text.Bounds().Dx(), text.Bounds().Dy()
	if tw == 0 || th == 0 {
		return fmt.Errorf("empty label")
	}

	// Label height follows the image size but never drops below the minimum
	scale := float64(max(s.minFontPx, b.Dy()/30)) / float64(th)
	maxW := b.Dx() - 2*Padding
	if float64(tw)*scale > float64(maxW) {
		scale = float64(maxW) / float64(tw)
	}
	sw, sh := int(float64(tw)*scale), int(float64(th)*scale)
	if sw < 1 || sh < 1 || b.Dy() < sh+2*Padding {
		return fmt.Errorf("image %dx%d too small for label", b.Dx(), b.Dy())
	}

	x1, y1 := b.Max.X-Padding, b.Max.Y-Padding
	textRect := image.Rect(x1-sw, y1-sh, x1, y1)

	inset := Padding / 2
	box := image.Rect(textRect.Min.X-inset, textRect.Min.Y-inset, textRect.Max.X+inset, textRect.Max.Y+inset).Intersect(b)
	draw.Draw(dst, box, image.NewUniform(color.NRGBA{0, 0, 0, boxAlpha}), image.Point{}, draw.Over)
	draw.CatmullRom.Scale(dst, textRect, text, text.Bounds(), draw.Over, nil)

	return writeImage(dst, format, outputPath)
}

// renderLabel draws label at the font's native size on a transparent canvas.
func renderLabel(label string, alpha uint8) *image.RGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil()
	h := face.Metrics().Height.Ceil()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{255, 255, 255, alpha}),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)
	return img
}

// writeImage encodes to a temp file next to outputPath and renames it into place.
// Formats without an encoder (webp) are written as JPEG.
func writeImage(img image.Image, format, outputPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".stamp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	switch format {
	case "png":
		err = png.Encode(tmp, img)
	case "gif":
		err = gif.Encode(tmp, img, nil)
	default:
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: 95})
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return os.Rename(tmp.Name(), outputPath)
}
