package watermark

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestStampedPath(t *testing.T) {
	assert.Equal(t, "media/abc_watermarked.jpg", StampedPath("media/abc.jpg"))
	assert.Equal(t, "noext_watermarked", StampedPath("noext"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Sam Shop x @ethiostorebot", Label("Sam Shop", "@ethiostorebot"))
	assert.Equal(t, "Sam Shop x @ethiostorebot", Label("Sam Shop", "ethiostorebot"))
}

func TestStamp_DrawsBottomRight(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.png")
	writePNG(t, in, 640, 480)
	out := StampedPath(in)

	s := New(24, 180, nil)
	got := s.Stamp(in, Label("Sam Shop", "ethiostorebot"), out)
	require.Equal(t, out, got)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())

	// Top-left is untouched, the area just inside the bottom-right padding is darkened
	r0, _, _, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(200*0x101), r0)
	r1, _, _, _ := img.At(640-Padding+2, 480-Padding+2).RGBA()
	assert.Less(t, r1, r0)

	// The original is kept
	_, err = os.Stat(in)
	assert.NoError(t, err)
}

func TestStamp_FailureReturnsInput(t *testing.T) {
	dir := t.TempDir()
	s := New(24, 180, nil)

	missing := filepath.Join(dir, "missing.jpg")
	assert.Equal(t, missing, s.Stamp(missing, "x", StampedPath(missing)))

	notImage := filepath.Join(dir, "notes.jpg")
	require.NoError(t, os.WriteFile(notImage, []byte("not an image"), 0600))
	assert.Equal(t, notImage, s.Stamp(notImage, "x", StampedPath(notImage)))
	_, err := os.Stat(StampedPath(notImage))
	assert.True(t, os.IsNotExist(err))

	tiny := filepath.Join(dir, "tiny.png")
	writePNG(t, tiny, 10, 10)
	assert.Equal(t, tiny, s.Stamp(tiny, "a long label", StampedPath(tiny)))
}
