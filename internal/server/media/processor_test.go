package media

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, w, h int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func pngImage(t *testing.T, w, h int) []byte {
	return testImage(t, w, h, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
}

func jpegImage(t *testing.T, w, h int) []byte {
	return testImage(t, w, h, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: 100})
	})
}

func animatedGif(t *testing.T, w, h, frames int) []byte {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{
			color.RGBA{A: 255},
			color.RGBA{R: uint8(40 * (i + 1)), G: 128, B: 64, A: 255},
		})
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				frame.SetColorIndex(x, y, uint8((x+y+i)%2))
			}
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func TestSupportedFormat(t *testing.T) {
	assert.True(t, SupportedFormat("image/jpeg"))
	assert.True(t, SupportedFormat("image/png"))
	assert.True(t, SupportedFormat("image/gif"))
	assert.False(t, SupportedFormat("image/webp"))
	assert.False(t, SupportedFormat("application/pdf"))
	assert.False(t, SupportedFormat(""))
}

func TestOptimize_ReencodesInSourceFormat(t *testing.T) {
	p := NewProcessor()
	src := jpegImage(t, 320, 240)

	out, err := p.Optimize(src, "image/jpeg", OptimizeOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestOptimize_PreserveMetadataReturnsOriginal(t *testing.T) {
	p := NewProcessor()
	src := jpegImage(t, 64, 64)

	out, err := p.Optimize(src, "image/jpeg", OptimizeOptions{PreserveMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestOptimize_AnimatedGifPassesThrough(t *testing.T) {
	p := NewProcessor()
	src := animatedGif(t, 64, 64, 3)

	out, err := p.Optimize(src, "image/gif", OptimizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, src, out, "animated source must survive byte for byte")

	decoded, err := gif.DecodeAll(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 3, "all frames kept")
}

func TestDeriveThumbnails_GifYieldsStills(t *testing.T) {
	p := NewProcessor()
	src := animatedGif(t, 600, 400, 3)

	thumbs, err := p.DeriveThumbnails(src, "image/gif", ThumbnailSizes)
	require.NoError(t, err)
	require.Contains(t, thumbs, 200)

	img, err := imaging.Decode(bytes.NewReader(thumbs[200]))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestOptimize_Rejections(t *testing.T) {
	p := NewProcessor()

	_, err := p.Optimize(jpegImage(t, 8, 8), "application/pdf", OptimizeOptions{})
	assert.Error(t, err, "unsupported content type")

	_, err = p.Optimize([]byte("not an image"), "image/jpeg", OptimizeOptions{})
	assert.Error(t, err, "undecodable payload")
}

func TestDeriveThumbnails_NeverUpscales(t *testing.T) {
	p := NewProcessor()
	src := pngImage(t, 600, 400)

	thumbs, err := p.DeriveThumbnails(src, "image/png", ThumbnailSizes)
	require.NoError(t, err)

	require.Contains(t, thumbs, 200)
	require.Contains(t, thumbs, 400)
	assert.NotContains(t, thumbs, 800, "800 exceeds the 600px longest edge")

	img, err := imaging.Decode(bytes.NewReader(thumbs[200]))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx(), "longest edge constrained")
	assert.LessOrEqual(t, img.Bounds().Dy(), 200)
}

func TestDeriveThumbnails_TinySourceProducesNothing(t *testing.T) {
	p := NewProcessor()
	src := pngImage(t, 100, 80)

	thumbs, err := p.DeriveThumbnails(src, "image/png", ThumbnailSizes)
	require.NoError(t, err)
	assert.Empty(t, thumbs)
}

func TestDeriveThumbnails_PortraitOrientation(t *testing.T) {
	p := NewProcessor()
	src := pngImage(t, 300, 900)

	thumbs, err := p.DeriveThumbnails(src, "image/png", ThumbnailSizes)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(thumbs[400]))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dy(), "height is the longest edge")
	assert.LessOrEqual(t, img.Bounds().Dx(), 400)
}
