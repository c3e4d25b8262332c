package services

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProcessResizesToTargetWidth(t *testing.T) {
	p := NewImagePreprocessor()

	out, err := p.Process(testJPEG(t, 1200, 900))
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, decoded.Bounds().Dx())
	// Aspect ratio preserved: 1200x900 -> 400x300.
	assert.Equal(t, 300, decoded.Bounds().Dy())
}

func TestProcessUpscalesSmallImages(t *testing.T) {
	p := NewImagePreprocessor()

	out, err := p.Process(testJPEG(t, 100, 50))
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, decoded.Bounds().Dx())
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewImagePreprocessor()

	_, err := p.Process([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrPreprocessing)

	_, err = p.Process(nil)
	assert.ErrorIs(t, err, ErrPreprocessing)
}
