package services

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// ErrPreprocessing signals that an uploaded buffer could not be decoded as an
// image. Downstream OCR and face detection never see un-normalized input.
var ErrPreprocessing = errors.New("image preprocessing failed")

const (
	preprocessWidth   = 400
	preprocessQuality = 90
)

// ImagePreprocessor normalizes uploaded phone-camera images before analysis:
// resize to a fixed width and recompress as JPEG. Pure transform, no side
// effects. Bounding the size keeps OCR and face-detection cost predictable.
type ImagePreprocessor struct {
	Width   int
	Quality int
}

func NewImagePreprocessor() *ImagePreprocessor {
	return &ImagePreprocessor{Width: preprocessWidth, Quality: preprocessQuality}
}

// Process decodes the buffer, resizes it to the target width preserving
// aspect ratio, and re-encodes it as JPEG.
func (p *ImagePreprocessor) Process(buf []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}

	resized := imaging.Resize(img, p.Width, 0, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, resized, imaging.JPEG, imaging.JPEGQuality(p.Quality)); err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrPreprocessing, err)
	}
	return out.Bytes(), nil
}
