// Package preprocess turns uploaded image bytes into the fixed-size tensor
// the classifier expects.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/leafscan-api/internal/model"
)

// DefaultSize is the spatial size the plant model was trained on.
const DefaultSize = 224

// DecodeError means the bytes are not an image in any registered format.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedFormatError means the image decoded but cannot be read as RGB.
type UnsupportedFormatError struct {
	Format string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported %s image: %s", e.Format, e.Reason)
}

// Normalizer resizes images to Size x Size and scales channels to [0,1].
type Normalizer struct {
	Size   int
	Layout model.Layout
}

func NewNormalizer(size int, layout model.Layout) *Normalizer {
	if size <= 0 {
		size = DefaultSize
	}
	if layout == "" {
		layout = model.LayoutNHWC
	}
	return &Normalizer{Size: size, Layout: layout}
}

// Normalize decodes data and returns a tensor with a leading batch
// dimension of 1.
func (n *Normalizer) Normalize(data []byte) (model.Tensor, error) {
	if len(data) == 0 {
		return model.Tensor{}, &DecodeError{Err: fmt.Errorf("empty input")}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, &DecodeError{Err: err}
	}

	if err := checkRGB(img, format); err != nil {
		return model.Tensor{}, err
	}

	size := uint(n.Size)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	return n.tensor(resized), nil
}

func checkRGB(img image.Image, format string) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return &UnsupportedFormatError{Format: format, Reason: "image has no pixels"}
	}
	switch img.ColorModel() {
	case color.AlphaModel, color.Alpha16Model:
		return &UnsupportedFormatError{Format: format, Reason: "alpha-only color model has no RGB channels"}
	}
	return nil
}

func (n *Normalizer) tensor(img image.Image) model.Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			// 16-bit to 8-bit, then scale to [0,1]
			rv := float32(r>>8) / 255.0
			gv := float32(g>>8) / 255.0
			bv := float32(b>>8) / 255.0

			pixel := y*width + x
			if n.Layout == model.LayoutNCHW {
				data[pixel] = rv
				data[plane+pixel] = gv
				data[2*plane+pixel] = bv
			} else {
				data[3*pixel] = rv
				data[3*pixel+1] = gv
				data[3*pixel+2] = bv
			}
		}
	}

	shape := []int64{1, int64(height), int64(width), 3}
	if n.Layout == model.LayoutNCHW {
		shape = []int64{1, 3, int64(height), int64(width)}
	}
	return model.Tensor{Shape: shape, Data: data}
}
