package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrImageDecode is returned when an input image is missing, unreadable or
// not in a supported format.
var ErrImageDecode = errors.New("image decode failed")

// Layout is the memory order of the model input tensor.
type Layout string

const (
	// NHWC is the channels-last order used by Keras exports.
	NHWC Layout = "nhwc"
	// NCHW is the channels-first order used by PyTorch exports.
	NCHW Layout = "nchw"
)

// Interpolation names the resampling filter used when resizing.
type Interpolation string

const (
	Nearest  Interpolation = "nearest"
	Bilinear Interpolation = "bilinear"
	Lanczos3 Interpolation = "lanczos3"
)

const channels = 3

// Options describes how an image is turned into an input tensor.
type Options struct {
	Size          int
	Layout        Layout
	Interpolation Interpolation
}

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case NHWC, NCHW:
		return l, nil
	}
	return "", fmt.Errorf("unsupported input layout %q (want nhwc or nchw)", s)
}

func ParseInterpolation(s string) (Interpolation, error) {
	switch i := Interpolation(strings.ToLower(strings.TrimSpace(s))); i {
	case Nearest, Bilinear, Lanczos3:
		return i, nil
	}
	return "", fmt.Errorf("unsupported interpolation %q (want nearest, bilinear or lanczos3)", s)
}

func (i Interpolation) filter() resize.InterpolationFunction {
	switch i {
	case Bilinear:
		return resize.Bilinear
	case Lanczos3:
		return resize.Lanczos3
	default:
		return resize.NearestNeighbor
	}
}

// Shape returns the single-item batch shape a tensor built with o has.
func (o Options) Shape() []int64 {
	s := int64(o.Size)
	if o.Layout == NCHW {
		return []int64{1, channels, s, s}
	}
	return []int64{1, s, s, channels}
}

// Decode reads and decodes the image at path.
func Decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrImageDecode, path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrImageDecode, path, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: %s: image has no pixels", ErrImageDecode, path)
	}
	return img, format, nil
}

// Tensor resizes img to Size x Size and converts it to float32 RGB values in
// [0,1], laid out as a batch of one.
func Tensor(img image.Image, o Options) []float32 {
	size := uint(o.Size)
	resized := resize.Resize(size, size, img, o.Interpolation.filter())

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Alpha is dropped, not premultiplied in.
			px := color.NRGBA64Model.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)

			rgb := [channels]float32{
				float32(px.R) / 65535.0,
				float32(px.G) / 65535.0,
				float32(px.B) / 65535.0,
			}

			pixel := y*width + x
			for c, v := range rgb {
				if o.Layout == NCHW {
					data[c*plane+pixel] = v
				} else {
					data[pixel*channels+c] = v
				}
			}
		}
	}

	return data
}
