package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	displayWidth = 512
	captionBar   = 24
	captionPad   = 8
)

// Annotate writes img, scaled down to a display width, under a caption bar
// reading caption. The encoder is picked from the extension of outPath.
func Annotate(img image.Image, caption, outPath string) error {
	if err := CheckAnnotatePath(outPath); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(outPath))

	canvas := Caption(img, caption)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create annotation: %w", err)
	}

	if ext == ".png" {
		err = png.Encode(f, canvas)
	} else {
		err = jpeg.Encode(f, canvas, &jpeg.Options{Quality: 90})
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("failed to encode annotation: %w", err)
	}
	return nil
}

// CheckAnnotatePath reports whether outPath names a format Annotate can write.
func CheckAnnotatePath(outPath string) error {
	switch ext := strings.ToLower(filepath.Ext(outPath)); ext {
	case ".png", ".jpg", ".jpeg":
		return nil
	default:
		return fmt.Errorf("unsupported annotation format %q (want .png, .jpg or .jpeg)", ext)
	}
}

// Caption returns a copy of img with caption drawn in a bar above it.
func Caption(img image.Image, caption string) *image.RGBA {
	if img.Bounds().Dx() > displayWidth {
		img = resize.Resize(displayWidth, 0, img, resize.Bilinear)
	}
	b := img.Bounds()

	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+captionBar))
	draw.Draw(canvas, image.Rect(0, 0, b.Dx(), captionBar), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(0, captionBar, b.Dx(), b.Dy()+captionBar), img, b.Min, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(captionPad, captionBar-captionPad+1),
	}
	d.DrawString(caption)

	return canvas
}
