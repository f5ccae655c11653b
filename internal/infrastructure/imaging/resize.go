// Package imaging prepares the responsive JPEG variants of static images
// served by the landing page.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoder registration
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decoder registration
)

const DefaultQuality = 85

// DefaultWidths are the srcset widths of the hero image
var DefaultWidths = []int{640, 1024}

var ErrInvalidOptions = errors.New("invalid resize options")

// Variant is one written JPEG
type Variant struct {
	Path   string
	Width  int
	Height int
}

// VariantPath returns <dir>/<base>-<width>.jpg for src
func VariantPath(src string, width int) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(filepath.Dir(src), base+"-"+strconv.Itoa(width)+".jpg")
}

// Resize writes one JPEG per width next to src, keeping the aspect ratio.
// Transparent areas are flattened onto white. Sources narrower than a
// width are scaled up so every srcset entry exists.
func Resize(src string, widths []int, quality int) ([]Variant, error) {
	if len(widths) == 0 || quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: widths %v, quality %d", ErrInvalidOptions, widths, quality)
	}
	for _, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("%w: width %d", ErrInvalidOptions, w)
		}
	}

	img, err := decode(src)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%s has no pixels", src)
	}

	variants := make([]Variant, 0, len(widths))
	for _, w := range widths {
		h := bounds.Dy() * w / bounds.Dx()
		if h < 1 {
			h = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

		path := VariantPath(src, w)
		if err := writeJPEG(path, dst, quality); err != nil {
			return variants, err
		}
		variants = append(variants, Variant{Path: path, Width: w, Height: h})
	}
	return variants, nil
}

func decode(src string) (image.Image, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", src, err)
	}
	return img, nil
}

// writeJPEG encodes into a temporary file and renames it over path
func writeJPEG(path string, img image.Image, quality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".resize-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
