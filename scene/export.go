package scene

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
)

// DefaultDownsample is the block size used when exporting scene images.
const DefaultDownsample = 8

// BlockReduce shrinks img by averaging factor x factor blocks. Blocks at the
// right and bottom edges may be partial and are averaged over the pixels they
// cover. A factor of 1 or less returns img unchanged.
func BlockReduce(img image.Image, factor int) (image.Image, error) {
	if factor <= 1 {
		return img, nil
	}

	b := img.Bounds()
	w := (b.Dx() + factor - 1) / factor
	h := (b.Dy() + factor - 1) / factor
	out, err := newImageLike(img, image.Rect(0, 0, w, h))
	if err != nil {
		return nil, err
	}

	for oy := 0; oy < h; oy++ {
		for ox := 0; ox < w; ox++ {
			var sr, sg, sb, sa, n uint64
			for y := b.Min.Y + oy*factor; y < b.Min.Y+(oy+1)*factor && y < b.Max.Y; y++ {
				for x := b.Min.X + ox*factor; x < b.Min.X+(ox+1)*factor && x < b.Max.X; x++ {
					r, g, bl, a := img.At(x, y).RGBA()
					sr += uint64(r)
					sg += uint64(g)
					sb += uint64(bl)
					sa += uint64(a)
					n++
				}
			}
			out.Set(ox, oy, color.RGBA64{
				R: uint16((sr + n/2) / n),
				G: uint16((sg + n/2) / n),
				B: uint16((sb + n/2) / n),
				A: uint16((sa + n/2) / n),
			})
		}
	}
	return out, nil
}

// WriteTIFF writes img as an uncompressed TIFF, block-reduced by downsample.
func WriteTIFF(path string, img image.Image, downsample int) error {
	small, err := BlockReduce(img, downsample)
	if err != nil {
		return fmt.Errorf("downsampling: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := tiff.Encode(f, small, &tiff.Options{Compression: tiff.Uncompressed}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding TIFF: %w", err)
	}
	return f.Close()
}
