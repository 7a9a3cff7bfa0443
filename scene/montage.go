package scene

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"reflect"

	"golang.org/x/image/draw"
)

// Tile is one independently addressed raw image fragment. A tile may be absent
// (the decoder reported a sub-block without pixel data).
type Tile struct {
	img     image.Image
	present bool
}

// NewTile wraps present pixel data. A nil image yields a missing tile.
func NewTile(img image.Image) Tile {
	return Tile{img: img, present: img != nil}
}

// MissingTile returns an absent tile.
func MissingTile() Tile {
	return Tile{}
}

// Image returns the tile pixels and whether the tile is present.
func (t Tile) Image() (image.Image, bool) {
	return t.img, t.present
}

// Montage is the composited canvas plus the integer corner each tile was
// placed at (x = column, y = row), in input order.
type Montage struct {
	Image   draw.Image
	Corners []image.Point
}

// AssembleMontage composites tiles placed at raw (x, y) coordinates into one
// canvas. Coordinates are shifted so the minimum over present tiles becomes
// the origin, the canvas is the ceiling of the furthest tile extent, and tiles
// are copied in input order so later tiles overwrite earlier ones. bg fills
// the canvas first; nil leaves the zero value.
func AssembleMontage(tiles []Tile, coords []Point, bg color.Color) (*Montage, error) {
	if len(tiles) != len(coords) {
		return nil, fmt.Errorf("%w: %d tiles but %d coordinates", ErrTileDimensionMismatch, len(tiles), len(coords))
	}

	var sample image.Image
	lo := Point{X: math.Inf(1), Y: math.Inf(1)}
	for i, t := range tiles {
		img, ok := t.Image()
		if !ok {
			continue
		}
		if sample == nil {
			sample = img
		} else if reflect.TypeOf(img) != reflect.TypeOf(sample) {
			return nil, fmt.Errorf("%w: tile %d is %T, expected %T", ErrTileDimensionMismatch, i, img, sample)
		}
		lo.X = math.Min(lo.X, coords[i].X)
		lo.Y = math.Min(lo.Y, coords[i].Y)
	}
	if sample == nil {
		return nil, ErrNoTiles
	}

	var extent Point
	for i, t := range tiles {
		img, ok := t.Image()
		if !ok {
			continue
		}
		n := coords[i].Sub(lo)
		sz := img.Bounds().Size()
		extent.X = math.Max(extent.X, n.X+float64(sz.X))
		extent.Y = math.Max(extent.Y, n.Y+float64(sz.Y))
	}

	canvas, err := newImageLike(sample, image.Rect(0, 0, int(math.Ceil(extent.X)), int(math.Ceil(extent.Y))))
	if err != nil {
		return nil, err
	}
	if bg != nil {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	corners := make([]image.Point, len(tiles))
	for i, t := range tiles {
		n := coords[i].Sub(lo)
		corners[i] = image.Point{X: roundPix(n.X), Y: roundPix(n.Y)}

		img, ok := t.Image()
		if !ok {
			continue
		}
		b := img.Bounds()
		draw.Draw(canvas, b.Sub(b.Min).Add(corners[i]), img, b.Min, draw.Src)
	}

	return &Montage{Image: canvas, Corners: corners}, nil
}

// newImageLike allocates a zeroed image with the same pixel type as sample.
func newImageLike(sample image.Image, r image.Rectangle) (draw.Image, error) {
	switch sample.(type) {
	case *image.Gray:
		return image.NewGray(r), nil
	case *image.Gray16:
		return image.NewGray16(r), nil
	case *image.RGBA:
		return image.NewRGBA(r), nil
	case *image.RGBA64:
		return image.NewRGBA64(r), nil
	case *image.NRGBA:
		return image.NewNRGBA(r), nil
	case *image.NRGBA64:
		return image.NewNRGBA64(r), nil
	default:
		return nil, fmt.Errorf("unsupported pixel type %T", sample)
	}
}
