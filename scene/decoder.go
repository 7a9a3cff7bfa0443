package scene

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

// Region is a pixel rectangle requested from a decoder, relative to the box
// around all scenes.
type Region struct {
	Corner image.Point
	Size   image.Point
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rectangle{Min: r.Corner, Max: r.Corner.Add(r.Size)}
}

// Decoder is the slide-file backend. Implementations are injected into a Scene;
// all calls block until the file has been read.
type Decoder interface {
	// ReadMetadata returns the raw metadata XML document.
	ReadMetadata(name string) ([]byte, error)
	// ReadScene returns one 2D image: the whole file when region is nil,
	// otherwise the requested region.
	ReadScene(name string, region *Region) (image.Image, error)
	// ReadTiles returns every sub-block with its raw placement coordinate.
	ReadTiles(name string) ([]Tile, []Point, error)
}

// Bundle file names
const (
	BundleMetadataFile = "metadata.xml"
	BundleImageFile    = "image.tif"
	BundleTilesFile    = "tiles.yaml"
)

// TileManifest lists the tiles of a bundle with their raw placement.
type TileManifest struct {
	Tiles []TileEntry `yaml:"tiles"`
}

// TileEntry is one tile of a bundle; Missing marks a sub-block without pixels.
type TileEntry struct {
	File    string  `yaml:"file,omitempty"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Missing bool    `yaml:"missing,omitempty"`
}

// BundleDecoder reads an exported slide bundle: a directory holding the
// metadata document, the full image as TIFF and an optional tile manifest.
type BundleDecoder struct{}

// NewBundleDecoder creates a directory-backed decoder
func NewBundleDecoder() *BundleDecoder {
	return &BundleDecoder{}
}

// ReadMetadata reads metadata.xml from the bundle directory
func (d *BundleDecoder) ReadMetadata(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(name, BundleMetadataFile))
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return data, nil
}

// ReadScene decodes image.tif and crops it to region when one is given
func (d *BundleDecoder) ReadScene(name string, region *Region) (image.Image, error) {
	img, err := readTIFF(filepath.Join(name, BundleImageFile))
	if err != nil {
		return nil, err
	}
	if region == nil {
		return img, nil
	}
	return cropImage(img, region.Rect())
}

// ReadTiles reads tiles.yaml and decodes every present tile
func (d *BundleDecoder) ReadTiles(name string) ([]Tile, []Point, error) {
	data, err := os.ReadFile(filepath.Join(name, BundleTilesFile))
	if err != nil {
		return nil, nil, fmt.Errorf("reading tile manifest: %w", err)
	}
	var manifest TileManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, nil, fmt.Errorf("parsing tile manifest: %w", err)
	}

	tiles := make([]Tile, len(manifest.Tiles))
	coords := make([]Point, len(manifest.Tiles))
	for i, e := range manifest.Tiles {
		coords[i] = Point{X: e.X, Y: e.Y}
		if e.Missing || e.File == "" {
			tiles[i] = MissingTile()
			continue
		}
		img, err := readTIFF(filepath.Join(name, e.File))
		if err != nil {
			return nil, nil, fmt.Errorf("tile %d: %w", i, err)
		}
		tiles[i] = NewTile(img)
	}
	return tiles, coords, nil
}

func readTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// cropImage copies r (clamped to the image bounds) into a new image of the same
// pixel type whose bounds start at the origin.
func cropImage(img image.Image, r image.Rectangle) (image.Image, error) {
	r = r.Intersect(img.Bounds())
	out, err := newImageLike(img, image.Rect(0, 0, r.Dx(), r.Dy()))
	if err != nil {
		return nil, err
	}
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out, nil
}
