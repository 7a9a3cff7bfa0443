package scene

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// State is the load state of a Scene.
type State int

const (
	Unloaded State = iota
	MetaLoaded
	ImageLoaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case MetaLoaded:
		return "meta-loaded"
	case ImageLoaded:
		return "image-loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Scene.
type Options struct {
	// Scene is 1-based. Ribbon is 1-based; zero or negative disables ribbon cropping.
	Scene  int
	Ribbon int
	// MetaOut, when set, receives a copy of the metadata document on every load.
	MetaOut string
	Paths   QueryPaths
	Logger  *log.Logger
}

// Scene loads geometry and pixels for one scene of a slide file. Each Scene owns
// its cache; it is not safe for concurrent use. Callers needing several scenes
// at once construct one Scene per scene.
type Scene struct {
	filename string
	decoder  Decoder
	opts     Options
	logger   *log.Logger

	state State
	geom  *Geometry
	img   image.Image
}

// New creates an unloaded scene backed by decoder.
func New(filename string, decoder Decoder, opts Options) (*Scene, error) {
	if decoder == nil {
		return nil, errors.New("decoder is required")
	}
	if opts.Scene < 1 {
		return nil, fmt.Errorf("%w: scene numbers start at 1, got %d", ErrSceneNotFound, opts.Scene)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scene{filename: filename, decoder: decoder, opts: opts, logger: logger}, nil
}

// Filename returns the slide file this scene reads from.
func (s *Scene) Filename() string { return s.filename }

// State returns the current load state.
func (s *Scene) State() State { return s.state }

// LoadMetadata reads the metadata document and recomputes all scene geometry.
// The cache is only replaced when every step succeeds; on error the previous
// state is left untouched. A successful reload drops any loaded image.
func (s *Scene) LoadMetadata() error {
	start := time.Now()
	data, err := s.decoder.ReadMetadata(s.filename)
	if err != nil {
		return fmt.Errorf("reading metadata of %s: %w", s.filename, err)
	}

	md, err := ParseMetadata(data, s.opts.Paths)
	if err != nil {
		return err
	}

	geom, err := ComputeGeometry(md, s.opts.Scene, s.opts.Ribbon)
	if err != nil {
		return err
	}

	if s.opts.MetaOut != "" {
		if err := os.WriteFile(s.opts.MetaOut, data, 0644); err != nil {
			return fmt.Errorf("writing metadata copy: %w", err)
		}
	}

	s.geom = geom
	s.img = nil
	s.state = MetaLoaded

	for _, w := range geom.Warnings {
		s.logger.Warn(w, "scene", geom.Scene, "ribbon", geom.Ribbon)
	}
	if geom.Ribbon > 0 {
		s.logger.Infof("%d polygons and %d ROIs are within scene %d, ribbon %d",
			len(geom.Sections), len(geom.ROIs), geom.Scene, geom.Ribbon)
	} else {
		s.logger.Infof("%d polygons, %d ROIs and %d ribbons are within scene %d",
			len(geom.Sections), len(geom.ROIs), len(geom.Boxes), geom.Scene)
	}
	s.logger.Debug("metadata loaded", "file", s.filename, "elapsed", time.Since(start))
	return nil
}

// LoadImage reads the scene pixels. From Unloaded it first runs LoadMetadata;
// this is the only implicit transition.
func (s *Scene) LoadImage() error {
	if s.state == Unloaded {
		if err := s.LoadMetadata(); err != nil {
			return err
		}
	}

	start := time.Now()
	s.logger.Debug("loading image", "scene", s.geom.Scene)

	box := s.geom.SceneBox
	var img image.Image
	var err error
	if s.geom.SceneCount == 1 {
		// Single-scene files are read whole and cropped here.
		whole, rerr := s.decoder.ReadScene(s.filename, nil)
		if rerr != nil {
			return fmt.Errorf("reading image of %s: %w", s.filename, rerr)
		}
		img, err = cropImage(whole, box.Rect())
	} else {
		img, err = s.decoder.ReadScene(s.filename, &Region{Corner: box.Corner, Size: box.Size})
	}
	if err != nil {
		return fmt.Errorf("reading scene %d of %s: %w", s.geom.Scene, s.filename, err)
	}

	s.img = img
	s.state = ImageLoaded
	sz := img.Bounds().Size()
	s.logger.Info("image loaded", "scene", s.geom.Scene, "size", fmt.Sprintf("%d x %d", sz.Y, sz.X),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Geometry returns a copy of the cached geometry. It fails with ErrNotLoaded
// before LoadMetadata has succeeded.
func (s *Scene) Geometry() (*Geometry, error) {
	if s.state < MetaLoaded {
		return nil, fmt.Errorf("%w: scene geometry requires metadata", ErrNotLoaded)
	}
	return s.geom.Clone(), nil
}

// Image returns the loaded scene image. It fails with ErrNotLoaded before
// LoadImage has succeeded.
func (s *Scene) Image() (image.Image, error) {
	if s.state < ImageLoaded {
		return nil, fmt.Errorf("%w: scene image", ErrNotLoaded)
	}
	return s.img, nil
}

// Info bundles the image with its polygon sets and ribbon boxes.
type Info struct {
	Image    image.Image
	Sections [][]Point
	ROIs     [][]Point
	Boxes    []BoxPix
}

// Info returns the scene image, section and ROI outlines and ribbon boxes,
// all in pixels relative to the scene.
func (s *Scene) Info() (*Info, error) {
	img, err := s.Image()
	if err != nil {
		return nil, err
	}
	g := s.geom.Clone()
	info := &Info{Image: img, Boxes: g.Boxes}
	for _, p := range g.Sections {
		info.Sections = append(info.Sections, p.Points)
	}
	for _, p := range g.ROIs {
		info.ROIs = append(info.ROIs, p.Points)
	}
	return info, nil
}

// LoadMontage reads every tile of the file and composites them. It does not
// depend on or change the scene state.
func (s *Scene) LoadMontage(bg color.Color) (*Montage, error) {
	start := time.Now()
	s.logger.Info("loading image for all scenes", "file", s.filename)

	tiles, coords, err := s.decoder.ReadTiles(s.filename)
	if err != nil {
		return nil, fmt.Errorf("reading tiles of %s: %w", s.filename, err)
	}
	m, err := AssembleMontage(tiles, coords, bg)
	if err != nil {
		return nil, err
	}

	sz := m.Image.Bounds().Size()
	s.logger.Info("montage assembled", "tiles", len(tiles), "size", fmt.Sprintf("%d x %d", sz.Y, sz.X),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

// ComputeGeometry derives the pixel geometry of one scene (1-based) from
// metadata, optionally cropped to a ribbon (1-based, <= 0 disables).
func ComputeGeometry(md *Metadata, sceneNum, ribbonNum int) (*Geometry, error) {
	rec, ok := md.FindScene(sceneNum - 1)
	if !ok {
		return nil, fmt.Errorf("%w: scene %d (file has %d)", ErrSceneNotFound, sceneNum, len(md.Scenes))
	}

	frame, err := SolveFrame(md.Markers)
	if err != nil {
		return nil, err
	}

	t := PixelTransform{Frame: frame, Scale: md.Scale}
	geom := &Geometry{
		Scene:      sceneNum,
		SceneCount: len(md.Scenes),
		Scale:      md.Scale,
		Frame:      frame,
	}
	geom.AllScenes = t.UnionBox(md.Scenes)
	geom.SceneBox = t.SceneBox(rec, geom.AllScenes)

	boxes := RelativeBoxes(md.Boxes, geom.SceneBox)
	geom.Boxes = BoxesInScene(boxes, geom.SceneBox.Size)

	if ribbonNum > 0 {
		crop, err := CropToRibbon(boxes, md.Sections, md.ROIs, geom.SceneBox.Corner, ribbonNum-1)
		if err != nil {
			return nil, err
		}
		if crop.Empty() {
			geom.Warnings = append(geom.Warnings,
				fmt.Errorf("%w: ribbon %d, using selection box", ErrEmptyRibbonAssignment, ribbonNum).Error())
		}
		geom.Ribbon = ribbonNum
		geom.SectionRibbons = crop.Sections
		geom.ROIRibbons = crop.ROIs
		geom.SceneBox = crop.Apply(geom.SceneBox)
		geom.Boxes = []BoxPix{{Size: geom.SceneBox.Size}}
	}

	geom.Sections = LocalizePolygons(md.Sections, geom.SceneBox.Corner, geom.SceneBox.Size)
	geom.ROIs = LocalizePolygons(md.ROIs, geom.SceneBox.Corner, geom.SceneBox.Size)
	return geom, nil
}
