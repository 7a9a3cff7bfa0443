package scene

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T, dec Decoder, scene, ribbon int) *Scene {
	t.Helper()
	s, err := New("slide.czi", dec, Options{Scene: scene, Ribbon: ribbon, Logger: quietLogger()})
	require.NoError(t, err)
	return s
}

func TestComputeGeometry(t *testing.T) {
	md := twoSceneFixture().Metadata(t)

	g, err := ComputeGeometry(md, 2, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Scene)
	assert.Equal(t, 0, g.Ribbon)
	assert.Equal(t, 2, g.SceneCount)
	assert.Equal(t, BoxPix{Corner: image.Point{X: 400, Y: 350}, Size: image.Point{X: 2200, Y: 1150}}, g.AllScenes)
	assert.Equal(t, BoxPix{Corner: image.Point{X: 1400, Y: 500}, Size: image.Point{X: 400, Y: 300}}, g.SceneBox)
	assert.Equal(t, []BoxPix{
		{Corner: image.Point{X: 10, Y: 10}, Size: image.Point{X: 100, Y: 80}},
		{Corner: image.Point{X: 200, Y: 100}, Size: image.Point{X: 150, Y: 150}},
	}, g.Boxes)

	require.Len(t, g.Sections, 2)
	assert.True(t, pointListsEqual(g.Sections[0].Points,
		[]Point{{X: 20, Y: 20}, {X: 80, Y: 20}, {X: 80, Y: 70}, {X: 20, Y: 70}}))
	require.Len(t, g.ROIs, 1)
	assert.True(t, pointListsEqual(g.ROIs[0].Points,
		[]Point{{X: 50, Y: 30}, {X: 50, Y: 50}, {X: 30, Y: 50}}), "rois = %v", g.ROIs[0].Points)
	assert.Empty(t, g.Warnings)
}

func TestComputeGeometry_Ribbon(t *testing.T) {
	md := twoSceneFixture().Metadata(t)

	g, err := ComputeGeometry(md, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, g.Ribbon)
	assert.Equal(t, BoxPix{Corner: image.Point{X: 1410, Y: 510}, Size: image.Point{X: 100, Y: 80}}, g.SceneBox)
	assert.Equal(t, []BoxPix{{Size: image.Point{X: 100, Y: 80}}}, g.Boxes)
	assert.Equal(t, RibbonAssignment{0, 1, 2}, g.SectionRibbons)
	assert.Equal(t, RibbonAssignment{0}, g.ROIRibbons)

	require.Len(t, g.Sections, 1)
	assert.True(t, pointListsEqual(g.Sections[0].Points,
		[]Point{{X: 10, Y: 10}, {X: 70, Y: 10}, {X: 70, Y: 60}, {X: 10, Y: 60}}))
	require.Len(t, g.ROIs, 1)
	assert.True(t, pointListsEqual(g.ROIs[0].Points,
		[]Point{{X: 40, Y: 20}, {X: 40, Y: 40}, {X: 20, Y: 40}}), "rois = %v", g.ROIs[0].Points)
}

func TestComputeGeometry_EmptyRibbonWarns(t *testing.T) {
	f := twoSceneFixture()
	f.sections, f.rois = nil, nil
	md := f.Metadata(t)

	g, err := ComputeGeometry(md, 2, 2)
	require.NoError(t, err)
	require.Len(t, g.Warnings, 1)
	assert.Contains(t, g.Warnings[0], ErrEmptyRibbonAssignment.Error())
	// The crop falls back to the selection box.
	assert.Equal(t, BoxPix{Corner: image.Point{X: 1600, Y: 600}, Size: image.Point{X: 150, Y: 150}}, g.SceneBox)
}

func TestComputeGeometry_Errors(t *testing.T) {
	md := twoSceneFixture().Metadata(t)

	_, err := ComputeGeometry(md, 3, 0)
	assert.True(t, errors.Is(err, ErrSceneNotFound), "got %v", err)

	_, err = ComputeGeometry(md, 2, 4)
	assert.True(t, errors.Is(err, ErrRibbonNotFound), "got %v", err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x", nil, Options{Scene: 1})
	assert.Error(t, err)

	_, err = New("x", newFakeDecoder(twoSceneFixture()), Options{Scene: 0})
	assert.True(t, errors.Is(err, ErrSceneNotFound))
}

func TestScene_StateMachine(t *testing.T) {
	dec := newFakeDecoder(twoSceneFixture())
	s := newTestScene(t, dec, 2, 0)
	assert.Equal(t, Unloaded, s.State())

	_, err := s.Geometry()
	assert.True(t, errors.Is(err, ErrNotLoaded))
	_, err = s.Image()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	require.NoError(t, s.LoadMetadata())
	assert.Equal(t, MetaLoaded, s.State())
	_, err = s.Geometry()
	assert.NoError(t, err)
	_, err = s.Image()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	require.NoError(t, s.LoadImage())
	assert.Equal(t, ImageLoaded, s.State())
	img, err := s.Image()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(400, 300), img.Bounds().Size())

	// Multi-scene files are read by region.
	require.Len(t, dec.regions, 1)
	require.NotNil(t, dec.regions[0])
	assert.Equal(t, Region{Corner: image.Point{X: 1400, Y: 500}, Size: image.Point{X: 400, Y: 300}}, *dec.regions[0])

	// Reloading metadata drops the image.
	require.NoError(t, s.LoadMetadata())
	assert.Equal(t, MetaLoaded, s.State())
	_, err = s.Image()
	assert.True(t, errors.Is(err, ErrNotLoaded))
}

func TestScene_LoadImageFromUnloaded(t *testing.T) {
	dec := newFakeDecoder(twoSceneFixture())
	s := newTestScene(t, dec, 1, 0)

	require.NoError(t, s.LoadImage())
	assert.Equal(t, ImageLoaded, s.State())
	assert.Equal(t, 1, dec.metaReads)
}

func TestScene_SingleSceneCrops(t *testing.T) {
	dec := newFakeDecoder(singleSceneFixture())
	dec.full = gradient(600, 450)
	s := newTestScene(t, dec, 1, 0)

	require.NoError(t, s.LoadImage())
	require.Len(t, dec.regions, 1)
	assert.Nil(t, dec.regions[0], "single-scene files are read whole")

	img, err := s.Image()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())
	assert.Equal(t, uint8(30), img.(*image.Gray).GrayAt(10, 20).Y)
}

func TestScene_Idempotent(t *testing.T) {
	s := newTestScene(t, newFakeDecoder(twoSceneFixture()), 2, 1)

	require.NoError(t, s.LoadMetadata())
	first, err := s.Geometry()
	require.NoError(t, err)

	require.NoError(t, s.LoadMetadata())
	second, err := s.Geometry()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScene_FailedLoadKeepsState(t *testing.T) {
	dec := newFakeDecoder(twoSceneFixture())
	s := newTestScene(t, dec, 2, 0)
	require.NoError(t, s.LoadMetadata())
	before, err := s.Geometry()
	require.NoError(t, err)

	// A document without scene 2 must not touch the cache.
	dec.metadata = singleSceneFixture().XML()
	err = s.LoadMetadata()
	assert.True(t, errors.Is(err, ErrSceneNotFound), "got %v", err)
	assert.Equal(t, MetaLoaded, s.State())
	after, err := s.Geometry()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	dec.metaErr = errors.New("read failed")
	assert.Error(t, s.LoadMetadata())
	assert.Equal(t, MetaLoaded, s.State())
}

func TestScene_SceneNotFoundFromUnloaded(t *testing.T) {
	s := newTestScene(t, newFakeDecoder(twoSceneFixture()), 3, 0)
	err := s.LoadImage()
	assert.True(t, errors.Is(err, ErrSceneNotFound), "got %v", err)
	assert.Equal(t, Unloaded, s.State())
}

func TestScene_GeometryIsACopy(t *testing.T) {
	s := newTestScene(t, newFakeDecoder(twoSceneFixture()), 2, 0)
	require.NoError(t, s.LoadMetadata())

	g, err := s.Geometry()
	require.NoError(t, err)
	g.Sections[0].Points[0] = Point{X: -1, Y: -1}
	g.Boxes[0].Size = image.Point{}

	again, err := s.Geometry()
	require.NoError(t, err)
	assert.Equal(t, Point{X: 20, Y: 20}, again.Sections[0].Points[0])
	assert.Equal(t, image.Point{X: 100, Y: 80}, again.Boxes[0].Size)
}

func TestScene_MetaOut(t *testing.T) {
	out := filepath.Join(t.TempDir(), "meta.xml")
	f := twoSceneFixture()
	s, err := New("slide.czi", newFakeDecoder(f), Options{Scene: 1, MetaOut: out, Logger: quietLogger()})
	require.NoError(t, err)

	require.NoError(t, s.LoadMetadata())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, f.XML(), string(data))
}

func TestScene_Info(t *testing.T) {
	s := newTestScene(t, newFakeDecoder(twoSceneFixture()), 2, 0)
	_, err := s.Info()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	require.NoError(t, s.LoadImage())
	info, err := s.Info()
	require.NoError(t, err)
	assert.NotNil(t, info.Image)
	assert.Len(t, info.Sections, 2)
	assert.Len(t, info.ROIs, 1)
	assert.Len(t, info.Boxes, 2)
}

func TestScene_LoadMontage(t *testing.T) {
	dec := newFakeDecoder(twoSceneFixture())
	dec.tiles = []Tile{NewTile(uniformGray(5, 5, 1)), NewTile(uniformGray(5, 5, 2))}
	dec.tileCoords = []Point{{X: 100, Y: 100}, {X: 103, Y: 100}}
	s := newTestScene(t, dec, 1, 0)

	m, err := s.LoadMontage(nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 5), m.Image.Bounds())
	assert.Equal(t, Unloaded, s.State(), "montage does not change scene state")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", Unloaded.String())
	assert.Equal(t, "meta-loaded", MetaLoaded.String())
	assert.Equal(t, "image-loaded", ImageLoaded.String())
	assert.Equal(t, "State(7)", State(7).String())
}
