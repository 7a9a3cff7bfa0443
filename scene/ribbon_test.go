package scene

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignNearest(t *testing.T) {
	tests := []struct {
		name     string
		ribbons  []Point
		polygons []Point
		want     RibbonAssignment
	}{
		{
			name:     "nearest center",
			ribbons:  []Point{{X: 0, Y: 0}, {X: 10, Y: 0}},
			polygons: []Point{{X: 1, Y: 0}, {X: 9, Y: 0}, {X: 20, Y: 0}},
			want:     RibbonAssignment{0, 1, 1},
		},
		{
			name:     "tie goes to lowest index",
			ribbons:  []Point{{X: 0, Y: 0}, {X: 10, Y: 0}},
			polygons: []Point{{X: 5, Y: 3}},
			want:     RibbonAssignment{0},
		},
		{
			name:     "no polygons",
			ribbons:  []Point{{X: 0, Y: 0}},
			polygons: nil,
			want:     RibbonAssignment{},
		},
		{
			name:     "no ribbons",
			ribbons:  nil,
			polygons: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			want:     RibbonAssignment{-1, -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignNearest(tt.ribbons, tt.polygons))
		})
	}
}

func TestRibbonAssignment_Members(t *testing.T) {
	a := RibbonAssignment{0, 1, 1, 2, 1}
	assert.Equal(t, []int{1, 2, 4}, a.Members(1))
	assert.Nil(t, a.Members(5))
}

// fixtureCropInputs returns the scene 2 boxes and polygons of twoSceneFixture.
func fixtureCropInputs(t *testing.T) ([]BoxPix, *Metadata, BoxPix) {
	md := twoSceneFixture().Metadata(t)
	scene := BoxPix{Corner: image.Point{X: 1400, Y: 500}, Size: image.Point{X: 400, Y: 300}}
	return RelativeBoxes(md.Boxes, scene), md, scene
}

func TestCropToRibbon(t *testing.T) {
	boxes, md, scene := fixtureCropInputs(t)

	crop, err := CropToRibbon(boxes, md.Sections, md.ROIs, scene.Corner, 0)
	require.NoError(t, err)

	// Every box takes part in the classification, including the one outside the scene.
	assert.Equal(t, RibbonAssignment{0, 1, 2}, crop.Sections)
	assert.Equal(t, RibbonAssignment{0}, crop.ROIs)
	assert.Equal(t, 2, crop.Members)
	assert.False(t, crop.Empty())

	// Member bounds grown by one pixel stay inside the selection box.
	assert.Equal(t, Point{X: 10, Y: 10}, crop.Min)
	assert.Equal(t, Point{X: 110, Y: 90}, crop.Max)

	got := crop.Apply(scene)
	assert.Equal(t, BoxPix{Corner: image.Point{X: 1410, Y: 510}, Size: image.Point{X: 100, Y: 80}}, got)
}

func TestCropToRibbon_GrowsToMembers(t *testing.T) {
	boxes := []BoxPix{{Corner: image.Point{X: 10, Y: 10}, Size: image.Point{X: 20, Y: 20}}}
	sections := []Polygon{{Points: []Point{{X: 5, Y: 12}, {X: 40, Y: 12}, {X: 40, Y: 18.5}}}}

	crop, err := CropToRibbon(boxes, sections, nil, image.Point{}, 0)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 4, Y: 10}, crop.Min)
	assert.Equal(t, Point{X: 41, Y: 30}, crop.Max)

	got := crop.Apply(BoxPix{Corner: image.Point{X: 100, Y: 100}, Size: image.Point{X: 50, Y: 50}})
	assert.Equal(t, BoxPix{Corner: image.Point{X: 104, Y: 110}, Size: image.Point{X: 37, Y: 20}}, got)
}

func TestCropToRibbon_Empty(t *testing.T) {
	boxes := []BoxPix{
		{Corner: image.Point{X: 0, Y: 0}, Size: image.Point{X: 10, Y: 10}},
		{Corner: image.Point{X: 100, Y: 0}, Size: image.Point{X: 10, Y: 10}},
	}
	sections := []Polygon{{Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}}

	crop, err := CropToRibbon(boxes, sections, nil, image.Point{}, 1)
	require.NoError(t, err)
	assert.True(t, crop.Empty())
	// With no members the crop is the selection box itself.
	assert.Equal(t, Point{X: 100, Y: 0}, crop.Min)
	assert.Equal(t, Point{X: 110, Y: 10}, crop.Max)
}

func TestCropToRibbon_SkipsPolygonsWithoutPoints(t *testing.T) {
	boxes := []BoxPix{{Corner: image.Point{X: 0, Y: 0}, Size: image.Point{X: 10, Y: 10}}}
	sections := []Polygon{{Points: nil}}

	crop, err := CropToRibbon(boxes, sections, []Polygon{{Points: []Point{}}}, image.Point{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, crop.Members)
	assert.True(t, crop.Empty())
	assert.Equal(t, Point{X: 0, Y: 0}, crop.Min)
	assert.Equal(t, Point{X: 10, Y: 10}, crop.Max)
}

func TestCropToRibbon_OutOfRange(t *testing.T) {
	boxes, md, scene := fixtureCropInputs(t)
	for _, r := range []int{-1, 3, 10} {
		_, err := CropToRibbon(boxes, md.Sections, md.ROIs, scene.Corner, r)
		assert.True(t, errors.Is(err, ErrRibbonNotFound), "ribbon %d: got %v", r, err)
	}
}
