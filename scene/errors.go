package scene

import "errors"

var (
	// ErrInvalidMarkerConfiguration is returned when the calibration markers are
	// not exactly three distinct points from which a rotation can be derived.
	ErrInvalidMarkerConfiguration = errors.New("invalid marker configuration")

	// ErrSceneNotFound is returned when the requested scene index is absent.
	ErrSceneNotFound = errors.New("scene not found")

	// ErrRibbonNotFound is returned when the requested ribbon index exceeds the
	// number of selection boxes.
	ErrRibbonNotFound = errors.New("ribbon not found")

	// ErrEmptyRibbonAssignment marks a ribbon with no polygons assigned to it.
	// It is recorded as a warning; the crop falls back to the selection box.
	ErrEmptyRibbonAssignment = errors.New("no polygons assigned to ribbon")

	// ErrTileDimensionMismatch is returned when present tiles disagree on pixel
	// type or the coordinate list does not match the tile list.
	ErrTileDimensionMismatch = errors.New("tile dimension mismatch")

	// ErrNoTiles is returned when a montage is requested with no present tile.
	ErrNoTiles = errors.New("no tiles present")

	// ErrNotLoaded is returned when state is read before the load that produces it.
	ErrNotLoaded = errors.New("not loaded")

	// ErrMalformedMetadata wraps missing or unparsable metadata values.
	ErrMalformedMetadata = errors.New("malformed metadata")
)
