package main

import (
	"encoding/json"
	"image"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kwv/cziscene/scene"
)

// sceneView holds the most recently loaded scene for the HTTP handlers.
type sceneView struct {
	mu      sync.RWMutex
	file    string
	geom    *scene.Geometry
	img     image.Image
	updated time.Time
}

func newSceneView() *sceneView {
	return &sceneView{}
}

// Update replaces the served scene. img may be nil.
func (v *sceneView) Update(file string, g *scene.Geometry, img image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.file = file
	v.geom = g
	v.img = img
	v.updated = time.Now()
}

// Snapshot returns the served scene; g is nil until the first Update.
func (v *sceneView) Snapshot() (file string, g *scene.Geometry, img image.Image) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.file, v.geom, v.img
}

func (v *sceneView) lastUpdated() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updated
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(view *sceneView, overlay *scene.VectorRenderer, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("HTTP request", "path", r.URL.Path, "remote", r.RemoteAddr)
		_, g, img := view.Snapshot()
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			HasScene    bool      `json:"hasScene"`
			HasImage    bool      `json:"hasImage"`
			LastUpdated time.Time `json:"lastUpdated,omitempty"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			HasScene:    g != nil,
			HasImage:    img != nil,
			LastUpdated: view.lastUpdated(),
		}
		writeJSON(w, logger, status)
	})

	mux.HandleFunc("/geometry.json", func(w http.ResponseWriter, r *http.Request) {
		file, g, _ := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, scene.GeometryRecord{File: file, Geometry: g, LastUpdated: view.lastUpdated().Unix()})
	})

	mux.HandleFunc("/polygons.geojson", func(w http.ResponseWriter, r *http.Request) {
		_, g, _ := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}
		data, err := scene.ToFeatureCollection(g).MarshalJSON()
		if err != nil {
			logger.Error("encoding GeoJSON", "err", err)
			http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	})

	// Preview endpoint; ?downsample=N overrides the default block size
	mux.HandleFunc("/preview.png", func(w http.ResponseWriter, r *http.Request) {
		_, g, img := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}

		renderer := scene.NewPreviewRenderer()
		if s := r.URL.Query().Get("downsample"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				http.Error(w, "downsample must be a positive integer", http.StatusBadRequest)
				return
			}
			renderer.Downsample = n
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.WritePNG(w, img, g); err != nil {
			logger.Error("encoding preview PNG", "err", err)
		}
	})

	mux.HandleFunc("/overlay.svg", func(w http.ResponseWriter, r *http.Request) {
		_, g, _ := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := overlay.RenderToSVG(w, g); err != nil {
			logger.Error("encoding overlay SVG", "err", err)
		}
	})

	mux.HandleFunc("/overlay.png", func(w http.ResponseWriter, r *http.Request) {
		_, g, _ := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := overlay.RenderToPNG(w, g); err != nil {
			logger.Error("encoding overlay PNG", "err", err)
		}
	})

	// Maps a scene pixel position back to stage coordinates
	mux.HandleFunc("/stage", func(w http.ResponseWriter, r *http.Request) {
		_, g, _ := view.Snapshot()
		if g == nil {
			http.Error(w, "No scene loaded", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		if errX != nil || errY != nil || math.IsNaN(x+y) || math.IsInf(x+y, 0) {
			http.Error(w, "x and y must be numbers", http.StatusBadRequest)
			return
		}
		p := scene.Point{X: x, Y: y}
		writeJSON(w, logger, StagePoint{Pixel: p, Stage: g.ToStage(p)})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encoding JSON response", "err", err)
	}
}
