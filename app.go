package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/canvas"

	"github.com/kwv/cziscene/scene"
)

const (
	mqttConnectTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *scene.Config
	Logger     *log.Logger
	Decoder    scene.Decoder
	MQTTClient mqtt.Client
	Publisher  *scene.Publisher
	View       *sceneView
}

// NewApp creates an App reading slides through the bundle decoder
func NewApp(cfg *scene.Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.Default()
	}
	return &App{
		Config:  cfg,
		Logger:  logger,
		Decoder: scene.NewBundleDecoder(),
		View:    newSceneView(),
	}
}

// Close disconnects from the MQTT broker if connected
func (a *App) Close() {
	if a.MQTTClient != nil && a.MQTTClient.IsConnected() {
		a.MQTTClient.Disconnect(250)
		a.Logger.Debug("MQTT disconnected")
	}
}

func (a *App) openScene() (*scene.Scene, error) {
	opts := a.Config.Options()
	opts.Logger = a.Logger
	return scene.New(a.Config.File, a.Decoder, opts)
}

// needsImage reports whether any configured output uses scene pixels.
func (a *App) needsImage() bool {
	out := a.Config.Output
	return out.TIFF != "" || out.Preview != ""
}

// RunScene loads the configured scene, writes every configured output and
// publishes a summary when a broker is configured.
func (a *App) RunScene(ctx context.Context) error {
	g, img, err := a.loadScene()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.View.Update(a.Config.File, g, img)

	if err := a.writeOutputs(g, img); err != nil {
		return err
	}
	return a.publish(g)
}

// loadScene runs the scene up to the state the outputs need. The image is nil
// unless an output uses it.
func (a *App) loadScene() (*scene.Geometry, image.Image, error) {
	sc, err := a.openScene()
	if err != nil {
		return nil, nil, err
	}

	if a.needsImage() {
		if err := sc.LoadImage(); err != nil {
			return nil, nil, err
		}
	} else if err := sc.LoadMetadata(); err != nil {
		return nil, nil, err
	}

	g, err := sc.Geometry()
	if err != nil {
		return nil, nil, err
	}
	if sc.State() != scene.ImageLoaded {
		return g, nil, nil
	}
	img, err := sc.Image()
	if err != nil {
		return nil, nil, err
	}
	return g, img, nil
}

func (a *App) writeOutputs(g *scene.Geometry, img image.Image) error {
	out := a.Config.Output

	if out.Geometry != "" {
		if err := scene.SaveGeometry(out.Geometry, a.Config.File, g); err != nil {
			return err
		}
		a.Logger.Info("geometry written", "path", out.Geometry)
	}

	if out.GeoJSON != "" {
		data, err := scene.ToFeatureCollection(g).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding GeoJSON: %w", err)
		}
		if err := writeFile(out.GeoJSON, data); err != nil {
			return err
		}
		a.Logger.Info("GeoJSON written", "path", out.GeoJSON, "features", len(g.Sections)+len(g.ROIs)+len(g.Boxes))
	}

	if out.TIFF != "" {
		if err := scene.WriteTIFF(out.TIFF, img, out.Downsample); err != nil {
			return err
		}
		a.Logger.Info("scene image written", "path", out.TIFF, "downsample", out.Downsample)
	}

	if out.Preview != "" {
		renderer := scene.NewPreviewRenderer()
		renderer.Downsample = out.Downsample
		if err := createWith(out.Preview, func(f *os.File) error {
			return renderer.WritePNG(f, img, g)
		}); err != nil {
			return err
		}
		a.Logger.Info("preview written", "path", out.Preview)
	}

	if out.SVG != "" {
		if err := createWith(out.SVG, func(f *os.File) error {
			return a.vectorRenderer().RenderToSVG(f, g)
		}); err != nil {
			return err
		}
		a.Logger.Info("overlay written", "path", out.SVG)
	}

	if out.OverlayPNG != "" {
		if err := createWith(out.OverlayPNG, func(f *os.File) error {
			return a.vectorRenderer().RenderToPNG(f, g)
		}); err != nil {
			return err
		}
		a.Logger.Info("overlay written", "path", out.OverlayPNG, "dpi", a.Config.VectorResolution)
	}
	return nil
}

func (a *App) vectorRenderer() *scene.VectorRenderer {
	r := scene.NewVectorRenderer()
	if a.Config.VectorResolution > 0 {
		r.Resolution = canvas.DPI(a.Config.VectorResolution)
	}
	return r
}

// connectMQTT sets up the publisher on first use. Without a broker it leaves
// the publisher nil.
func (a *App) connectMQTT() error {
	if a.Publisher != nil {
		return nil
	}
	client, err := scene.ConnectMQTT(a.Config.MQTT, mqttConnectTimeout, a.Logger)
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	a.MQTTClient = client
	a.Publisher = scene.NewPublisher(client, scene.ResolveMQTT(a.Config.MQTT).PublishPrefix)
	return nil
}

func (a *App) publish(g *scene.Geometry) error {
	if err := a.connectMQTT(); err != nil {
		return err
	}
	if a.Publisher == nil {
		return nil
	}
	summary := scene.Summarize(a.Config.File, g)
	if err := a.Publisher.PublishScene(summary); err != nil {
		return err
	}
	a.Logger.Info("scene summary published", "topic", a.Publisher.Topic(g.Scene))
	return nil
}

// RunMontage composites every tile of the slide and writes the result as TIFF.
func (a *App) RunMontage(out string) error {
	bg, err := a.Config.BackgroundColor()
	if err != nil {
		return err
	}
	sc, err := a.openScene()
	if err != nil {
		return err
	}
	m, err := sc.LoadMontage(bg)
	if err != nil {
		return err
	}
	if err := scene.WriteTIFF(out, m.Image, a.Config.Output.Downsample); err != nil {
		return err
	}
	a.Logger.Info("montage written", "path", out, "downsample", a.Config.Output.Downsample)
	return nil
}

// RunService loads the scene, then serves it over HTTP until ctx is cancelled.
func (a *App) RunService(ctx context.Context) error {
	if err := a.RunScene(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.HTTP.Port),
		Handler:           newHTTPServer(a.View, a.vectorRenderer(), a.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// LocateOptions selects what RunLocate maps back to stage coordinates.
type LocateOptions struct {
	Geometry string        // geometry record written by the scene command
	GeoJSON  string        // optional feature collection in scene pixels
	Points   []scene.Point // scene pixel positions
	MaxAge   time.Duration // records older than this are recomputed; 0 only checks the slide
}

// StagePoint pairs a scene pixel position with its stage coordinates.
type StagePoint struct {
	Pixel scene.Point `json:"pixel"`
	Stage scene.Point `json:"stage"`
}

// LocateResult is the JSON document written by RunLocate.
type LocateResult struct {
	File     string          `json:"file"`
	Scene    int             `json:"scene"`
	Ribbon   int             `json:"ribbon,omitempty"`
	Points   []StagePoint    `json:"points,omitempty"`
	Sections [][]scene.Point `json:"sections,omitempty"`
	ROIs     [][]scene.Point `json:"rois,omitempty"`
}

// RunLocate maps scene pixel positions and polygons back to stage
// coordinates using a stored geometry record. A stale record is recomputed
// from its slide and saved again before use.
func (a *App) RunLocate(w io.Writer, opts LocateOptions) error {
	rec, err := scene.LoadGeometry(opts.Geometry)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no geometry record at %s", opts.Geometry)
	}

	if rec.IsStale(opts.MaxAge) {
		a.Logger.Warn("geometry record is stale, recomputing", "path", opts.Geometry, "file", rec.File)
		if rec, err = a.refreshGeometry(opts.Geometry, rec); err != nil {
			return err
		}
	}

	g := rec.Geometry
	result := LocateResult{File: rec.File, Scene: g.Scene, Ribbon: g.Ribbon}
	for _, p := range opts.Points {
		result.Points = append(result.Points, StagePoint{Pixel: p, Stage: g.ToStage(p)})
	}

	if opts.GeoJSON != "" {
		data, err := os.ReadFile(opts.GeoJSON)
		if err != nil {
			return fmt.Errorf("reading %s: %w", opts.GeoJSON, err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", opts.GeoJSON, err)
		}
		sections, rois, err := scene.PolygonsFromFeatureCollection(fc)
		if err != nil {
			return err
		}
		result.Sections = stagePolygons(g, sections)
		result.ROIs = stagePolygons(g, rois)
	}

	a.Logger.Debug("located", "points", len(result.Points), "sections", len(result.Sections), "rois", len(result.ROIs))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// refreshGeometry recomputes the scene a record was made for and overwrites it.
func (a *App) refreshGeometry(path string, old *scene.GeometryRecord) (*scene.GeometryRecord, error) {
	a.Config.File = old.File
	a.Config.Scene = old.Geometry.Scene
	a.Config.Ribbon = old.Geometry.Ribbon
	a.Config.Output = scene.OutputConfig{Downsample: a.Config.Output.Downsample}

	g, _, err := a.loadScene()
	if err != nil {
		return nil, fmt.Errorf("recomputing geometry of %s: %w", old.File, err)
	}
	if err := scene.SaveGeometry(path, old.File, g); err != nil {
		return nil, err
	}
	return scene.LoadGeometry(path)
}

func stagePolygons(g *scene.Geometry, polys []scene.Polygon) [][]scene.Point {
	out := make([][]scene.Point, 0, len(polys))
	for _, p := range polys {
		pts := make([]scene.Point, len(p.Points))
		for i, q := range p.Points {
			pts[i] = g.ToStage(q)
		}
		out = append(out, pts)
	}
	return out
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// createWith creates path, including parent directories, and hands it to fn.
func createWith(path string, fn func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
