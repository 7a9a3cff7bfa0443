package scene

import (
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	File   string       `yaml:"file" json:"file"`
	Scene  int          `yaml:"scene" json:"scene"`                       // 1-based
	Ribbon int          `yaml:"ribbon,omitempty" json:"ribbon,omitempty"` // 1-based, 0 disables
	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`
	// Background fills montage gaps, as "#RRGGBB"; empty leaves them black.
	Background       string     `yaml:"background,omitempty" json:"background,omitempty"`
	Paths            QueryPaths `yaml:"paths,omitempty" json:"paths,omitempty"`
	MQTT             MQTTConfig `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	HTTP             HTTPConfig `yaml:"http,omitempty" json:"http,omitempty"`
	VectorResolution float64    `yaml:"vectorResolution,omitempty" json:"vectorResolution,omitempty"` // Vector PNG DPI
}

// OutputConfig lists the optional export destinations
type OutputConfig struct {
	Metadata   string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	TIFF       string `yaml:"tiff,omitempty" json:"tiff,omitempty"`
	Geometry   string `yaml:"geometry,omitempty" json:"geometry,omitempty"`
	GeoJSON    string `yaml:"geojson,omitempty" json:"geojson,omitempty"`
	Preview    string `yaml:"preview,omitempty" json:"preview,omitempty"`
	SVG        string `yaml:"svg,omitempty" json:"svg,omitempty"`
	OverlayPNG string `yaml:"overlayPng,omitempty" json:"overlayPng,omitempty"`
	Downsample int    `yaml:"downsample,omitempty" json:"downsample,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// HTTPConfig holds the serve command settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Scene == 0 {
		c.Scene = 1
	}
	if c.Output.Downsample == 0 {
		c.Output.Downsample = DefaultDownsample
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = "cziscene"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "cziscene"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.VectorResolution == 0 {
		c.VectorResolution = 25.4
	}
	c.Paths = c.Paths.WithDefaults()
}

// Validate checks value ranges after defaults have been applied
func (c *Config) Validate() error {
	if c.Scene < 1 {
		return fmt.Errorf("scene must be 1 or greater, got %d", c.Scene)
	}
	if c.Output.Downsample < 1 {
		return fmt.Errorf("output.downsample must be 1 or greater, got %d", c.Output.Downsample)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.VectorResolution < 0 {
		return fmt.Errorf("vectorResolution must be positive, got %g", c.VectorResolution)
	}
	if _, err := c.BackgroundColor(); err != nil {
		return err
	}
	return nil
}

// BackgroundColor parses Background; an empty value yields nil.
func (c *Config) BackgroundColor() (color.Color, error) {
	if c.Background == "" {
		return nil, nil
	}
	return parseHexColor(c.Background)
}

// Options converts the configuration into scene options.
func (c *Config) Options() Options {
	return Options{
		Scene:   c.Scene,
		Ribbon:  c.Ribbon,
		MetaOut: c.Output.Metadata,
		Paths:   c.Paths,
	}
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// parseHexColor parses a hex color string like "#FF6B6B"
func parseHexColor(hex string) (color.RGBA, error) {
	s := hex
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: expected #RRGGBB", hex)
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return color.RGBA{r, g, b, 255}, nil
}
