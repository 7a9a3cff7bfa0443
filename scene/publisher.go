package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SceneSummary is the event published after a scene geometry is computed.
type SceneSummary struct {
	File      string   `json:"file"`
	Scene     int      `json:"scene"`
	Ribbon    int      `json:"ribbon,omitempty"`
	AngleDeg  float64  `json:"angleDeg"`
	SceneBox  BoxPix   `json:"sceneBox"`
	AllScenes BoxPix   `json:"allScenes"`
	Ribbons   int      `json:"ribbons"`
	Sections  int      `json:"sections"`
	ROIs      int      `json:"rois"`
	Warnings  []string `json:"warnings,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Summarize builds the published summary of a geometry.
func Summarize(file string, g *Geometry) SceneSummary {
	return SceneSummary{
		File:      file,
		Scene:     g.Scene,
		Ribbon:    g.Ribbon,
		AngleDeg:  g.Frame.Angle * 180 / math.Pi,
		SceneBox:  g.SceneBox,
		AllScenes: g.AllScenes,
		Ribbons:   len(g.Boxes),
		Sections:  len(g.Sections),
		ROIs:      len(g.ROIs),
		Warnings:  append([]string(nil), g.Warnings...),
		Timestamp: time.Now().Unix(),
	}
}

// ErrNotConnected is returned when publishing without a connected client.
var ErrNotConnected = errors.New("MQTT client not connected")

// Publisher publishes scene summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          map[int]SceneSummary
	mu            sync.RWMutex
}

// NewPublisher creates a publisher writing below prefix.
// If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "cziscene"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
		last:          make(map[int]SceneSummary),
	}
}

// Topic returns the topic a scene summary is published to
func (p *Publisher) Topic(scene int) string {
	return fmt.Sprintf("%s/scene/%d", p.publishPrefix, scene)
}

// PublishScene publishes s to <prefix>/scene/<n>
func (p *Publisher) PublishScene(s SceneSummary) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling scene summary: %w", err)
	}

	topic := p.Topic(s.Scene)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.mu.Lock()
	p.last[s.Scene] = s
	p.mu.Unlock()
	return nil
}

// LastSummary returns the last summary published for a scene
func (p *Publisher) LastSummary(scene int) (SceneSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.last[scene]
	return s, ok
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
