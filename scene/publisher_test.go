package scene

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishScene(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lab")

	g := renderFixtureGeometry(t, 1)
	require.NoError(t, p.PublishScene(Summarize("slide.czi", g)))

	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lab/scene/2", msgs[0].Topic)
	assert.Equal(t, byte(0), msgs[0].QoS)
	assert.True(t, msgs[0].Retain)

	var got SceneSummary
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, "slide.czi", got.File)
	assert.Equal(t, 2, got.Scene)
	assert.Equal(t, 1, got.Ribbon)
	assert.Equal(t, 1, got.Sections)
	assert.Equal(t, 1, got.ROIs)
	assert.Equal(t, g.SceneBox, got.SceneBox)

	last, ok := p.LastSummary(2)
	assert.True(t, ok)
	assert.Equal(t, got.Timestamp, last.Timestamp)
}

func TestPublisher_NotConnected(t *testing.T) {
	assert.ErrorIs(t, NewPublisher(nil, "").PublishScene(SceneSummary{Scene: 1}), ErrNotConnected)
	assert.ErrorIs(t, NewPublisher(NewMockClient(), "").PublishScene(SceneSummary{Scene: 1}), ErrNotConnected)
}

func TestPublisher_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	boom := errors.New("broker rejected")
	client.SetPublishError(boom)

	p := NewPublisher(client, "")
	err := p.PublishScene(SceneSummary{Scene: 3})
	assert.ErrorIs(t, err, boom)
	_, ok := p.LastSummary(3)
	assert.False(t, ok)
}

func TestPublisher_Settings(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "")
	assert.Equal(t, "cziscene/scene/4", p.Topic(4))

	p.SetQoS(1)
	p.SetQoS(7) // ignored
	p.SetRetain(false)
	require.NoError(t, p.PublishScene(SceneSummary{Scene: 4}))

	msg := client.GetPublishedMessages()[0]
	assert.Equal(t, byte(1), msg.QoS)
	assert.False(t, msg.Retain)
}

func TestSummarize(t *testing.T) {
	g := renderFixtureGeometry(t, 0)
	s := Summarize("slide", g)
	assert.Equal(t, 2, s.Ribbons)
	assert.Equal(t, 2, s.Sections)
	assert.InDelta(t, 0, s.AngleDeg, 1e-9)
	assert.WithinDuration(t, time.Now(), time.Unix(s.Timestamp, 0), time.Minute)
}

func TestResolveMQTT(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_CLIENT_ID", "")
	t.Setenv("MQTT_USERNAME", "")
	t.Setenv("MQTT_PASSWORD", "")
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	cfg := ResolveMQTT(MQTTConfig{Broker: "tcp://file:1883", Username: "u"})
	assert.Equal(t, "tcp://env:1883", cfg.Broker)
	assert.Equal(t, "u", cfg.Username)
	assert.Equal(t, "cziscene", cfg.ClientID)
	assert.Equal(t, "cziscene", cfg.PublishPrefix)
}

func TestConnectMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	client, err := ConnectMQTT(MQTTConfig{}, time.Second, quietLogger())
	assert.NoError(t, err)
	assert.Nil(t, client)
}
