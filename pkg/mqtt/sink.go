package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tempest-bridge/tempest-go/pkg/host"
)

// Defaults.
const (
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBaseTopic       = "tempest"
	DefaultClientID        = "tempest-bridge"
	DefaultPublishTimeout  = 5 * time.Second

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Errors.
var (
	ErrConnect        = errors.New("mqtt connect failed")
	ErrPublishTimeout = errors.New("mqtt publish timed out")
)

// Config configures a Sink.
type Config struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	DiscoveryPrefix string
	BaseTopic       string
	PublishTimeout  time.Duration
	Logger          *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.BaseTopic == "" {
		c.BaseTopic = DefaultBaseTopic
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Publisher is the part of a paho client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Sink is a host.EntitySink that publishes to MQTT.
type Sink struct {
	client Publisher
	cfg    Config
	logger *slog.Logger
	closer func()
}

var _ host.EntitySink = (*Sink)(nil)

// NewSink creates a sink over an existing client.
func NewSink(client Publisher, cfg Config) *Sink {
	cfg.applyDefaults()
	return &Sink{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "mqtt"),
	}
}

// Connect dials the broker and returns a sink that owns the connection.
// The bridge is marked online on every (re)connect.
func Connect(ctx context.Context, cfg Config) (*Sink, error) {
	cfg.applyDefaults()
	statusTopic := StatusTopic(cfg.BaseTopic)

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Minute)
	opts.SetOrderMatters(false)
	opts.SetWill(statusTopic, PayloadOffline, 1, true)
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		cfg.Logger.Warn("mqtt: connection lost", "broker", cfg.Broker, "error", err)
	})
	opts.SetOnConnectHandler(func(c paho.Client) {
		cfg.Logger.Info("mqtt: connected", "broker", cfg.Broker)
		c.Publish(statusTopic, 1, true, PayloadOnline)
	})

	client := paho.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	s := NewSink(client, cfg)
	s.closer = func() {
		s.publish(statusTopic, true, PayloadOffline)
		client.Disconnect(250)
	}
	return s, nil
}

// Close marks the bridge offline and disconnects a sink created by Connect.
func (s *Sink) Close() {
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
}

// Announce publishes the discovery config and the current state.
func (s *Sink) Announce(rec host.EntityRecord) error {
	cfg, err := json.Marshal(s.discoveryConfig(rec))
	if err != nil {
		return fmt.Errorf("encode discovery config: %w", err)
	}
	if err := s.publish(s.configTopic(rec), true, cfg); err != nil {
		return err
	}
	return s.Update(rec)
}

// Update publishes the entity state.
func (s *Sink) Update(rec host.EntityRecord) error {
	payload, err := json.Marshal(statePayload{
		Value:      rec.State.Value,
		Available:  rec.State.Available,
		Attributes: rec.State.Attributes,
	})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return s.publish(StateTopic(s.cfg.BaseTopic, rec.UniqueID), true, payload)
}

// Retract clears the discovery config so the entity is removed.
func (s *Sink) Retract(rec host.EntityRecord) error {
	if err := s.publish(s.configTopic(rec), true, ""); err != nil {
		return err
	}
	return s.publish(StateTopic(s.cfg.BaseTopic, rec.UniqueID), true, "")
}

func (s *Sink) publish(topic string, retained bool, payload any) error {
	token := s.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	s.logger.Debug("mqtt: published", "topic", topic)
	return nil
}

func (s *Sink) configTopic(rec host.EntityRecord) string {
	return fmt.Sprintf("%s/%s/%s/config", s.cfg.DiscoveryPrefix, Component(rec.Platform), ObjectID(rec.UniqueID))
}

// --- Topics and payloads ---

var unsafeTopicChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ObjectID converts a unique ID into a topic-safe object ID.
func ObjectID(uniqueID string) string {
	return unsafeTopicChars.ReplaceAllString(uniqueID, "_")
}

// StateTopic returns the state topic of an entity.
func StateTopic(base, uniqueID string) string {
	return fmt.Sprintf("%s/%s/state", base, ObjectID(uniqueID))
}

// StatusTopic returns the bridge availability topic.
func StatusTopic(base string) string {
	return base + "/bridge/status"
}

// Component maps a platform to its MQTT discovery component. MQTT discovery
// has no weather component, so weather entities are published as sensors
// carrying the forecast in their attributes.
func Component(p host.Platform) string {
	if p == host.PlatformWeather {
		return string(host.PlatformSensor)
	}
	return string(p)
}

type statePayload struct {
	Value      any            `json:"value"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type discoveryConfig struct {
	Name                   string          `json:"name"`
	UniqueID               string          `json:"unique_id"`
	ObjectID               string          `json:"object_id"`
	StateTopic             string          `json:"state_topic"`
	ValueTemplate          string          `json:"value_template"`
	JSONAttributesTopic    string          `json:"json_attributes_topic"`
	JSONAttributesTemplate string          `json:"json_attributes_template"`
	AvailabilityTopic      string          `json:"availability_topic"`
	UnitOfMeasurement      string          `json:"unit_of_measurement,omitempty"`
	DeviceClass            string          `json:"device_class,omitempty"`
	Device                 discoveryDevice `json:"device"`
}

func (s *Sink) discoveryConfig(rec host.EntityRecord) discoveryConfig {
	stateTopic := StateTopic(s.cfg.BaseTopic, rec.UniqueID)
	cfg := discoveryConfig{
		Name:                   rec.Name,
		UniqueID:               rec.UniqueID,
		ObjectID:               ObjectID(rec.UniqueID),
		StateTopic:             stateTopic,
		ValueTemplate:          "{{ value_json.value }}",
		JSONAttributesTopic:    stateTopic,
		JSONAttributesTemplate: "{{ value_json.attributes | tojson }}",
		AvailabilityTopic:      StatusTopic(s.cfg.BaseTopic),
		UnitOfMeasurement:      rec.State.Unit,
		DeviceClass:            rec.State.DeviceClass,
		Device: discoveryDevice{
			Name:         rec.Device.Name,
			Manufacturer: rec.Device.Manufacturer,
			Model:        rec.Device.Model,
			SWVersion:    rec.Device.SWVersion,
		},
	}
	if cfg.DeviceClass == "enum" {
		cfg.DeviceClass = ""
	}
	for _, id := range rec.Device.Identifiers {
		cfg.Device.Identifiers = append(cfg.Device.Identifiers, id.Domain+"_"+id.ID)
	}
	if via := rec.Device.ViaDevice; via != nil {
		cfg.Device.ViaDevice = via.Domain + "_" + via.ID
	}
	return cfg
}
