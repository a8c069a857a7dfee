package heatcense

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublisherConfig tunes the MQTT state publisher and Home Assistant
// discovery documents.
type PublisherConfig struct {
	Broker                string
	ClientID              string
	Username              string
	Password              string
	TopicPrefix           string
	QoS                   byte
	CountPersonsDebounce  time.Duration
	AmbientQuantumCelsius float64

	HomeAssistantEnabled bool
	DiscoveryPrefix      string
	DeviceName           string
	DeviceIdentifier     string // stable id, e.g. from DeviceIdentity()
}

// Publisher maintains the MQTT connection and publishes occupancy and
// diagnostic state, reconnecting with the paho client's built-in
// exponential backoff and republishing Home Assistant discovery
// documents once a (re)connection completes.
type Publisher struct {
	cfg    PublisherConfig
	client mqtt.Client

	mu              sync.Mutex
	pendingCount    int
	pendingSince    time.Time
	lastCount       int
	haveLastCount   bool
	lastAmbientQ    float64
	haveLastAmbient bool
}

// NewPublisher connects to cfg.Broker and returns a ready Publisher. The
// last-will topic is set before connecting so the broker marks this
// device offline immediately if the process dies uncleanly.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "heatcense"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}

	p := &Publisher{cfg: cfg}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetWill(p.statusTopic(), "offline", cfg.QoS, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			c.Publish(p.statusTopic(), cfg.QoS, true, "online")
			if cfg.HomeAssistantEnabled {
				_ = p.publishDiscovery()
			}
		})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = fmt.Errorf("timed out connecting to %s", cfg.Broker)
		}
		return nil, &BrokerError{Op: "connect", Err: err}
	}

	return p, nil
}

func (p *Publisher) statusTopic() string {
	return fmt.Sprintf("%s/%s/status", p.cfg.TopicPrefix, p.cfg.DeviceIdentifier)
}

func (p *Publisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceIdentifier, suffix)
}

// PublishOccupancy publishes the occupied/count state. A new count is
// only published once it has held steady for
// CountPersonsDebounce, so a person briefly crossing the frame's edge
// does not chatter the topic.
func (p *Publisher) PublishOccupancy(update OccupancyUpdate) error {
	p.mu.Lock()
	if !p.haveLastCount {
		p.lastCount = update.CountPersons
		p.haveLastCount = true
		p.pendingCount = update.CountPersons
		p.pendingSince = update.Timestamp
		count := p.lastCount
		p.mu.Unlock()
		return p.publishCount(count)
	}

	if update.CountPersons != p.pendingCount {
		p.pendingCount = update.CountPersons
		p.pendingSince = update.Timestamp
	}

	publish := p.pendingCount != p.lastCount && update.Timestamp.Sub(p.pendingSince) >= p.cfg.CountPersonsDebounce
	var count int
	if publish {
		p.lastCount = p.pendingCount
		count = p.lastCount
	}
	p.mu.Unlock()

	if publish {
		return p.publishCount(count)
	}
	return nil
}

func (p *Publisher) publishCount(count int) error {
	occupiedPayload := "OFF"
	if count > 0 {
		occupiedPayload = "ON"
	}
	if token := p.client.Publish(p.topic("count"), p.cfg.QoS, true, fmt.Sprintf("%d", count)); token.Wait() && token.Error() != nil {
		return &BrokerError{Op: "publish count", Err: token.Error()}
	}
	if token := p.client.Publish(p.topic("occupied"), p.cfg.QoS, true, occupiedPayload); token.Wait() && token.Error() != nil {
		return &BrokerError{Op: "publish occupied", Err: token.Error()}
	}
	return nil
}

// PublishAmbient publishes the room's ambient temperature, quantized to
// AmbientQuantumCelsius so small sensor jitter does not republish on
// every frame.
func (p *Publisher) PublishAmbient(celsius float64) error {
	q := p.cfg.AmbientQuantumCelsius
	if q <= 0 {
		q = 0.5
	}
	quantized := math.Round(celsius/q) * q

	p.mu.Lock()
	changed := !p.haveLastAmbient || quantized != p.lastAmbientQ
	if changed {
		p.lastAmbientQ = quantized
		p.haveLastAmbient = true
	}
	p.mu.Unlock()

	if !changed {
		return nil
	}
	if token := p.client.Publish(p.topic("ambient"), p.cfg.QoS, true, fmt.Sprintf("%.1f", quantized)); token.Wait() && token.Error() != nil {
		return &BrokerError{Op: "publish ambient", Err: token.Error()}
	}
	return nil
}

type objectPayload struct {
	ID        uint64  `json:"id"`
	Class     string  `json:"class"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
}

// PublishObjects publishes one retained message per live tracked object
// to objects/<id>, and clears the topics of any objects dropped this
// frame so a removed object doesn't linger as stale retained state.
func (p *Publisher) PublishObjects(objects []Object, dropped []uint64) error {
	for _, obj := range objects {
		payload, err := json.Marshal(objectPayload{
			ID:        obj.ID,
			Class:     obj.Class.String(),
			CentroidX: obj.CentroidX,
			CentroidY: obj.CentroidY,
		})
		if err != nil {
			return err
		}
		topic := p.topic(fmt.Sprintf("objects/%d", obj.ID))
		if token := p.client.Publish(topic, p.cfg.QoS, true, payload); token.Wait() && token.Error() != nil {
			return &BrokerError{Op: "publish " + topic, Err: token.Error()}
		}
	}
	for _, id := range dropped {
		topic := p.topic(fmt.Sprintf("objects/%d", id))
		if token := p.client.Publish(topic, p.cfg.QoS, true, []byte(nil)); token.Wait() && token.Error() != nil {
			return &BrokerError{Op: "clear " + topic, Err: token.Error()}
		}
	}
	return nil
}

// Close publishes an explicit offline status and disconnects.
func (p *Publisher) Close() error {
	token := p.client.Publish(p.statusTopic(), p.cfg.QoS, true, "offline")
	token.WaitTimeout(2 * time.Second)
	p.client.Disconnect(250)
	return nil
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type haDiscoveryDoc struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Device            haDevice `json:"device"`
}

// publishDiscovery publishes the Home Assistant MQTT discovery
// documents for the occupancy binary sensor, the person-count sensor,
// and the ambient-temperature sensor.
func (p *Publisher) publishDiscovery() error {
	dev := haDevice{
		Identifiers:  []string{p.cfg.DeviceIdentifier},
		Name:         p.cfg.DeviceName,
		Manufacturer: "heatcense",
		Model:        "thermal presence sensor",
	}

	docs := map[string]haDiscoveryDoc{
		fmt.Sprintf("binary_sensor/%s/occupancy/config", p.cfg.DeviceIdentifier): {
			Name:              p.cfg.DeviceName + " Occupancy",
			UniqueID:          p.cfg.DeviceIdentifier + "_occupancy",
			StateTopic:        p.topic("occupied"),
			AvailabilityTopic: p.statusTopic(),
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			DeviceClass:       "occupancy",
			Device:            dev,
		},
		fmt.Sprintf("sensor/%s/count/config", p.cfg.DeviceIdentifier): {
			Name:              p.cfg.DeviceName + " Person Count",
			UniqueID:          p.cfg.DeviceIdentifier + "_count",
			StateTopic:        p.topic("count"),
			AvailabilityTopic: p.statusTopic(),
			Device:            dev,
		},
		fmt.Sprintf("sensor/%s/ambient/config", p.cfg.DeviceIdentifier): {
			Name:              p.cfg.DeviceName + " Ambient Temperature",
			UniqueID:          p.cfg.DeviceIdentifier + "_ambient",
			StateTopic:        p.topic("ambient"),
			AvailabilityTopic: p.statusTopic(),
			DeviceClass:       "temperature",
			UnitOfMeasurement: "°C",
			Device:            dev,
		},
	}

	for suffix, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/%s", p.cfg.DiscoveryPrefix, suffix)
		if token := p.client.Publish(topic, p.cfg.QoS, true, payload); token.Wait() && token.Error() != nil {
			return &BrokerError{Op: "publish discovery " + topic, Err: token.Error()}
		}
	}
	return nil
}
