// Package config provides TOML configuration loading for heatcense.
//
// The configuration file supports the following structure:
//
//	[camera]
//	kind = "mlx90640"
//	bus = "/dev/i2c-1"
//	sample_interval_ms = 100
//	orientation = "normal"
//	flip_horizontal = false
//	flip_vertical = false
//
//	[streams]
//	[streams.mjpeg]
//	enabled = true
//	bind = "0.0.0.0:8080"
//	path = "/stream.mjpeg"
//	upscale_factor = 16
//	upscale_filter = "lanczos3"
//	colorize = "turbo"
//	overlay_temperature = true
//	overlay_units = "celsius"
//
//	[render]
//	temperature_range = "dynamic"
//	fixed_min_celsius = 18.0
//	fixed_max_celsius = 32.0
//	dynamic_window_frames = 32
//
//	[tracker]
//	weight_position = 1.0
//	weight_size = 0.5
//	weight_shape = 0.25
//	maximum_movement = 4.0
//	max_misses = 5
//	movement_epsilon = 0.5
//	stationary_timeout_s = 10800
//	minimum_size = 4
//
//	[mqtt]
//	broker = "tcp://localhost:1883"
//	client_id = ""
//	username = ""
//	password = ""
//	topic_prefix = "heatcense"
//	qos = 1
//	count_persons_debounce_ms = 500
//	ambient_quantum_celsius = 0.5
//
//	[mqtt.home_assistant]
//	enabled = true
//	discovery_prefix = "homeassistant"
//	device_name = "Living Room Presence"
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Camera kind: %s\n", cfg.Camera.Kind)
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the complete heatcense configuration.
type Config struct {
	Camera  CameraConfig  `toml:"camera"`
	Streams StreamsConfig `toml:"streams"`
	Render  RenderConfig  `toml:"render"`
	Tracker TrackerConfig `toml:"tracker"`
	MQTT    MQTTConfig    `toml:"mqtt"`
}

// CameraConfig selects and tunes the thermal imager.
type CameraConfig struct {
	// Kind names the chip: "grideye", "mlx90640", "mlx90641", or "fake".
	Kind string `toml:"kind"`
	// Bus is the I2C device node, e.g. "/dev/i2c-1". Ignored for "fake".
	Bus string `toml:"bus"`
	// SampleIntervalMS is the delay between samples in milliseconds.
	SampleIntervalMS int `toml:"sample_interval_ms"`
	// Orientation is one of "normal", "rotate90", "rotate180", "rotate270".
	Orientation string `toml:"orientation"`
	// FlipHorizontal mirrors the frame left-to-right after rotation.
	FlipHorizontal bool `toml:"flip_horizontal"`
	// FlipVertical mirrors the frame top-to-bottom after rotation.
	FlipVertical bool `toml:"flip_vertical"`
}

// StreamsConfig groups the optional output streams.
type StreamsConfig struct {
	MJPEG MJPEGConfig `toml:"mjpeg"`
}

// MJPEGConfig tunes the on-demand MJPEG HTTP stream.
type MJPEGConfig struct {
	Enabled            bool   `toml:"enabled"`
	Bind               string `toml:"bind"`
	Path               string `toml:"path"`
	UpscaleFactor      int    `toml:"upscale_factor"`
	UpscaleFilter      string `toml:"upscale_filter"` // nearest|triangle|catmull-rom|mitchell|lanczos3
	Colorize           string `toml:"colorize"`        // named gradient, default "turbo"
	OverlayTemperature bool   `toml:"overlay_temperature"`
	OverlayUnits       string `toml:"overlay_units"` // celsius|fahrenheit
}

// RenderConfig controls the colorization temperature range.
type RenderConfig struct {
	// TemperatureRange is "fixed" or "dynamic".
	TemperatureRange    string  `toml:"temperature_range"`
	FixedMinCelsius     float64 `toml:"fixed_min_celsius"`
	FixedMaxCelsius     float64 `toml:"fixed_max_celsius"`
	DynamicWindowFrames int     `toml:"dynamic_window_frames"`
}

// TrackerConfig tunes object association, aging and classification, plus
// cluster filtering and the background model's GMM parameters — all of
// it lives under one [tracker] table alongside the association and
// classification tunables.
type TrackerConfig struct {
	WeightPosition     float64 `toml:"weight_position"`
	WeightSize         float64 `toml:"weight_size"`
	WeightShape        float64 `toml:"weight_shape"`
	MaximumMovement    float64 `toml:"maximum_movement"`
	MaxMisses          int     `toml:"max_misses"`
	MovementEpsilon    float64 `toml:"movement_epsilon"`
	StationaryTimeoutS int     `toml:"stationary_timeout_s"`
	MinimumSize        int     `toml:"minimum_size"`

	MaxComponents                 int     `toml:"max_components"`
	LearningRate                  float64 `toml:"learning_rate"`
	InitialVariance               float64 `toml:"initial_variance"`
	InitialWeight                 float64 `toml:"initial_weight"`
	MatchThreshold                float64 `toml:"match_threshold"`
	BackgroundConfidenceThreshold float64 `toml:"background_confidence_threshold"`
}

// MQTTConfig tunes the state publisher.
type MQTTConfig struct {
	Broker                 string              `toml:"broker"`
	ClientID               string              `toml:"client_id"`
	Username               string              `toml:"username"`
	Password               string              `toml:"password"`
	TopicPrefix            string              `toml:"topic_prefix"`
	QoS                    int                 `toml:"qos"`
	CountPersonsDebounceMS int                 `toml:"count_persons_debounce_ms"`
	AmbientQuantumCelsius  float64             `toml:"ambient_quantum_celsius"`
	HomeAssistant          HomeAssistantConfig `toml:"home_assistant"`
}

// HomeAssistantConfig controls MQTT discovery document publishing.
type HomeAssistantConfig struct {
	Enabled         bool   `toml:"enabled"`
	DiscoveryPrefix string `toml:"discovery_prefix"`
	DeviceName      string `toml:"device_name"`
}

// Default returns heatcense's out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Kind:             "fake",
			Bus:              "/dev/i2c-1",
			SampleIntervalMS: 100,
			Orientation:      "normal",
			FlipHorizontal:   false,
			FlipVertical:     false,
		},
		Streams: StreamsConfig{
			MJPEG: MJPEGConfig{
				Enabled:            true,
				Bind:               "0.0.0.0:8080",
				Path:               "/stream.mjpeg",
				UpscaleFactor:      16,
				UpscaleFilter:      "lanczos3",
				Colorize:           "turbo",
				OverlayTemperature: true,
				OverlayUnits:       "celsius",
			},
		},
		Render: RenderConfig{
			TemperatureRange:    "dynamic",
			FixedMinCelsius:     18.0,
			FixedMaxCelsius:     32.0,
			DynamicWindowFrames: 32,
		},
		Tracker: TrackerConfig{
			WeightPosition:     1.0,
			WeightSize:         0.5,
			WeightShape:        0.25,
			MaximumMovement:    4.0,
			MaxMisses:          5,
			MovementEpsilon:    0.5,
			StationaryTimeoutS: 10800,
			MinimumSize:        4,

			MaxComponents:                 4,
			LearningRate:                  0.01,
			InitialVariance:               9.0,
			InitialWeight:                 0.05,
			MatchThreshold:                2.5,
			BackgroundConfidenceThreshold: 0.999,
		},
		MQTT: MQTTConfig{
			Broker:                 "tcp://localhost:1883",
			TopicPrefix:            "heatcense",
			QoS:                    1,
			CountPersonsDebounceMS: 500,
			AmbientQuantumCelsius:  0.5,
			HomeAssistant: HomeAssistantConfig{
				Enabled:         true,
				DiscoveryPrefix: "homeassistant",
				DeviceName:      "Presence Sensor",
			},
		},
	}
}

// Load reads and parses a TOML configuration file. If path is empty or
// the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := checkRemovedKeys(raw); err != nil {
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkRemovedKeys rejects configuration keys that look like stale or
// misspelled settings from an earlier revision of this file's schema,
// rather than silently ignoring them the way a plain toml.Decode would.
func checkRemovedKeys(raw map[string]interface{}) error {
	tracker, _ := raw["tracker"].(map[string]interface{})
	if tracker == nil {
		return nil
	}
	if _, ok := tracker["threshold"]; ok {
		return &configError{key: "tracker.threshold", msg: "removed: set tracker.maximum_movement instead"}
	}
	if _, ok := tracker["max_distance"]; ok {
		return &configError{key: "tracker.max_distance", msg: "renamed: use tracker.maximum_movement"}
	}
	if _, ok := tracker["maximum_mavement"]; ok {
		return &configError{key: "tracker.maximum_mavement", msg: "misspelled: use tracker.maximum_movement"}
	}
	return nil
}

type configError struct {
	key string
	msg string
}

func (e *configError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.key, e.msg)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Camera.Kind) {
	case "grideye", "mlx90640", "mlx90641", "fake":
	default:
		return &configError{key: "camera.kind", msg: fmt.Sprintf("unknown camera kind %q", c.Camera.Kind)}
	}
	if c.Camera.SampleIntervalMS <= 0 {
		return &configError{key: "camera.sample_interval_ms", msg: "must be positive"}
	}
	switch c.Camera.Orientation {
	case "normal", "rotate90", "rotate180", "rotate270":
	default:
		return &configError{key: "camera.orientation", msg: fmt.Sprintf("unknown orientation %q", c.Camera.Orientation)}
	}

	if c.Streams.MJPEG.Enabled {
		if c.Streams.MJPEG.UpscaleFactor <= 0 {
			return &configError{key: "streams.mjpeg.upscale_factor", msg: "must be positive"}
		}
		switch c.Streams.MJPEG.UpscaleFilter {
		case "nearest", "triangle", "catmull-rom", "mitchell", "lanczos3":
		default:
			return &configError{key: "streams.mjpeg.upscale_filter", msg: fmt.Sprintf("unknown filter %q", c.Streams.MJPEG.UpscaleFilter)}
		}
	}

	switch c.Render.TemperatureRange {
	case "fixed":
		if c.Render.FixedMinCelsius > c.Render.FixedMaxCelsius {
			return &configError{key: "render.fixed_min_celsius", msg: "must not be greater than fixed_max_celsius"}
		}
	case "dynamic":
		if c.Render.DynamicWindowFrames <= 0 {
			return &configError{key: "render.dynamic_window_frames", msg: "must be positive"}
		}
	default:
		return &configError{key: "render.temperature_range", msg: fmt.Sprintf("unknown mode %q", c.Render.TemperatureRange)}
	}

	if c.Tracker.MaxMisses <= 0 {
		return &configError{key: "tracker.max_misses", msg: "must be positive"}
	}
	if c.Tracker.MovementEpsilon < 0 {
		return &configError{key: "tracker.movement_epsilon", msg: "must not be negative"}
	}
	if c.Tracker.MaximumMovement <= 0 {
		return &configError{key: "tracker.maximum_movement", msg: "must be positive"}
	}
	if c.Tracker.MinimumSize < 0 {
		return &configError{key: "tracker.minimum_size", msg: "must not be negative"}
	}
	if c.Tracker.MaxComponents <= 0 {
		return &configError{key: "tracker.max_components", msg: "must be positive"}
	}
	if c.Tracker.BackgroundConfidenceThreshold <= 0 || c.Tracker.BackgroundConfidenceThreshold > 1 {
		return &configError{key: "tracker.background_confidence_threshold", msg: "must be in (0, 1]"}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return &configError{key: "mqtt.qos", msg: "must be 0, 1, or 2"}
	}
	if c.MQTT.HomeAssistant.Enabled {
		if err := validateDeviceName(c.MQTT.HomeAssistant.DeviceName); err != nil {
			return &configError{key: "mqtt.home_assistant.device_name", msg: err.Error()}
		}
	}

	return nil
}

// validateDeviceName enforces that the Home Assistant device name is
// non-empty and free of characters that are reserved in MQTT topic
// segments or that would produce an invalid entity id.
func validateDeviceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("must not be empty")
	}
	for _, r := range name {
		switch {
		case r == '/' || r == '#' || r == '+':
			return fmt.Errorf("must not contain %q", r)
		case r < 0x20 || r == 0x7f:
			return fmt.Errorf("must not contain control characters")
		case r == 0xFFFE || r == 0xFFFF:
			return fmt.Errorf("must not contain non-characters")
		}
	}
	return nil
}
