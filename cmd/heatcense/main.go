// Command heatcense runs the thermal-imaging presence sensor: it samples
// an I2C thermal imager, segments and tracks warm bodies, publishes
// occupancy state to MQTT (with Home Assistant discovery) and serves an
// on-demand colorized MJPEG stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/heatcense/heatcense/internal/camera"
	"github.com/heatcense/heatcense/internal/config"
	"github.com/heatcense/heatcense/pkg/heatcense"
)

var version = "dev"

// exitConfigError is the process exit code for a ConfigurationError, kept
// distinct from other failures so a systemd unit can be configured with
// RestartPreventExitStatus=5 and avoid restart-looping on a bad config.
const exitConfigError = 5

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "heatcense: %s\n", err.Error())
		var cfgErr *heatcense.ConfigurationError
		if errors.As(err, &cfgErr) {
			os.Exit(exitConfigError)
		}
		os.Exit(1)
	}
}

func mainImpl() error {
	var level slog.LevelVar
	level.Set(slog.LevelInfo)
	if env := os.Getenv("HEATCENSE_LOG"); env != "" {
		_ = level.UnmarshalText([]byte(env))
	}

	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      &level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to a TOML configuration file")
	cameraKind := flag.String("camera-kind", "", "override camera.kind (grideye|mlx90640|mlx90641|fake)")
	mqttServer := flag.String("mqtt-server", "", "override mqtt.broker")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("heatcense " + version)
		return nil
	}
	if *verbose {
		level.Set(slog.LevelDebug)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return &heatcense.ConfigurationError{Key: *configPath, Err: err}
	}
	if *cameraKind != "" {
		cfg.Camera.Kind = *cameraKind
	}
	if *mqttServer != "" {
		cfg.MQTT.Broker = *mqttServer
	}
	if err := cfg.Validate(); err != nil {
		return &heatcense.ConfigurationError{Key: "validate", Err: err}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	identity, err := heatcense.DeviceIdentity()
	if err != nil {
		identity = "heatcense-unknown"
		logger.Warn("could not derive a stable device identity, using fallback", "identity", identity, "error", err)
	}

	width, height, ok := camera.Kind(cfg.Camera.Kind).Dimensions()
	if !ok {
		width, height = 8, 8 // KindFake has no fixed dimensions; matches the 8x8 grid camera.Open gives a fake source.
	}

	src, err := camera.Open(ctx, camera.Config{
		Kind:        camera.Kind(cfg.Camera.Kind),
		I2CBus:      cfg.Camera.Bus,
		SampleEvery: time.Duration(cfg.Camera.SampleIntervalMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	orientation := heatcense.OrientationFilter{
		Rotation:       parseOrientation(cfg.Camera.Orientation),
		FlipHorizontal: cfg.Camera.FlipHorizontal,
		FlipVertical:   cfg.Camera.FlipVertical,
	}

	engineParams := heatcense.DefaultEngineParams()
	engineParams.Background.MaxComponents = cfg.Tracker.MaxComponents
	engineParams.Background.LearningRate = cfg.Tracker.LearningRate
	engineParams.Background.InitialVariance = cfg.Tracker.InitialVariance
	engineParams.Background.InitialWeight = cfg.Tracker.InitialWeight
	engineParams.Background.MatchThreshold = cfg.Tracker.MatchThreshold
	engineParams.Background.ConfidenceCutoff = cfg.Tracker.BackgroundConfidenceThreshold
	engineParams.Tracker.WeightPosition = cfg.Tracker.WeightPosition
	engineParams.Tracker.WeightSize = cfg.Tracker.WeightSize
	engineParams.Tracker.WeightShape = cfg.Tracker.WeightShape
	engineParams.Tracker.MaximumMovement = cfg.Tracker.MaximumMovement
	engineParams.Tracker.MaxMisses = cfg.Tracker.MaxMisses
	engineParams.Tracker.MovementEpsilon = cfg.Tracker.MovementEpsilon
	engineParams.Tracker.StationaryAfter = time.Duration(cfg.Tracker.StationaryTimeoutS) * time.Second
	engineParams.Tracker.MinimumSize = cfg.Tracker.MinimumSize
	engine := heatcense.NewEngine(width, height, engineParams)

	renderParams := heatcense.DefaultRenderParams()
	if g, ok := heatcense.Gradients[cfg.Streams.MJPEG.Colorize]; ok {
		renderParams.Gradient = g
	}
	renderParams.UpscaleFactor = cfg.Streams.MJPEG.UpscaleFactor
	if filter, err := heatcense.UpscaleFilterByName(cfg.Streams.MJPEG.UpscaleFilter); err == nil {
		renderParams.UpscaleFilter = filter
	}
	renderParams.OverlayTemperature = cfg.Streams.MJPEG.OverlayTemperature
	renderParams.OverlayFahrenheit = cfg.Streams.MJPEG.OverlayUnits == "fahrenheit"
	renderParams.TemperatureRangeFixed = cfg.Render.TemperatureRange == "fixed"
	renderParams.FixedMinCelsius = cfg.Render.FixedMinCelsius
	renderParams.FixedMaxCelsius = cfg.Render.FixedMaxCelsius
	renderParams.DynamicWindowFrames = cfg.Render.DynamicWindowFrames
	renderer := heatcense.NewRenderer(renderParams)

	rt := heatcense.NewRuntime(logger)

	var publisher *heatcense.Publisher
	if cfg.MQTT.Broker != "" {
		publisher, err = heatcense.NewPublisher(heatcense.PublisherConfig{
			Broker:                cfg.MQTT.Broker,
			ClientID:              firstNonEmpty(cfg.MQTT.ClientID, identity),
			Username:              cfg.MQTT.Username,
			Password:              cfg.MQTT.Password,
			TopicPrefix:           cfg.MQTT.TopicPrefix,
			QoS:                   byte(cfg.MQTT.QoS),
			CountPersonsDebounce:  time.Duration(cfg.MQTT.CountPersonsDebounceMS) * time.Millisecond,
			AmbientQuantumCelsius: cfg.MQTT.AmbientQuantumCelsius,
			HomeAssistantEnabled:  cfg.MQTT.HomeAssistant.Enabled,
			DiscoveryPrefix:       cfg.MQTT.HomeAssistant.DiscoveryPrefix,
			DeviceName:            cfg.MQTT.HomeAssistant.DeviceName,
			DeviceIdentifier:      identity,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	tasks := []func(context.Context) error{
		cameraProducerTask(src, orientation, rt, logger),
		occupancyEngineTask(engine, rt, logger),
	}
	if publisher != nil {
		tasks = append(tasks, mqttPublishTask(publisher, rt, logger))
	}
	if cfg.Streams.MJPEG.Enabled {
		server := heatcense.NewStreamServer(cfg.Streams.MJPEG.Path, renderer, rt.OrientedBus, logger)
		tasks = append(tasks, func(taskCtx context.Context) error {
			return heatcense.Serve(taskCtx, cfg.Streams.MJPEG.Bind, server.Handler(), logger)
		})
	}

	return rt.Run(ctx, tasks...)
}

// cameraProducerTask samples frames from src, applies the configured
// orientation filter, and publishes them to both the raw and oriented
// buses.
func cameraProducerTask(src camera.Source, orientation heatcense.OrientationFilter, rt *heatcense.Runtime, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := src.Open(ctx); err != nil {
			return err
		}
		backoff := time.Second
		for {
			f, err := src.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var devErr *heatcense.DeviceError
				if errors.As(err, &devErr) && devErr.Transient {
					logger.Warn("transient camera read error", "component", "camera", "error", err)
					continue
				}
				if devErr != nil {
					logger.Error("camera device error, retrying after backoff", "component", "camera", "error", err, "backoff", backoff)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(backoff):
					}
					if backoff < time.Minute {
						backoff *= 2
					}
					continue
				}
				return err
			}
			backoff = time.Second
			rt.RawBus.Publish(f, "camera")
			rt.OrientedBus.Publish(orientation.Apply(f), "camera")
		}
	}
}

// occupancyEngineTask subscribes to oriented frames and publishes
// occupancy snapshots as they are computed.
func occupancyEngineTask(engine *heatcense.Engine, rt *heatcense.Runtime, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		frames := rt.OrientedBus.Subscribe(4)
		defer rt.OrientedBus.Unsubscribe(frames)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				update := engine.Process(f)
				rt.OccupancyBus.Publish(update)
			}
		}
	}
}

// mqttPublishTask subscribes to occupancy updates and forwards them to
// the MQTT publisher.
func mqttPublishTask(publisher *heatcense.Publisher, rt *heatcense.Runtime, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		updates := rt.OccupancyBus.Subscribe(4)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				if err := publisher.PublishOccupancy(u); err != nil {
					var brokerErr *heatcense.BrokerError
					if errors.As(err, &brokerErr) {
						logger.Warn("mqtt publish failed, will retry on next update", "component", "mqtt", "error", err)
						continue
					}
					return err
				}
				if err := publisher.PublishAmbient(u.AmbientCelsius); err != nil {
					var brokerErr *heatcense.BrokerError
					if errors.As(err, &brokerErr) {
						logger.Warn("mqtt publish failed, will retry on next update", "component", "mqtt", "error", err)
						continue
					}
					return err
				}
				if err := publisher.PublishObjects(u.Objects, u.Dropped); err != nil {
					var brokerErr *heatcense.BrokerError
					if errors.As(err, &brokerErr) {
						logger.Warn("mqtt publish failed, will retry on next update", "component", "mqtt", "error", err)
						continue
					}
					return err
				}
			}
		}
	}
}

func parseOrientation(name string) heatcense.Orientation {
	switch name {
	case "rotate90":
		return heatcense.OrientationRotate90
	case "rotate180":
		return heatcense.OrientationRotate180
	case "rotate270":
		return heatcense.OrientationRotate270
	default:
		return heatcense.OrientationNormal
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
