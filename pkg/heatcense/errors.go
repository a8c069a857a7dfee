package heatcense

import "fmt"

// ConfigurationError indicates a TOML configuration value that cannot be
// used as given. It is always fatal: the process exits with code 5
// without retrying, since retrying cannot fix a bad config file.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DeviceError reports a failure talking to the thermal imager over I2C.
// Transient errors (a single bad read, a short bus timeout) are logged
// at WARN and retried on the next sample tick. Non-transient errors
// indicate the device is gone or stuck; callers back off and keep
// the rest of the system running rather than exiting.
type DeviceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// BrokerError reports a failure in the MQTT connection. The publisher
// reconnects with exponential backoff and republishes Home Assistant
// discovery documents once the connection is restored.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// RendererError reports a failure producing a single MJPEG frame. The
// renderer drops the frame and logs a warning; it never tears down the
// stream for a single bad frame.
type RendererError struct {
	Err error
}

func (e *RendererError) Error() string {
	return fmt.Sprintf("renderer: %v", e.Err)
}

func (e *RendererError) Unwrap() error { return e.Err }

// InternalInvariantError reports a violated invariant that the caller
// believed could not happen. It is logged at ERROR and the offending
// task continues operating on the next input rather than crashing the
// process.
type InternalInvariantError struct {
	What string
}

func (e *InternalInvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.What)
}
