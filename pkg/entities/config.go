package entities

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	TransportSocketIO string = "socketio"
	TransportAMQP     string = "amqp"
)

type DeviceConfig struct {
	Device DeviceSection `yaml:"device"`
	Server ServerSection `yaml:"server"`
	Timing TimingSection `yaml:"timing"`
	Log    LogSection    `yaml:"log"`
}

type DeviceSection struct {
	SerialNumber string    `yaml:"sn"`
	SecretKey    string    `yaml:"clientSecretKey"`
	Variant      Variant   `yaml:"variant"`
	SensorCount  int       `yaml:"sensorCount"`
	SensorIDBase ChannelID `yaml:"sensorIdBase"`
}

type ServerSection struct {
	URL                  string   `yaml:"url"`
	APIPath              string   `yaml:"apiPath"`
	AuthURI              string   `yaml:"authUri"`
	AuthTimeoutSec       int      `yaml:"authTimeoutSec"`
	Transport            string   `yaml:"transport"`
	Transports           []string `yaml:"transports"`
	AMQPURL              string   `yaml:"amqpUrl"`
	ReconnectionAttempts uint64   `yaml:"reconnectionAttempts"`
	ReconnectionDelayMs  int      `yaml:"reconnectionDelayMs"`
}

type TimingSection struct {
	DataUploadIntervalSec   int `yaml:"dataUploadIntervalSec"`
	StatusReportIntervalSec int `yaml:"statusReportIntervalSec"`
	BlinkIntervalMs         int `yaml:"blinkIntervalMs"`
	DisplayIntervalSec      int `yaml:"displayIntervalSec"`
	RebootDelayMs           int `yaml:"rebootDelayMs"`
	ShutdownGraceMs         int `yaml:"shutdownGraceMs"`
}

type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultDeviceConfig mirrors the defaults shipped with the atCloud365 SDKs.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Device: DeviceSection{
			Variant:      VariantInput,
			SensorCount:  3,
			SensorIDBase: DefaultChannelBase,
		},
		Server: ServerSection{
			URL:                  "https://atcloud365.com",
			APIPath:              "/api/dev/io/",
			AuthTimeoutSec:       30,
			Transport:            TransportSocketIO,
			Transports:           []string{"websocket", "polling"},
			ReconnectionAttempts: 50,
			ReconnectionDelayMs:  5000,
		},
		Timing: TimingSection{
			DataUploadIntervalSec:   10,
			StatusReportIntervalSec: 60,
			BlinkIntervalMs:         500,
			DisplayIntervalSec:      10,
			RebootDelayMs:           1000,
			ShutdownGraceMs:         500,
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c DeviceConfig) Validate() error {
	switch {
	case c.Device.SerialNumber == "":
		return errors.Wrap(ErrConfiguration, "DEVICE_SN is missing")
	case c.Device.SecretKey == "":
		return errors.Wrap(ErrConfiguration, "CLIENT_SECRET_KEY is missing")
	case c.Server.AuthURI == "":
		return errors.Wrap(ErrConfiguration, "DEVICE_AUTH_URI is missing")
	case !c.Device.Variant.Valid():
		return errors.Wrapf(ErrConfiguration, "unknown device variant %q", c.Device.Variant)
	case c.Device.SensorCount < 1:
		return errors.Wrapf(ErrConfiguration, "sensor count must be positive, got %d", c.Device.SensorCount)
	}

	switch c.Server.Transport {
	case TransportSocketIO:
		if c.Server.URL == "" {
			return errors.Wrap(ErrConfiguration, "SERVER_URL is missing")
		}
		if err := validateServerURL(c.Server.URL); err != nil {
			return err
		}
		if !c.supportsWebsocket() {
			return errors.Wrapf(ErrConfiguration, "no supported transport in %v", c.Server.Transports)
		}
	case TransportAMQP:
		if c.Server.AMQPURL == "" {
			return errors.Wrap(ErrConfiguration, "AMQP_URL is missing")
		}
	default:
		return errors.Wrapf(ErrConfiguration, "unknown transport %q", c.Server.Transport)
	}
	return nil
}

func validateServerURL(raw string) error {
	endpoint, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "invalid SERVER_URL %q", raw)
	}
	switch endpoint.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	}
	return errors.Wrapf(ErrConfiguration, "unsupported SERVER_URL scheme %q", endpoint.Scheme)
}

func (c DeviceConfig) supportsWebsocket() bool {
	for _, name := range c.Server.Transports {
		if strings.EqualFold(name, "websocket") {
			return true
		}
	}
	return false
}

// Identity builds the immutable device identity from the configuration.
func (c DeviceConfig) Identity() DeviceIdentity {
	return DeviceIdentity{
		SerialNumber: c.Device.SerialNumber,
		SecretKey:    c.Device.SecretKey,
		ChannelIDs:   NewChannelIDs(c.Device.SensorIDBase, c.Device.SensorCount),
	}
}

func (t TimingSection) DataUploadInterval() time.Duration {
	return time.Duration(t.DataUploadIntervalSec) * time.Second
}

func (t TimingSection) StatusReportInterval() time.Duration {
	return time.Duration(t.StatusReportIntervalSec) * time.Second
}

func (t TimingSection) BlinkInterval() time.Duration {
	return time.Duration(t.BlinkIntervalMs) * time.Millisecond
}

func (t TimingSection) DisplayInterval() time.Duration {
	return time.Duration(t.DisplayIntervalSec) * time.Second
}

func (t TimingSection) RebootDelay() time.Duration {
	return time.Duration(t.RebootDelayMs) * time.Millisecond
}

func (t TimingSection) ShutdownGrace() time.Duration {
	return time.Duration(t.ShutdownGraceMs) * time.Millisecond
}

func (s ServerSection) ReconnectionDelay() time.Duration {
	return time.Duration(s.ReconnectionDelayMs) * time.Millisecond
}

func (s ServerSection) AuthTimeout() time.Duration {
	return time.Duration(s.AuthTimeoutSec) * time.Second
}
