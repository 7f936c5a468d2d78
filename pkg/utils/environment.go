package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
)

func GetValueFromEnvironmentVariable(variableName, defaultValue string) string {
	value := os.Getenv(variableName)
	if value != "" {
		return value
	}
	return defaultValue
}

// ApplyEnvironmentOverrides lets the variables used by the atCloud365 SDK
// samples override values from the configuration file.
func ApplyEnvironmentOverrides(c *entities.DeviceConfig) error {
	c.Device.SerialNumber = GetValueFromEnvironmentVariable("DEVICE_SN", c.Device.SerialNumber)
	c.Device.SecretKey = GetValueFromEnvironmentVariable("CLIENT_SECRET_KEY", c.Device.SecretKey)
	c.Device.Variant = entities.Variant(GetValueFromEnvironmentVariable("DEVICE_VARIANT", string(c.Device.Variant)))
	c.Server.URL = GetValueFromEnvironmentVariable("SERVER_URL", c.Server.URL)
	c.Server.APIPath = GetValueFromEnvironmentVariable("API_PATH", c.Server.APIPath)
	c.Server.AuthURI = GetValueFromEnvironmentVariable("DEVICE_AUTH_URI", c.Server.AuthURI)
	c.Server.Transport = GetValueFromEnvironmentVariable("TRANSPORT", c.Server.Transport)
	c.Server.AMQPURL = GetValueFromEnvironmentVariable("AMQP_URL", c.Server.AMQPURL)
	c.Log.Level = GetValueFromEnvironmentVariable("LOG_LEVEL", c.Log.Level)

	if transports := os.Getenv("TRANSPORTS"); transports != "" {
		c.Server.Transports = strings.Split(transports, ",")
	}

	integers := []struct {
		name   string
		target *int
	}{
		{"SENSOR_COUNT", &c.Device.SensorCount},
		{"DATA_UPLOAD_INTERVAL", &c.Timing.DataUploadIntervalSec},
		{"STATUS_REPORT_INTERVAL", &c.Timing.StatusReportIntervalSec},
		{"BLINK_INTERVAL", &c.Timing.BlinkIntervalMs},
	}
	for _, variable := range integers {
		raw := os.Getenv(variable.name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(entities.ErrConfiguration, "%s environment variable with invalid value %q", variable.name, raw)
		}
		*variable.target = value
	}
	return nil
}
