package entities

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelIDs(t *testing.T) {
	ids := NewChannelIDs(DefaultChannelBase, 3)
	assert.Equal(t, []ChannelID{0x0F1234, 0x0F1235, 0x0F1236}, ids)
	assert.Equal(t, "0xf1235", ids[1].String())
}

func TestIdentityStringRedactsSecret(t *testing.T) {
	identity := DeviceIdentity{SerialNumber: "DEV001", SecretKey: "s3cret-key", ChannelIDs: NewChannelIDs(DefaultChannelBase, 1)}
	text := identity.String()
	assert.NotContains(t, text, "s3cret-key")
	assert.Contains(t, text, "DEV001")
	assert.Contains(t, text, "0xf1234")
}

func TestRedactShortSecret(t *testing.T) {
	assert.Equal(t, "***", Redact("abc"))
	assert.Equal(t, "s3**et", Redact("s3cret"))
}

func TestChannelIDsJSON(t *testing.T) {
	identity := DeviceIdentity{ChannelIDs: []ChannelID{0x0F1234, 0x0F1235}}
	assert.Equal(t, "[987700,987701]", identity.ChannelIDsJSON())
}

func TestDecodeCommandMessageAcceptsNumericStrings(t *testing.T) {
	var message CommandMessage
	err := json.Unmarshal([]byte(`{"operation":{"customCmd":"blinkLed","fieldIndex":"1","fieldValue":3}}`), &message)
	require.NoError(t, err)
	require.NotNil(t, message.Operation)
	assert.Equal(t, IntField(1), message.Operation.FieldIndex)
	assert.Equal(t, IntField(3), message.Operation.FieldValue)
}

func TestDecodeCommandMessageWithoutFields(t *testing.T) {
	var message CommandMessage
	err := json.Unmarshal([]byte(`{"operation":{"customCmd":"sync"}}`), &message)
	require.NoError(t, err)
	assert.False(t, message.Operation.FieldIndex.Set)
	assert.False(t, message.Operation.FieldValue.Set)
}

func TestDecodeOptionalIntRejectsOutOfRangeNumbers(t *testing.T) {
	for _, raw := range []string{`4611686018427387904`, `-2147483649`, `"NaN"`, `"+Inf"`, `1e400`} {
		var field OptionalInt
		assert.Error(t, json.Unmarshal([]byte(raw), &field), raw)
		assert.False(t, field.Set, raw)
	}
}

func TestDecodeOptionalIntRoundsFractionsAwayFromZero(t *testing.T) {
	cases := []struct {
		raw      string
		expected int
	}{
		{raw: `0.5`, expected: 1},
		{raw: `"2.25"`, expected: 3},
		{raw: `-0.5`, expected: -1},
		{raw: `4.0`, expected: 4},
		{raw: `2147483647`, expected: 2147483647},
	}
	for _, c := range cases {
		var field OptionalInt
		require.NoError(t, json.Unmarshal([]byte(c.raw), &field), c.raw)
		assert.Equal(t, IntField(c.expected), field, c.raw)
	}
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown(9)", ConnectionState(9).String())
}

func validConfig() DeviceConfig {
	config := DefaultDeviceConfig()
	config.Device.SerialNumber = "DEV001"
	config.Device.SecretKey = "s3cret"
	config.Server.AuthURI = "https://atcloud365.com/api/v3/devices/auth"
	return config
}

func TestValidateAcceptsDefaultsWithIdentity(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateMissingRequiredFields(t *testing.T) {
	cases := map[string]func(*DeviceConfig){
		"serial":    func(c *DeviceConfig) { c.Device.SerialNumber = "" },
		"secret":    func(c *DeviceConfig) { c.Device.SecretKey = "" },
		"auth":      func(c *DeviceConfig) { c.Server.AuthURI = "" },
		"variant":   func(c *DeviceConfig) { c.Device.Variant = "relay" },
		"count":     func(c *DeviceConfig) { c.Device.SensorCount = 0 },
		"transport": func(c *DeviceConfig) { c.Server.Transport = "mqtt" },
		"polling":   func(c *DeviceConfig) { c.Server.Transports = []string{"polling"} },
		"amqp":      func(c *DeviceConfig) { c.Server.Transport = TransportAMQP },
		"scheme":    func(c *DeviceConfig) { c.Server.URL = "ftp://atcloud365.com" },
		"url":       func(c *DeviceConfig) { c.Server.URL = "://atcloud365.com" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := validConfig()
			mutate(&config)
			err := config.Validate()
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestValidateAcceptsWebsocketSchemes(t *testing.T) {
	for _, url := range []string{"http://localhost:3000", "https://atcloud365.com", "ws://localhost:3000", "WSS://atcloud365.com"} {
		config := validConfig()
		config.Server.URL = url
		assert.NoError(t, config.Validate(), url)
	}
}

func TestIdentityFromConfig(t *testing.T) {
	identity := validConfig().Identity()
	assert.Equal(t, "DEV001", identity.SerialNumber)
	assert.Len(t, identity.ChannelIDs, 3)
}
