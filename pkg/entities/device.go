package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Outbound and inbound event names of the atCloud365 device protocol.
const (
	EventDevData         string = "dev-data"
	EventDevStatus       string = "dev-status"
	EventAppCmd          string = "app-cmd"
	EventAlarmLinkage    string = "alarm-linkage"
	EventConnect         string = "connect"
	EventConnected       string = "connected"
	EventDisconnect      string = "disconnect"
	EventConnectError    string = "connect_error"
	EventMessageReceived string = "message-received"
)

// Status tokens carried by dev-status.
const (
	StatusLiveness     string = "status-ok"
	StatusHeartbeat    string = "Status OK"
	StatusBootup       string = "Bootup & Ready"
	StatusRebooting    string = "Rebooting"
	StatusShuttingDown string = "Shutting down"
)

const (
	ClientType    string = "device"
	ClientVersion string = "V4"

	DefaultChannelBase ChannelID = 0x0F1234
)

// Variant selects which side of the device protocol this process plays.
type Variant string

const (
	VariantInput  Variant = "input"
	VariantOutput Variant = "output"
)

func (v Variant) Valid() bool {
	return v == VariantInput || v == VariantOutput
}

// ChannelID identifies a sensor or output line on the platform.
type ChannelID uint32

func (c ChannelID) String() string {
	return fmt.Sprintf("0x%x", uint32(c))
}

// NewChannelIDs assigns count consecutive ids starting at base.
func NewChannelIDs(base ChannelID, count int) []ChannelID {
	ids := make([]ChannelID, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, base+ChannelID(i))
	}
	return ids
}

type DeviceIdentity struct {
	SerialNumber string
	SecretKey    string
	ChannelIDs   []ChannelID
}

func (d DeviceIdentity) String() string {
	hex := make([]string, 0, len(d.ChannelIDs))
	for _, id := range d.ChannelIDs {
		hex = append(hex, id.String())
	}
	return fmt.Sprintf("sn=%s secret=%s channels=[%s]", d.SerialNumber, Redact(d.SecretKey), strings.Join(hex, ", "))
}

// ChannelIDsJSON is the serialized channel list sent as connect metadata.
func (d DeviceIdentity) ChannelIDsJSON() string {
	encoded, err := json.Marshal(d.ChannelIDs)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// Redact keeps the first and last two characters of a secret.
func Redact(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// AuthRequest is the body posted to the device auth endpoint.
type AuthRequest struct {
	SerialNumber string      `json:"sn"`
	SecretKey    string      `json:"client_secret_key"`
	SensorIDs    []ChannelID `json:"sensorIds"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

// DataPayload is the dev-data body.
type DataPayload struct {
	Content []int `json:"content"`
}

// CommandMessage is the body of app-cmd and alarm-linkage.
type CommandMessage struct {
	Operation *Operation `json:"operation"`
}

type Operation struct {
	CustomCmd  string      `json:"customCmd,omitempty"`
	FieldIndex OptionalInt `json:"fieldIndex,omitempty"`
	FieldValue OptionalInt `json:"fieldValue,omitempty"`
}

// OptionalInt decodes a JSON number or numeric string and remembers
// whether the field was present at all.
type OptionalInt struct {
	Value int
	Set   bool
}

func IntField(v int) OptionalInt {
	return OptionalInt{Value: v, Set: true}
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*o = OptionalInt{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	number, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return fmt.Errorf("invalid integer field %s", string(data))
	}
	if number > math.MaxInt32 || number < math.MinInt32 {
		return fmt.Errorf("integer field %s out of range", string(data))
	}
	*o = OptionalInt{Value: roundAwayFromZero(number), Set: true}
	return nil
}

// roundAwayFromZero keeps the sign comparisons of a fractional value, so 0.5
// still counts as positive and -0.5 as negative.
func roundAwayFromZero(number float64) int {
	if number < 0 {
		return int(math.Floor(number))
	}
	return int(math.Ceil(number))
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(o.Value)), nil
}
