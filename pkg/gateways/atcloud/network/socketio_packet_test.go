package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOpenPacket(t *testing.T) {
	p, err := decodePacket([]byte(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`))
	require.NoError(t, err)
	assert.Equal(t, engineOpen, p.engineType)
	assert.JSONEq(t, `{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`, string(p.data))
}

func TestDecodePing(t *testing.T) {
	p, err := decodePacket([]byte("2"))
	require.NoError(t, err)
	assert.Equal(t, enginePing, p.engineType)
	assert.Nil(t, p.data)
}

func TestDecodeEvent(t *testing.T) {
	p, err := decodePacket([]byte(`42["app-cmd",{"operation":{"customCmd":"sync"}}]`))
	require.NoError(t, err)
	assert.Equal(t, engineMessage, p.engineType)
	assert.Equal(t, socketEvent, p.socketType)
	assert.Equal(t, "/", p.namespace)
	assert.Equal(t, "app-cmd", p.event)
	assert.JSONEq(t, `{"operation":{"customCmd":"sync"}}`, string(p.data))
}

func TestDecodeEventWithNamespaceAndAckID(t *testing.T) {
	p, err := decodePacket([]byte(`42/api/dev/io,17["connected","hello"]`))
	require.NoError(t, err)
	assert.Equal(t, "/api/dev/io", p.namespace)
	assert.Equal(t, "connected", p.event)
	assert.JSONEq(t, `"hello"`, string(p.data))
}

func TestDecodeEventWithoutPayload(t *testing.T) {
	p, err := decodePacket([]byte(`42["message-received"]`))
	require.NoError(t, err)
	assert.Equal(t, "message-received", p.event)
	assert.Nil(t, p.data)
}

func TestDecodeConnectError(t *testing.T) {
	p, err := decodePacket([]byte(`44{"message":"invalid token"}`))
	require.NoError(t, err)
	assert.Equal(t, socketConnectError, p.socketType)
	assert.JSONEq(t, `{"message":"invalid token"}`, string(p.data))
}

func TestDecodeWhenFrameMalformedThenReturnError(t *testing.T) {
	for _, frame := range []string{"", "9", "4", "47", `42not-json`, `42[]`, `42[7]`} {
		_, err := decodePacket([]byte(frame))
		assert.Error(t, err, frame)
	}
}

func TestEncodeConnect(t *testing.T) {
	frame, err := encodeConnect(map[string]string{"token": "abc"})
	require.NoError(t, err)
	assert.Equal(t, `40{"token":"abc"}`, string(frame))
}

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent("dev-status", "Status OK")
	require.NoError(t, err)
	assert.Equal(t, `42["dev-status","Status OK"]`, string(frame))
}

func TestEncodeControlFrames(t *testing.T) {
	assert.Equal(t, "41", string(encodeDisconnect()))
	assert.Equal(t, "3", string(encodePong()))
}

func TestEncodedEventDecodesBack(t *testing.T) {
	frame, err := encodeEvent("dev-data", map[string][]int{"content": {1, 0, 1}})
	require.NoError(t, err)
	p, err := decodePacket(frame)
	require.NoError(t, err)
	assert.Equal(t, "dev-data", p.event)
	assert.JSONEq(t, `{"content":[1,0,1]}`, string(p.data))
}
