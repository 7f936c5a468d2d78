package network

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types, carried inside an engine message.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

type connectErrorPacket struct {
	Message string `json:"message"`
}

type packet struct {
	engineType byte
	socketType byte
	namespace  string
	event      string
	data       json.RawMessage
}

func decodePacket(frame []byte) (packet, error) {
	if len(frame) == 0 {
		return packet{}, errors.New("empty frame")
	}
	p := packet{engineType: frame[0]}
	body := frame[1:]
	switch p.engineType {
	case engineOpen, engineClose, enginePing, enginePong, engineUpgrade, engineNoop:
		if len(body) > 0 {
			p.data = json.RawMessage(body)
		}
		return p, nil
	case engineMessage:
	default:
		return p, errors.Errorf("unknown engine packet type %q", p.engineType)
	}

	if len(body) == 0 {
		return p, errors.New("engine message without socket packet")
	}
	p.socketType = body[0]
	rest := string(body[1:])

	p.namespace = "/"
	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.namespace = rest
			rest = ""
		} else {
			p.namespace = rest[:end]
			rest = rest[end+1:]
		}
	}
	rest = strings.TrimLeft(rest, "0123456789")

	switch p.socketType {
	case socketEvent, socketAck:
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return p, errors.Wrap(err, "decode event arguments")
		}
		if len(args) == 0 {
			return p, errors.New("event without name")
		}
		if p.socketType == socketEvent {
			if err := json.Unmarshal(args[0], &p.event); err != nil {
				return p, errors.Wrap(err, "decode event name")
			}
			args = args[1:]
		}
		if len(args) > 0 {
			p.data = args[0]
		}
	case socketConnect, socketDisconnect, socketConnectError:
		if rest != "" {
			p.data = json.RawMessage(rest)
		}
	default:
		return p, errors.Errorf("unknown socket packet type %q", p.socketType)
	}
	return p, nil
}

func encodeConnect(auth interface{}) ([]byte, error) {
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, errors.Wrap(err, "encode connect auth")
	}
	return append([]byte{engineMessage, socketConnect}, body...), nil
}

func encodeEvent(event string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal([]interface{}{event, payload})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event)
	}
	return append([]byte{engineMessage, socketEvent}, body...), nil
}

func encodeDisconnect() []byte {
	return []byte{engineMessage, socketDisconnect}
}

func encodePong() []byte {
	return []byte{enginePong}
}

func (p packet) String() string {
	if p.engineType != engineMessage {
		return fmt.Sprintf("engine(%c)", p.engineType)
	}
	return fmt.Sprintf("socket(%c %s %s)", p.socketType, p.namespace, p.event)
}
