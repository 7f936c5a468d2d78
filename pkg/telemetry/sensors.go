// Package telemetry holds the device-local channel state: simulated sensor
// readings for input devices and output pins with blink progression for
// output devices. Values are owned by a single goroutine; nothing here locks.
package telemetry

import (
	"math/rand"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
)

const (
	MinReading = 0
	MaxReading = 100
)

type Sensors struct {
	ids    []entities.ChannelID
	values []int
	random *rand.Rand
}

func NewSensors(ids []entities.ChannelID, random *rand.Rand) *Sensors {
	s := &Sensors{
		ids:    append([]entities.ChannelID(nil), ids...),
		values: make([]int, len(ids)),
		random: random,
	}
	s.Sample()
	return s
}

func (s *Sensors) ChannelCount() int {
	return len(s.ids)
}

// Sample replaces every reading with an independent uniform value in
// [MinReading, MaxReading] and returns a copy of them.
func (s *Sensors) Sample() []int {
	for i := range s.values {
		s.values[i] = MinReading + s.random.Intn(MaxReading-MinReading+1)
	}
	return s.Snapshot()
}

// Snapshot returns the readings of the last sample.
func (s *Sensors) Snapshot() []int {
	return append([]int(nil), s.values...)
}
