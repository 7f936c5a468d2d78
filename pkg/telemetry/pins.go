package telemetry

import (
	"fmt"
	"math"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
)

type OutputPin struct {
	Index          int
	Name           string
	State          bool
	BlinkCountdown int
}

// RemainingBlinks is the number of visible blinks left, rounded up.
func (p OutputPin) RemainingBlinks() int {
	return (p.BlinkCountdown + 1) / 2
}

type Pins struct {
	pins []OutputPin
}

func NewPins(ids []entities.ChannelID) *Pins {
	pins := make([]OutputPin, 0, len(ids))
	for i, id := range ids {
		pins = append(pins, OutputPin{Index: i, Name: fmt.Sprintf("Output-%s", id)})
	}
	return &Pins{pins: pins}
}

func (p *Pins) ChannelCount() int {
	return len(p.pins)
}

func (p *Pins) checkIndex(index int) error {
	if index < 0 || index >= len(p.pins) {
		return errors.Wrapf(entities.ErrIndexOutOfRange, "pin %d not in [0,%d)", index, len(p.pins))
	}
	return nil
}

// SetState drives a pin steady ON or OFF, cancelling any blink in flight.
func (p *Pins) SetState(index int, state bool) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}
	p.pins[index].State = state
	p.pins[index].BlinkCountdown = 0
	return nil
}

func (p *Pins) SetAllStates(state bool) {
	for i := range p.pins {
		// index is always valid here
		_ = p.SetState(i, state)
	}
}

// StartBlink schedules cycles full ON+OFF blinks; each cycle is two ticks.
func (p *Pins) StartBlink(index, cycles int) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}
	if cycles < 0 {
		return errors.Errorf("blink cycles must not be negative, got %d", cycles)
	}
	if cycles > math.MaxInt/2 {
		return errors.Wrapf(entities.ErrCommand, "blink cycles %d too large", cycles)
	}
	p.pins[index].BlinkCountdown = cycles * 2
	return nil
}

// AdvanceBlinkTick toggles every blinking pin once and reports whether any
// observable state changed. A pin reaching zero is forced OFF.
func (p *Pins) AdvanceBlinkTick() bool {
	changed := false
	for i := range p.pins {
		pin := &p.pins[i]
		if pin.BlinkCountdown <= 0 {
			continue
		}
		pin.State = !pin.State
		pin.BlinkCountdown--
		if pin.BlinkCountdown == 0 {
			pin.State = false
		}
		changed = true
	}
	return changed
}

// Snapshot returns 1 for ON and 0 for OFF per pin, in index order.
func (p *Pins) Snapshot() []int {
	content := make([]int, 0, len(p.pins))
	for _, pin := range p.pins {
		if pin.State {
			content = append(content, 1)
		} else {
			content = append(content, 0)
		}
	}
	return content
}

func (p *Pins) Pins() []OutputPin {
	return append([]OutputPin(nil), p.pins...)
}
