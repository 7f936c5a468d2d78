package atcloud

import (
	"testing"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeTarget struct {
	kind      entities.Variant
	pins      *telemetry.Pins
	syncs     int
	reboots   int
	refreshes int
}

func newFakeTarget(kind entities.Variant) *fakeTarget {
	target := &fakeTarget{kind: kind}
	if kind == entities.VariantOutput {
		target.pins = telemetry.NewPins(entities.NewChannelIDs(entities.DefaultChannelBase, 3))
	}
	return target
}

func (f *fakeTarget) variant() entities.Variant { return f.kind }

func (f *fakeTarget) outputs() *telemetry.Pins { return f.pins }

func (f *fakeTarget) syncData() { f.syncs++ }

func (f *fakeTarget) reboot() { f.reboots++ }

func (f *fakeTarget) outputsChanged() { f.refreshes++ }

func TestDecodeCustomCommands(t *testing.T) {
	router := NewCommandRouter()
	cases := []struct {
		raw      string
		expected OperationTag
	}{
		{raw: `{"operation":{"customCmd":"sync"}}`, expected: OperationSync},
		{raw: `{"operation":{"customCmd":"reboot"}}`, expected: OperationReboot},
		{raw: `{"operation":{"customCmd":"output","fieldIndex":0,"fieldValue":1}}`, expected: OperationSetOutput},
		{raw: `{"operation":{"customCmd":"clear-call-bell","fieldIndex":0,"fieldValue":0}}`, expected: OperationSetOutput},
		{raw: `{"operation":{"customCmd":"output-all","fieldValue":1}}`, expected: OperationSetAllOutputs},
		{raw: `{"operation":{"customCmd":"blinkLed","fieldIndex":1,"fieldValue":3}}`, expected: OperationBlink},
		{raw: `{"operation":{"customCmd":"selfDestruct"}}`, expected: OperationUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, router.Decode([]byte(c.raw)).Tag, c.raw)
	}
}

func TestDecodeBareIndexValue(t *testing.T) {
	op := NewCommandRouter().Decode([]byte(`{"operation":{"fieldIndex":"2","fieldValue":1}}`))
	assert.Equal(t, OperationSetOutput, op.Tag)
	assert.True(t, op.Bare)
	assert.Equal(t, entities.IntField(2), op.FieldIndex)
	assert.Equal(t, entities.IntField(1), op.FieldValue)
}

func TestDecodeWhenOperationMissingThenUnknown(t *testing.T) {
	router := NewCommandRouter()
	for _, raw := range []string{`{}`, `{"operation":null}`, `not json`, `{"operation":{"fieldIndex":1}}`, `{"operation":{"fieldIndex":"x","fieldValue":1}}`} {
		assert.Equal(t, OperationUnknown, router.Decode([]byte(raw)).Tag, raw)
	}
}

type applySuite struct {
	suite.Suite
	router *CommandRouter
	target *fakeTarget
}

func (s *applySuite) SetupTest() {
	s.router = NewCommandRouter()
	s.target = newFakeTarget(entities.VariantOutput)
}

func (s *applySuite) apply(raw string) error {
	return s.router.Apply(s.router.Decode([]byte(raw)), s.target)
}

func (s *applySuite) TestNoOperationProducesNoMutation() {
	before := s.target.pins.Pins()
	err := s.apply(`{"message":"hello"}`)
	assert.ErrorIs(s.T(), err, entities.ErrCommand)
	assert.Equal(s.T(), before, s.target.pins.Pins())
	assert.Zero(s.T(), s.target.syncs+s.target.reboots+s.target.refreshes)
}

func (s *applySuite) TestSetOutput() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"output","fieldIndex":1,"fieldValue":1}}`))
	assert.Equal(s.T(), []int{0, 1, 0}, s.target.pins.Snapshot())
	assert.Equal(s.T(), 1, s.target.refreshes)
}

func (s *applySuite) TestBareSetOutput() {
	require.NoError(s.T(), s.apply(`{"operation":{"fieldIndex":2,"fieldValue":5}}`))
	assert.Equal(s.T(), []int{0, 0, 1}, s.target.pins.Snapshot())
}

func (s *applySuite) TestSetOutputRejectsInvalidArguments() {
	for _, raw := range []string{
		`{"operation":{"customCmd":"output","fieldIndex":3,"fieldValue":1}}`,
		`{"operation":{"customCmd":"output","fieldIndex":-1,"fieldValue":1}}`,
		`{"operation":{"customCmd":"output","fieldIndex":0,"fieldValue":-1}}`,
		`{"operation":{"customCmd":"output","fieldValue":1}}`,
	} {
		before := s.target.pins.Pins()
		assert.ErrorIs(s.T(), s.apply(raw), entities.ErrCommand, raw)
		assert.Equal(s.T(), before, s.target.pins.Pins(), raw)
	}
	assert.Zero(s.T(), s.target.refreshes)
}

func (s *applySuite) TestSetAllOutputs() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"output-all","fieldValue":1}}`))
	assert.Equal(s.T(), []int{1, 1, 1}, s.target.pins.Snapshot())
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"output-all","fieldValue":0}}`))
	assert.Equal(s.T(), []int{0, 0, 0}, s.target.pins.Snapshot())
	assert.ErrorIs(s.T(), s.apply(`{"operation":{"customCmd":"output-all","fieldValue":-2}}`), entities.ErrCommand)
}

func (s *applySuite) TestBlinkSetsCountdown() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"blinkLed","fieldIndex":1,"fieldValue":3}}`))
	assert.Equal(s.T(), 6, s.target.pins.Pins()[1].BlinkCountdown)
}

func (s *applySuite) TestBlinkDefaultsToFiveCycles() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"blinkLed","fieldIndex":0}}`))
	assert.Equal(s.T(), 10, s.target.pins.Pins()[0].BlinkCountdown)
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"blinkLed","fieldIndex":2,"fieldValue":0}}`))
	assert.Equal(s.T(), 10, s.target.pins.Pins()[2].BlinkCountdown)
}

func (s *applySuite) TestFractionalValueCountsAsPositive() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"output","fieldIndex":0,"fieldValue":0.5}}`))
	assert.Equal(s.T(), []int{1, 0, 0}, s.target.pins.Snapshot())
	assert.ErrorIs(s.T(), s.apply(`{"operation":{"customCmd":"output","fieldIndex":1,"fieldValue":-0.5}}`), entities.ErrCommand)
	assert.Equal(s.T(), []int{1, 0, 0}, s.target.pins.Snapshot())
}

func (s *applySuite) TestBlinkRejectsHugeCycleCount() {
	for _, raw := range []string{
		`{"operation":{"customCmd":"blinkLed","fieldIndex":1,"fieldValue":4611686018427387904}}`,
		`{"operation":{"customCmd":"blinkLed","fieldIndex":1,"fieldValue":1e300}}`,
	} {
		assert.ErrorIs(s.T(), s.apply(raw), entities.ErrCommand, raw)
		for _, pin := range s.target.pins.Pins() {
			assert.Zero(s.T(), pin.BlinkCountdown, raw)
		}
	}
}

func (s *applySuite) TestBlinkRejectsOutOfRangeIndex() {
	assert.ErrorIs(s.T(), s.apply(`{"operation":{"customCmd":"blinkLed","fieldIndex":7,"fieldValue":2}}`), entities.ErrCommand)
	for _, pin := range s.target.pins.Pins() {
		assert.Zero(s.T(), pin.BlinkCountdown)
	}
}

func (s *applySuite) TestSyncAndReboot() {
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"sync"}}`))
	require.NoError(s.T(), s.apply(`{"operation":{"customCmd":"reboot"}}`))
	assert.Equal(s.T(), 1, s.target.syncs)
	assert.Equal(s.T(), 1, s.target.reboots)
}

func (s *applySuite) TestOutputCommandsRejectedOnInputDevice() {
	s.target = newFakeTarget(entities.VariantInput)
	for _, raw := range []string{
		`{"operation":{"customCmd":"output","fieldIndex":0,"fieldValue":1}}`,
		`{"operation":{"customCmd":"output-all","fieldValue":1}}`,
		`{"operation":{"customCmd":"blinkLed","fieldIndex":0,"fieldValue":1}}`,
		`{"operation":{"fieldIndex":0,"fieldValue":1}}`,
	} {
		assert.ErrorIs(s.T(), s.apply(raw), entities.ErrCommand, raw)
	}
	assert.Zero(s.T(), s.target.refreshes)
}

func TestApplySuite(t *testing.T) {
	suite.Run(t, new(applySuite))
}
