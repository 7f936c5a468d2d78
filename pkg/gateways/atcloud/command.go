package atcloud

import (
	"encoding/json"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type OperationTag int

const (
	OperationUnknown OperationTag = iota
	OperationSync
	OperationReboot
	OperationSetOutput
	OperationSetAllOutputs
	OperationBlink
)

func (t OperationTag) String() string {
	switch t {
	case OperationSync:
		return "sync"
	case OperationReboot:
		return "reboot"
	case OperationSetOutput:
		return "set-output"
	case OperationSetAllOutputs:
		return "set-all-outputs"
	case OperationBlink:
		return "blink"
	default:
		return "unknown"
	}
}

// Custom command names understood by the device.
const (
	commandSync          = "sync"
	commandReboot        = "reboot"
	commandOutput        = "output"
	commandClearCallBell = "clear-call-bell"
	commandOutputAll     = "output-all"
	commandBlink         = "blinkLed"
)

const DefaultBlinkCycles = 5

// PendingOperation is a decoded remote command waiting to be applied.
type PendingOperation struct {
	Tag        OperationTag
	FieldIndex entities.OptionalInt
	FieldValue entities.OptionalInt
	// Command is the raw customCmd, kept for logging.
	Command string
	// Bare marks an index/value pair sent without a command name.
	Bare bool
}

func (p PendingOperation) Fields() logrus.Fields {
	fields := logrus.Fields{"operation": p.Tag.String()}
	if p.Command != "" {
		fields["customCmd"] = p.Command
	}
	if p.FieldIndex.Set {
		fields["fieldIndex"] = p.FieldIndex.Value
	}
	if p.FieldValue.Set {
		fields["fieldValue"] = p.FieldValue.Value
	}
	return fields
}

// commandTarget is the device state a command acts upon. Every method is
// called from the dispatch goroutine.
type commandTarget interface {
	variant() entities.Variant
	outputs() *telemetry.Pins
	syncData()
	reboot()
	outputsChanged()
}

type action func(op PendingOperation, target commandTarget) error

// CommandRouter turns inbound app-cmd and alarm-linkage payloads into
// operations and applies them. It keeps no state between messages.
type CommandRouter struct {
	names   map[string]OperationTag
	actions map[OperationTag]action
}

func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		names: map[string]OperationTag{
			commandSync:          OperationSync,
			commandReboot:        OperationReboot,
			commandOutput:        OperationSetOutput,
			commandClearCallBell: OperationSetOutput,
			commandOutputAll:     OperationSetAllOutputs,
			commandBlink:         OperationBlink,
		},
		actions: map[OperationTag]action{
			OperationSync:          applySync,
			OperationReboot:        applyReboot,
			OperationSetOutput:     applySetOutput,
			OperationSetAllOutputs: applySetAllOutputs,
			OperationBlink:         applyBlink,
		},
	}
}

// Decode never fails: anything it cannot interpret becomes OperationUnknown.
func (r *CommandRouter) Decode(raw []byte) PendingOperation {
	var message entities.CommandMessage
	if err := json.Unmarshal(raw, &message); err != nil || message.Operation == nil {
		return PendingOperation{Tag: OperationUnknown}
	}

	operation := message.Operation
	op := PendingOperation{
		Command:    operation.CustomCmd,
		FieldIndex: operation.FieldIndex,
		FieldValue: operation.FieldValue,
	}
	if operation.CustomCmd == "" {
		if operation.FieldIndex.Set && operation.FieldValue.Set {
			op.Tag = OperationSetOutput
			op.Bare = true
		}
		return op
	}
	if tag, ok := r.names[operation.CustomCmd]; ok {
		op.Tag = tag
	}
	return op
}

// Apply executes op against target. A rejected command leaves the target
// untouched and returns an error wrapping entities.ErrCommand.
func (r *CommandRouter) Apply(op PendingOperation, target commandTarget) error {
	run, ok := r.actions[op.Tag]
	if !ok {
		if op.Command != "" {
			return errors.Wrapf(entities.ErrCommand, "unknown command %q", op.Command)
		}
		return errors.Wrap(entities.ErrCommand, "unknown operation")
	}
	return run(op, target)
}

func applySync(_ PendingOperation, target commandTarget) error {
	target.syncData()
	return nil
}

func applyReboot(_ PendingOperation, target commandTarget) error {
	target.reboot()
	return nil
}

func outputPins(op PendingOperation, target commandTarget) (*telemetry.Pins, error) {
	pins := target.outputs()
	if target.variant() != entities.VariantOutput || pins == nil {
		return nil, errors.Wrapf(entities.ErrCommand, "%s is not applicable to an %s device", op.Tag, target.variant())
	}
	return pins, nil
}

func requireValue(op PendingOperation) error {
	if !op.FieldValue.Set || op.FieldValue.Value < 0 {
		return errors.Wrapf(entities.ErrCommand, "%s needs a non-negative fieldValue", op.Tag)
	}
	return nil
}

func requireIndex(op PendingOperation, pins *telemetry.Pins) error {
	if !op.FieldIndex.Set || op.FieldIndex.Value < 0 || op.FieldIndex.Value >= pins.ChannelCount() {
		return errors.Wrapf(entities.ErrCommand, "%s fieldIndex must be in [0,%d)", op.Tag, pins.ChannelCount())
	}
	return nil
}

func applySetOutput(op PendingOperation, target commandTarget) error {
	pins, err := outputPins(op, target)
	if err != nil {
		return err
	}
	if err := requireIndex(op, pins); err != nil {
		return err
	}
	if err := requireValue(op); err != nil {
		return err
	}
	if err := pins.SetState(op.FieldIndex.Value, op.FieldValue.Value > 0); err != nil {
		return errors.Wrap(entities.ErrCommand, err.Error())
	}
	target.outputsChanged()
	return nil
}

func applySetAllOutputs(op PendingOperation, target commandTarget) error {
	pins, err := outputPins(op, target)
	if err != nil {
		return err
	}
	if err := requireValue(op); err != nil {
		return err
	}
	pins.SetAllStates(op.FieldValue.Value > 0)
	target.outputsChanged()
	return nil
}

func applyBlink(op PendingOperation, target commandTarget) error {
	pins, err := outputPins(op, target)
	if err != nil {
		return err
	}
	if err := requireIndex(op, pins); err != nil {
		return err
	}
	cycles := op.FieldValue.Value
	if !op.FieldValue.Set || cycles <= 0 {
		cycles = DefaultBlinkCycles
	}
	if err := pins.StartBlink(op.FieldIndex.Value, cycles); err != nil {
		return errors.Wrap(entities.ErrCommand, err.Error())
	}
	return nil
}
