package atcloud

import (
	"context"
	"math/rand"
	"time"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const queueSize = 64

type messageKind int

const (
	messageConnected messageKind = iota
	messageDisconnected
	messageConnectError
	messageServerEvent
	messageCommand
	messageUploadTick
	messageHeartbeatTick
	messageBlinkTick
	messageDisplayTick
	messageTerminate
)

type message struct {
	kind       messageKind
	event      string
	payload    []byte
	generation uint64
}

// UploadPhase drives the input device upload timer, which alternates
// between a data upload and a liveness status.
type UploadPhase int

const (
	AwaitingData UploadPhase = iota
	AwaitingStatus
)

func (p UploadPhase) next() UploadPhase {
	if p == AwaitingData {
		return AwaitingStatus
	}
	return AwaitingData
}

type DeviceOptions struct {
	Identity             entities.DeviceIdentity
	Variant              entities.Variant
	DataUploadInterval   time.Duration
	StatusReportInterval time.Duration
	BlinkInterval        time.Duration
	DisplayInterval      time.Duration
	RebootDelay          time.Duration
	ShutdownGrace        time.Duration
}

func NewDeviceOptions(config entities.DeviceConfig) DeviceOptions {
	return DeviceOptions{
		Identity:             config.Identity(),
		Variant:              config.Device.Variant,
		DataUploadInterval:   config.Timing.DataUploadInterval(),
		StatusReportInterval: config.Timing.StatusReportInterval(),
		BlinkInterval:        config.Timing.BlinkInterval(),
		DisplayInterval:      config.Timing.DisplayInterval(),
		RebootDelay:          config.Timing.RebootDelay(),
		ShutdownGrace:        config.Timing.ShutdownGrace(),
	}
}

// Device is the single consumer of every event the client reacts to:
// transport lifecycle, inbound commands, timer ticks and termination. Only
// the Run goroutine touches the telemetry state.
type Device struct {
	options   DeviceOptions
	session   *Session
	router    *CommandRouter
	scheduler *Scheduler
	sensors   *telemetry.Sensors
	pins      *telemetry.Pins
	phase     UploadPhase
	rebooting bool

	queue chan message
	done  chan struct{}
	log   *logrus.Entry
}

func NewDevice(options DeviceOptions, session *Session, random *rand.Rand, log *logrus.Entry) *Device {
	d := &Device{
		options:   options,
		session:   session,
		router:    NewCommandRouter(),
		scheduler: NewScheduler(log.WithField("Context", "scheduler")),
		queue:     make(chan message, queueSize),
		done:      make(chan struct{}),
		log:       log,
	}
	if options.Variant == entities.VariantOutput {
		d.pins = telemetry.NewPins(options.Identity.ChannelIDs)
	} else {
		d.sensors = telemetry.NewSensors(options.Identity.ChannelIDs, random)
	}
	return d
}

// Run connects with token and dispatches until ctx is cancelled or a reboot
// completes. Both endings return nil.
func (d *Device) Run(ctx context.Context, token string) error {
	defer close(d.done)
	d.subscribe()

	sessionCtx, cancelSession := context.WithCancel(context.Background())
	defer cancelSession()
	if err := d.session.Connect(sessionCtx, token, ConnectMetadata(d.options.Identity)); err != nil {
		return err
	}
	d.display()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case msg := <-d.queue:
			if msg.kind == messageTerminate {
				d.scheduler.Stop()
				_ = d.session.Disconnect()
				d.log.Info("Restarting")
				return nil
			}
			d.handle(msg)
		}
	}
}

func (d *Device) post(msg message) {
	select {
	case d.queue <- msg:
	case <-d.done:
	}
}

func (d *Device) subscribe() {
	d.session.On(entities.EventConnect, func([]byte) {
		d.post(message{kind: messageConnected})
	})
	d.session.On(entities.EventDisconnect, func(reason []byte) {
		d.post(message{kind: messageDisconnected, payload: reason})
	})
	d.session.On(entities.EventConnectError, func(reason []byte) {
		d.post(message{kind: messageConnectError, payload: reason})
	})
	for _, event := range []string{entities.EventAppCmd, entities.EventAlarmLinkage} {
		event := event
		d.session.On(event, func(payload []byte) {
			d.post(message{kind: messageCommand, event: event, payload: payload})
		})
	}
	for _, event := range []string{entities.EventConnected, entities.EventMessageReceived} {
		event := event
		d.session.On(event, func(payload []byte) {
			d.post(message{kind: messageServerEvent, event: event, payload: payload})
		})
	}
}

func (d *Device) handle(msg message) {
	switch msg.kind {
	case messageConnected:
		d.onConnected()
	case messageDisconnected:
		d.scheduler.Stop()
		d.log.Warnf("Disconnected: %s", msg.payload)
	case messageConnectError:
		d.log.Errorf("connect_error: %s", msg.payload)
	case messageServerEvent:
		d.log.WithField("event", msg.event).Infof("Server: %s", msg.payload)
	case messageCommand:
		d.onCommand(msg.event, msg.payload)
	default:
		if !d.scheduler.Current(msg.generation) {
			d.log.Debug("Dropping tick from stopped timer")
			return
		}
		d.onTick(msg.kind)
	}
}

func (d *Device) onTick(kind messageKind) {
	switch kind {
	case messageUploadTick:
		d.uploadStep()
	case messageHeartbeatTick:
		d.emitStatus(entities.StatusHeartbeat)
	case messageBlinkTick:
		if d.pins.AdvanceBlinkTick() {
			d.emitData()
		}
	case messageDisplayTick:
		d.display()
	}
}

// onConnected re-announces the full device state and restarts the timers.
func (d *Device) onConnected() {
	d.log.Info("Connected")
	d.phase = AwaitingData
	d.emitStatus(entities.StatusBootup)
	if d.options.Variant == entities.VariantOutput {
		d.emitData()
	} else {
		d.uploadStep()
	}
	d.scheduler.Start(d.activities()...)
	d.display()
}

func (d *Device) activities() []Activity {
	every := func(name string, interval time.Duration, kind messageKind) Activity {
		return Activity{Name: name, Interval: interval, Post: func(generation uint64) {
			d.post(message{kind: kind, generation: generation})
		}}
	}
	display := every("display", d.options.DisplayInterval, messageDisplayTick)
	if d.options.Variant == entities.VariantOutput {
		return []Activity{
			every("heartbeat", d.options.StatusReportInterval, messageHeartbeatTick),
			every("blink", d.options.BlinkInterval, messageBlinkTick),
			display,
		}
	}
	return []Activity{every("upload", d.options.DataUploadInterval, messageUploadTick), display}
}

func (d *Device) onCommand(event string, payload []byte) {
	op := d.router.Decode(payload)
	log := d.log.WithField("event", event).WithFields(op.Fields())
	log.Info("Command received")
	if err := d.router.Apply(op, d); err != nil {
		log.Warnf("Rejected command: %v", err)
	}
}

// uploadStep emits whatever the upload phase calls for and advances it.
// Nothing advances while offline.
func (d *Device) uploadStep() {
	if d.session.State() != entities.Connected {
		d.log.Debug("Upload skipped while offline")
		return
	}
	switch d.phase {
	case AwaitingData:
		d.emitData()
	case AwaitingStatus:
		d.emitStatus(entities.StatusLiveness)
	}
	d.phase = d.phase.next()
}

func (d *Device) content() []int {
	if d.pins != nil {
		return d.pins.Snapshot()
	}
	return d.sensors.Sample()
}

func (d *Device) emitData() {
	d.emit(entities.EventDevData, entities.DataPayload{Content: d.content()})
}

func (d *Device) emitStatus(status string) {
	d.emit(entities.EventDevStatus, status)
}

func (d *Device) emit(event string, payload interface{}) {
	if err := d.session.Emit(event, payload); err != nil && !errors.Is(err, entities.ErrEmissionSkipped) {
		d.log.Errorf("Cannot emit %s: %v", event, err)
	}
}

func (d *Device) display() {
	if d.pins != nil {
		for _, pin := range d.pins.Pins() {
			state := "OFF"
			if pin.State {
				state = "ON"
			}
			entry := d.log.WithFields(logrus.Fields{"pin": pin.Index, "name": pin.Name, "state": state})
			if pin.BlinkCountdown > 0 {
				entry = entry.WithField("blinking", pin.RemainingBlinks())
			}
			entry.Info("Output status")
		}
		return
	}
	readings := d.sensors.Snapshot()
	for i, id := range d.options.Identity.ChannelIDs {
		d.log.WithFields(logrus.Fields{"sensor": id.String(), "value": readings[i]}).Info("Sensor reading")
	}
}

func (d *Device) shutdown() {
	d.log.Info("Shutting down")
	d.scheduler.Stop()
	if d.session.State() == entities.Connected {
		d.emitStatus(entities.StatusShuttingDown)
		time.Sleep(d.options.ShutdownGrace)
	}
	if err := d.session.Disconnect(); err != nil {
		d.log.Warnf("Disconnect: %v", err)
	}
}

func (d *Device) variant() entities.Variant {
	return d.options.Variant
}

func (d *Device) outputs() *telemetry.Pins {
	return d.pins
}

func (d *Device) syncData() {
	if d.options.Variant == entities.VariantOutput {
		d.emitData()
		return
	}
	d.uploadStep()
}

// reboot announces the restart and ends Run after the reboot delay.
func (d *Device) reboot() {
	if d.rebooting {
		return
	}
	d.rebooting = true
	d.log.Warn("Reboot requested")
	d.emitStatus(entities.StatusRebooting)
	time.AfterFunc(d.options.RebootDelay, func() {
		d.post(message{kind: messageTerminate})
	})
}

func (d *Device) outputsChanged() {
	d.emitData()
	d.display()
}
