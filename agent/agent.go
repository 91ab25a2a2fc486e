package agent

import (
	"context"
	"os"
	"time"

	"device-agent/codec"
	"device-agent/command"
	"device-agent/config"
	"device-agent/models"
	"device-agent/mqtt"
	"device-agent/ota"
	"device-agent/sensors"
	"device-agent/utils"
)

// Session is the transport the agent drives. *mqtt.Session implements
// it; tests substitute a fake.
type Session interface {
	Establish(ctx context.Context) error
	IsAlive() bool
	Publish(topic string, payload []byte) error
	Poll() (mqtt.Message, bool)
}

// Agent owns all mutable device state: the session, the two emission
// timestamps, and the runtime-adjustable telemetry interval. Everything
// is mutated from the single Run goroutine, so no locking is needed.
type Agent struct {
	config   *config.Config
	identity models.Identity
	session  Session
	codec    *codec.Codec
	source   sensors.Source
	logger   *utils.Logger

	handler      *command.Handler
	orchestrator *ota.Orchestrator

	telemetryInterval time.Duration
	heartbeatInterval time.Duration
	lastTelemetry     time.Time
	lastHeartbeat     time.Time
	startTime         time.Time

	// exit is swapped out by tests; restart is otherwise terminal.
	exit func()
}

// NewAgent wires the agent context. The fetch-and-flash primitive is
// injected so the OTA transfer mechanics stay outside the core.
func NewAgent(cfg *config.Config, session Session, source sensors.Source, fetcher ota.Fetcher, logger *utils.Logger) *Agent {
	identity := models.Identity{
		DeviceID:        cfg.DeviceID,
		DeviceType:      cfg.DeviceType,
		FirmwareVersion: cfg.FirmwareVersion,
		Capabilities:    cfg.Capabilities,
		MACAddress:      cfg.MACAddress,
		IPAddress:       cfg.IPAddress,
	}

	a := &Agent{
		config:            cfg,
		identity:          identity,
		session:           session,
		codec:             codec.NewCodec(cfg.MaxPayloadSize),
		source:            source,
		logger:            logger,
		telemetryInterval: cfg.TelemetryInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		startTime:         time.Now(),
		exit:              func() { os.Exit(0) },
	}
	a.handler = command.NewHandler(identity, a, logger)
	a.orchestrator = ota.NewOrchestrator(fetcher, a, identity.FirmwareVersion, logger)
	return a
}

// Identity returns the provisioned device identity.
func (a *Agent) Identity() models.Identity {
	return a.identity
}

// Uptime reports elapsed time since agent start.
func (a *Agent) Uptime() time.Duration {
	return time.Since(a.startTime)
}

// Run is the cooperative tick loop. It returns only when the context
// is cancelled; the tick delay is the sole throttle.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Infof("Agent %s starting, firmware %s", a.identity.DeviceID, a.identity.FirmwareVersion)
	a.lastTelemetry = time.Now()
	a.lastHeartbeat = time.Now()

	for {
		a.tick(ctx)

		select {
		case <-ctx.Done():
			a.logger.Info("Agent loop stopping")
			return ctx.Err()
		case <-time.After(a.config.TickDelay):
		}
	}
}

// tick runs one scheduler pass: session maintenance, at most one
// inbound dispatch, then the two periodic emissions. Elapsed-time
// comparisons ride Go's monotonic clock, so they stay correct across
// wall-clock jumps.
func (a *Agent) tick(ctx context.Context) {
	if !a.session.IsAlive() {
		// The device has no other duties while disconnected, so the
		// indefinite retry loop may block the tick.
		if err := a.session.Establish(ctx); err != nil {
			return
		}
		a.announceOnline()
		a.announceRegistration()
	}

	if msg, ok := a.session.Poll(); ok {
		a.dispatch(ctx, msg)
	}

	now := time.Now()
	if now.Sub(a.lastTelemetry) >= a.telemetryInterval {
		a.emitTelemetry()
		a.lastTelemetry = now
	}
	if now.Sub(a.lastHeartbeat) >= a.heartbeatInterval {
		a.emitHeartbeat()
		a.lastHeartbeat = now
	}
}

func (a *Agent) announceOnline() {
	a.PublishEvent(&models.StatusEvent{
		DeviceID:        a.identity.DeviceID,
		Timestamp:       time.Now().Unix(),
		Status:          models.StatusOnline,
		FirmwareVersion: a.identity.FirmwareVersion,
	})
}

// announceRegistration publishes the identity announcement once per
// session. A failed publish is logged, not retried.
func (a *Agent) announceRegistration() {
	payload, err := a.codec.Encode(&models.Registration{
		DeviceID:        a.identity.DeviceID,
		DeviceType:      a.identity.DeviceType,
		FirmwareVersion: a.identity.FirmwareVersion,
		Capabilities:    a.identity.Capabilities,
		MACAddress:      a.identity.MACAddress,
		IPAddress:       a.identity.IPAddress,
		Timestamp:       time.Now().Unix(),
	})
	if err != nil {
		a.logger.Errorf("Failed to encode registration: %v", err)
		return
	}
	a.session.Publish(models.RegistrationTopic, payload)
}

// emitTelemetry publishes one fresh record. A sensor read failure
// skips the whole cycle; a partial record is never sent.
func (a *Agent) emitTelemetry() {
	reading, err := a.source.Read()
	if err != nil {
		a.logger.Warnf("Skipping telemetry cycle: %v", err)
		return
	}

	record := &models.TelemetryRecord{
		DeviceID:        a.identity.DeviceID,
		Timestamp:       a.Uptime().Milliseconds(),
		Temperature:     reading.Temperature,
		Humidity:        reading.Humidity,
		WifiRSSI:        wifiRSSI(),
		FreeHeap:        freeHeap(),
		Uptime:          int64(a.Uptime().Seconds()),
		FirmwareVersion: a.identity.FirmwareVersion,
	}

	payload, err := a.codec.Encode(record)
	if err != nil {
		a.logger.Errorf("Failed to encode telemetry: %v", err)
		return
	}
	a.session.Publish(models.Topic(models.TopicTelemetry, a.identity.DeviceID), payload)
}

func (a *Agent) emitHeartbeat() {
	a.PublishEvent(&models.StatusEvent{
		DeviceID:  a.identity.DeviceID,
		Timestamp: time.Now().Unix(),
		Status:    models.StatusAlive,
	})
}

// --- command.Runtime ---

// PublishEvent encodes a record and publishes it on the status topic.
// All failures are logged and tolerated.
func (a *Agent) PublishEvent(v interface{}) {
	payload, err := a.codec.Encode(v)
	if err != nil {
		a.logger.Errorf("Failed to encode status event: %v", err)
		return
	}
	a.session.Publish(models.Topic(models.TopicStatus, a.identity.DeviceID), payload)
}

// ApplyTelemetryInterval updates the live scheduler interval. Called
// between dispatch and the next due-check on the same goroutine.
func (a *Agent) ApplyTelemetryInterval(interval time.Duration) {
	a.telemetryInterval = interval
}

// BuildFullStatus snapshots the rich device status for get_status.
func (a *Agent) BuildFullStatus() *models.StatusEvent {
	rssi := wifiRSSI()
	return &models.StatusEvent{
		DeviceID:        a.identity.DeviceID,
		Timestamp:       time.Now().Unix(),
		Status:          models.StatusAlive,
		FirmwareVersion: a.identity.FirmwareVersion,
		IPAddress:       a.identity.IPAddress,
		MACAddress:      a.identity.MACAddress,
		WifiRSSI:        &rssi,
		FreeHeap:        freeHeap(),
		Uptime:          int64(a.Uptime().Seconds()),
	}
}

// Restart terminates the process; the supervisor reboots it.
func (a *Agent) Restart() {
	a.logger.Warnf("Agent %s going down for restart", a.identity.DeviceID)
	a.exit()
}

// --- ota.StatusSink ---

// EmitStatus publishes one workflow status event for the orchestrator.
func (a *Agent) EmitStatus(status, errMsg string) {
	a.PublishEvent(&models.StatusEvent{
		DeviceID:        a.identity.DeviceID,
		Timestamp:       time.Now().Unix(),
		Status:          status,
		FirmwareVersion: a.identity.FirmwareVersion,
		Error:           errMsg,
	})
}
