package command

import (
	"time"

	"device-agent/models"
	"device-agent/utils"
)

// Interval bounds accepted by set_interval, in milliseconds.
const (
	MinIntervalMs = 5000
	MaxIntervalMs = 300000
)

// Runtime is the slice of the agent the handler is allowed to touch.
type Runtime interface {
	// PublishEvent encodes a record and publishes it on the device's
	// status topic. Failures are logged by the runtime, never fatal.
	PublishEvent(v interface{})
	// ApplyTelemetryInterval updates the live scheduler interval.
	ApplyTelemetryInterval(interval time.Duration)
	// BuildFullStatus snapshots the rich device status.
	BuildFullStatus() *models.StatusEvent
	// Restart terminates the process after outbound delivery has had a
	// chance to drain. It does not return.
	Restart()
}

// Handler interprets one decoded command per invocation. It holds no
// state of its own.
type Handler struct {
	identity models.Identity
	runtime  Runtime
	logger   *utils.Logger

	// restartDelay gives the restarting event time to reach the broker.
	restartDelay time.Duration
}

func NewHandler(identity models.Identity, runtime Runtime, logger *utils.Logger) *Handler {
	return &Handler{
		identity:     identity,
		runtime:      runtime,
		logger:       logger,
		restartDelay: 500 * time.Millisecond,
	}
}

// Handle dispatches a single command. Unknown commands are dropped
// silently; they are well-formed, just not ours to act on.
func (h *Handler) Handle(cmd *models.Command) {
	switch cmd.Command {
	case models.CommandRestart:
		h.handleRestart()
	case models.CommandGetStatus:
		h.handleGetStatus()
	case models.CommandSetInterval:
		h.handleSetInterval(cmd)
	case models.CommandRegConfirmed:
		h.logger.Infof("Registration confirmed by gateway")
	default:
		h.logger.Debugf("Ignoring unknown command: %s", cmd.Command)
	}
}

func (h *Handler) handleRestart() {
	h.logger.Warnf("Restart requested, announcing and going down")
	h.runtime.PublishEvent(&models.StatusEvent{
		DeviceID:        h.identity.DeviceID,
		Timestamp:       time.Now().Unix(),
		Status:          models.StatusRestarting,
		FirmwareVersion: h.identity.FirmwareVersion,
	})
	time.Sleep(h.restartDelay)
	h.runtime.Restart()
}

func (h *Handler) handleGetStatus() {
	h.runtime.PublishEvent(h.runtime.BuildFullStatus())
}

func (h *Handler) handleSetInterval(cmd *models.Command) {
	ms, ok := intervalArgument(cmd)
	if !ok {
		h.logger.Errorf("set_interval command missing a numeric 'interval' argument")
		return
	}
	if ms < MinIntervalMs || ms > MaxIntervalMs {
		h.logger.Errorf("set_interval value %d out of range [%d, %d], ignoring", ms, MinIntervalMs, MaxIntervalMs)
		return
	}

	h.runtime.ApplyTelemetryInterval(time.Duration(ms) * time.Millisecond)
	h.runtime.PublishEvent(&models.CommandResponse{
		DeviceID:  h.identity.DeviceID,
		Timestamp: time.Now().Unix(),
		Command:   models.CommandSetInterval,
		Result:    "accepted",
		Interval:  ms,
	})
	h.logger.Infof("Telemetry interval set to %dms", ms)
}

// intervalArgument extracts the interval in milliseconds. JSON numbers
// decode as float64.
func intervalArgument(cmd *models.Command) (int64, bool) {
	raw, ok := cmd.Arguments["interval"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
