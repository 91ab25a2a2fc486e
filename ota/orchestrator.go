package ota

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"device-agent/models"
	"device-agent/utils"

	"github.com/looplab/fsm"
)

// Orchestrator states.
const (
	StateIdle              = "Idle"
	StateValidating        = "Validating"
	StateFetching          = "Fetching"
	StateSucceeded         = "Succeeded"
	StateFailed            = "Failed"
	StateNoUpdateAvailable = "NoUpdateAvailable"
)

// FSM events.
const (
	eventRequest   = "request"
	eventValidated = "validated"
	eventRejected  = "rejected"
	eventSucceeded = "succeeded"
	eventFailed    = "failed"
	eventNoUpdate  = "no_update"
	eventReset     = "reset"
)

var checksumPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// StatusSink receives the status events the orchestrator emits at each
// stage of the workflow.
type StatusSink interface {
	EmitStatus(status, errMsg string)
}

// Orchestrator drives the firmware-update workflow. At most one run is
// active at a time; requests arriving while the machine is not Idle
// are ignored.
type Orchestrator struct {
	FSM             *fsm.FSM
	fetcher         Fetcher
	sink            StatusSink
	logger          *utils.Logger
	firmwareVersion string
}

// NewOrchestrator creates an idle orchestrator for a device running
// the given firmware version.
func NewOrchestrator(fetcher Fetcher, sink StatusSink, firmwareVersion string, logger *utils.Logger) *Orchestrator {
	o := &Orchestrator{
		fetcher:         fetcher,
		sink:            sink,
		logger:          logger,
		firmwareVersion: firmwareVersion,
	}
	o.initializeFSM()
	return o
}

func (o *Orchestrator) initializeFSM() {
	callbacks := fsm.Callbacks{
		"enter_state": o.onEnterState,
		"enter_" + StateFetching: func(ctx context.Context, e *fsm.Event) {
			o.sink.EmitStatus(models.StatusUpdating, "")
		},
		"enter_" + StateSucceeded: func(ctx context.Context, e *fsm.Event) {
			o.sink.EmitStatus(models.StatusUpdateSuccess, "")
		},
		"enter_" + StateFailed: func(ctx context.Context, e *fsm.Event) {
			errMsg := "update failed"
			if len(e.Args) > 0 {
				if err, ok := e.Args[0].(error); ok {
					errMsg = err.Error()
				} else if str, ok := e.Args[0].(string); ok {
					errMsg = str
				}
			}
			o.sink.EmitStatus(models.StatusUpdateFailed, errMsg)
		},
		"enter_" + StateNoUpdateAvailable: func(ctx context.Context, e *fsm.Event) {
			o.sink.EmitStatus(models.StatusNoUpdates, "")
		},
	}

	o.FSM = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventRequest, Src: []string{StateIdle}, Dst: StateValidating},
			{Name: eventValidated, Src: []string{StateValidating}, Dst: StateFetching},
			{Name: eventRejected, Src: []string{StateValidating}, Dst: StateFailed},
			{Name: eventSucceeded, Src: []string{StateFetching}, Dst: StateSucceeded},
			{Name: eventFailed, Src: []string{StateFetching}, Dst: StateFailed},
			{Name: eventNoUpdate, Src: []string{StateFetching}, Dst: StateNoUpdateAvailable},
			{Name: eventReset, Src: []string{StateSucceeded, StateFailed, StateNoUpdateAvailable}, Dst: StateIdle},
		},
		callbacks,
	)
}

func (o *Orchestrator) onEnterState(ctx context.Context, e *fsm.Event) {
	o.logger.Infof("OTA: state changed %s -> %s (event: %s)", e.Src, e.Dst, e.Event)
}

// State returns the current workflow state.
func (o *Orchestrator) State() string {
	return o.FSM.Current()
}

// HandleRequest runs one update workflow to completion. The fetch is a
// blocking primitive with no cancellation beyond what the transport
// itself enforces; telemetry and heartbeats pause until it finishes.
func (o *Orchestrator) HandleRequest(ctx context.Context, req *models.UpdateRequest) {
	if !o.FSM.Is(StateIdle) {
		o.logger.Warnf("OTA: update to %s ignored, workflow already in state %s", req.Version, o.FSM.Current())
		return
	}

	o.FSM.Event(ctx, eventRequest)
	defer o.FSM.Event(ctx, eventReset)

	if err := o.validate(req); err != nil {
		o.logger.Errorf("OTA: request rejected: %v", err)
		o.FSM.Event(ctx, eventRejected, err)
		return
	}
	o.FSM.Event(ctx, eventValidated)

	o.logger.Infof("OTA: fetching firmware %s from %s", req.Version, req.URL)
	err := o.fetcher.FetchAndFlash(ctx, req)
	switch {
	case err == nil:
		o.logger.Infof("OTA: firmware %s staged, awaiting reboot into new image", req.Version)
		o.FSM.Event(ctx, eventSucceeded)
	case IsNoUpdate(err):
		o.logger.Infof("OTA: no update available at %s", req.URL)
		o.FSM.Event(ctx, eventNoUpdate)
	default:
		o.logger.Errorf("OTA: fetch failed: %v", err)
		o.FSM.Event(ctx, eventFailed, err)
	}
}

// validate rejects requests the device must not act on: a missing
// image URL, a checksum the fetcher cannot verify, or a version older
// than the running firmware.
func (o *Orchestrator) validate(req *models.UpdateRequest) error {
	if req.URL == "" {
		return fmt.Errorf("update request has no image URL")
	}
	if !checksumPattern.MatchString(req.Checksum) {
		return fmt.Errorf("checksum %q is not a hex-encoded SHA-256 digest", req.Checksum)
	}
	if compareVersions(req.Version, o.firmwareVersion) < 0 {
		return fmt.Errorf("refusing downgrade from %s to %s", o.firmwareVersion, req.Version)
	}
	return nil
}

// compareVersions compares dotted numeric versions. Non-numeric
// components compare as strings.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var ap, bp string
		if i < len(as) {
			ap = as[i]
		}
		if i < len(bs) {
			bp = bs[i]
		}
		an, aerr := strconv.Atoi(ap)
		bn, berr := strconv.Atoi(bp)
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if ap != bp {
			if ap < bp {
				return -1
			}
			return 1
		}
	}
	return 0
}
