package command

import (
	"testing"
	"time"

	"device-agent/models"
	"device-agent/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	events    []interface{}
	intervals []time.Duration
	restarted bool
}

func (f *fakeRuntime) PublishEvent(v interface{}) {
	f.events = append(f.events, v)
}

func (f *fakeRuntime) ApplyTelemetryInterval(interval time.Duration) {
	f.intervals = append(f.intervals, interval)
}

func (f *fakeRuntime) BuildFullStatus() *models.StatusEvent {
	rssi := -60
	return &models.StatusEvent{
		DeviceID:  "device_001",
		Timestamp: time.Now().Unix(),
		Status:    models.StatusAlive,
		WifiRSSI:  &rssi,
		FreeHeap:  131072,
	}
}

func (f *fakeRuntime) Restart() {
	f.restarted = true
}

func newTestHandler(rt *fakeRuntime) *Handler {
	identity := models.Identity{
		DeviceID:        "device_001",
		FirmwareVersion: "1.2.0",
	}
	h := NewHandler(identity, rt, utils.NewLogger("error", ""))
	h.restartDelay = 0
	return h
}

func TestSetIntervalAccepted(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{
		Command:   models.CommandSetInterval,
		Arguments: map[string]interface{}{"interval": float64(200000)},
	})

	require.Len(t, rt.intervals, 1)
	assert.Equal(t, 200000*time.Millisecond, rt.intervals[0])

	require.Len(t, rt.events, 1)
	resp, ok := rt.events[0].(*models.CommandResponse)
	require.True(t, ok)
	assert.Equal(t, models.CommandSetInterval, resp.Command)
	assert.Equal(t, "accepted", resp.Result)
	assert.Equal(t, int64(200000), resp.Interval)
}

func TestSetIntervalOutOfRange(t *testing.T) {
	for _, value := range []float64{1000, 4999, 300001, 0, -5000} {
		rt := &fakeRuntime{}
		h := newTestHandler(rt)

		h.Handle(&models.Command{
			Command:   models.CommandSetInterval,
			Arguments: map[string]interface{}{"interval": value},
		})

		assert.Empty(t, rt.intervals, "interval %v must not be applied", value)
		assert.Empty(t, rt.events, "interval %v must not be acknowledged", value)
	}
}

func TestSetIntervalBounds(t *testing.T) {
	for _, value := range []float64{5000, 300000} {
		rt := &fakeRuntime{}
		h := newTestHandler(rt)

		h.Handle(&models.Command{
			Command:   models.CommandSetInterval,
			Arguments: map[string]interface{}{"interval": value},
		})

		require.Len(t, rt.intervals, 1, "inclusive bound %v must be accepted", value)
	}
}

func TestSetIntervalMissingArgument(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{Command: models.CommandSetInterval})

	assert.Empty(t, rt.intervals)
	assert.Empty(t, rt.events)
}

func TestRestartAnnouncesBeforeTerminating(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{Command: models.CommandRestart})

	require.Len(t, rt.events, 1)
	event, ok := rt.events[0].(*models.StatusEvent)
	require.True(t, ok)
	assert.Equal(t, models.StatusRestarting, event.Status)
	assert.True(t, rt.restarted)
}

func TestGetStatusEmitsFullStatus(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{Command: models.CommandGetStatus})

	require.Len(t, rt.events, 1)
	event, ok := rt.events[0].(*models.StatusEvent)
	require.True(t, ok)
	assert.Equal(t, models.StatusAlive, event.Status)
	assert.NotNil(t, event.WifiRSSI)
}

func TestUnknownCommandIsSilentlyDropped(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{Command: "format_disk"})

	assert.Empty(t, rt.events)
	assert.Empty(t, rt.intervals)
	assert.False(t, rt.restarted)
}

func TestRegistrationConfirmedProducesNoResponse(t *testing.T) {
	rt := &fakeRuntime{}
	h := newTestHandler(rt)

	h.Handle(&models.Command{Command: models.CommandRegConfirmed})

	assert.Empty(t, rt.events)
}
