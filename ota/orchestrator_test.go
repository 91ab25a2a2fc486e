package ota

import (
	"context"
	"errors"
	"strings"
	"testing"

	"device-agent/models"
	"device-agent/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validChecksum = strings.Repeat("ab", 32)

type recordedStatus struct {
	status string
	errMsg string
}

type fakeSink struct {
	statuses []recordedStatus
}

func (f *fakeSink) EmitStatus(status, errMsg string) {
	f.statuses = append(f.statuses, recordedStatus{status: status, errMsg: errMsg})
}

type fakeFetcher struct {
	err    error
	called int
	during func()
}

func (f *fakeFetcher) FetchAndFlash(ctx context.Context, req *models.UpdateRequest) error {
	f.called++
	if f.during != nil {
		f.during()
	}
	return f.err
}

func newTestOrchestrator(fetcher Fetcher, sink StatusSink) *Orchestrator {
	return NewOrchestrator(fetcher, sink, "1.2.0", utils.NewLogger("error", ""))
}

func validRequest() *models.UpdateRequest {
	return &models.UpdateRequest{
		URL:      "https://updates.example/fw.bin",
		Version:  "1.3.0",
		Checksum: validChecksum,
	}
}

func TestSuccessfulUpdate(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(fetcher, sink)

	o.HandleRequest(context.Background(), validRequest())

	assert.Equal(t, 1, fetcher.called)
	require.Len(t, sink.statuses, 2)
	assert.Equal(t, models.StatusUpdating, sink.statuses[0].status)
	assert.Equal(t, models.StatusUpdateSuccess, sink.statuses[1].status)
	assert.Equal(t, StateIdle, o.State())
}

func TestNoUpdateAvailable(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{err: ErrNoUpdate}
	o := newTestOrchestrator(fetcher, sink)

	o.HandleRequest(context.Background(), validRequest())

	require.Len(t, sink.statuses, 2)
	assert.Equal(t, models.StatusUpdating, sink.statuses[0].status)
	assert.Equal(t, models.StatusNoUpdates, sink.statuses[1].status)

	var noUpdates int
	for _, s := range sink.statuses {
		if s.status == models.StatusNoUpdates {
			noUpdates++
		}
	}
	assert.Equal(t, 1, noUpdates)
	assert.Equal(t, StateIdle, o.State())
}

func TestFetchFailureReportsErrorAndStays(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{err: errors.New("connection reset during transfer")}
	o := newTestOrchestrator(fetcher, sink)

	o.HandleRequest(context.Background(), validRequest())

	require.Len(t, sink.statuses, 2)
	assert.Equal(t, models.StatusUpdateFailed, sink.statuses[1].status)
	assert.Contains(t, sink.statuses[1].errMsg, "connection reset")
	assert.Equal(t, StateIdle, o.State())
}

func TestValidationRejectsMalformedChecksum(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(fetcher, sink)

	req := validRequest()
	req.Checksum = "not-a-digest"
	o.HandleRequest(context.Background(), req)

	assert.Equal(t, 0, fetcher.called)
	require.Len(t, sink.statuses, 1)
	assert.Equal(t, models.StatusUpdateFailed, sink.statuses[0].status)
	assert.Equal(t, StateIdle, o.State())
}

func TestValidationRejectsDowngrade(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(fetcher, sink)

	req := validRequest()
	req.Version = "1.1.9"
	o.HandleRequest(context.Background(), req)

	assert.Equal(t, 0, fetcher.called)
	require.Len(t, sink.statuses, 1)
	assert.Equal(t, models.StatusUpdateFailed, sink.statuses[0].status)
	assert.Contains(t, sink.statuses[0].errMsg, "downgrade")
}

func TestValidationRejectsEmptyURL(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(fetcher, sink)

	req := validRequest()
	req.URL = ""
	o.HandleRequest(context.Background(), req)

	assert.Equal(t, 0, fetcher.called)
	require.Len(t, sink.statuses, 1)
	assert.Equal(t, models.StatusUpdateFailed, sink.statuses[0].status)
}

func TestConcurrentRequestIsIgnored(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{}
	var o *Orchestrator
	// A second request arriving while the first is still fetching must
	// be dropped without a second workflow run.
	fetcher.during = func() {
		o.HandleRequest(context.Background(), validRequest())
	}
	o = newTestOrchestrator(fetcher, sink)

	o.HandleRequest(context.Background(), validRequest())

	assert.Equal(t, 1, fetcher.called)
	require.Len(t, sink.statuses, 2)
	assert.Equal(t, StateIdle, o.State())
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.3.0", "1.2.0", 1},
		{"1.2.0", "1.10.0", -1},
		{"2.0", "1.9.9", 1},
		{"1.2", "1.2.1", -1},
		{"1.2.0-rc1", "1.2.0-rc2", -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, compareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}
