package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	count int
	err   error
}

func (f fakeCounter) Count(context.Context) (int, error) {
	return f.count, f.err
}

func TestRecordUpdate(t *testing.T) {
	before := testutil.ToFloat64(settingsUpdatesTotal.WithLabelValues("theme", "ok"))
	RecordUpdate("theme", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(settingsUpdatesTotal.WithLabelValues("theme", "ok")))

	RecordUpdate("", "")
	assert.GreaterOrEqual(t, testutil.ToFloat64(settingsUpdatesTotal.WithLabelValues("unknown", "unknown")), 1.0)
}

func TestSessionCollector_Collect(t *testing.T) {
	c := NewSessionCollector(fakeCounter{count: 7}, time.Second)
	c.collect(context.Background())
	assert.Equal(t, 7.0, testutil.ToFloat64(shadowSessions))

	failing := NewSessionCollector(fakeCounter{err: errors.New("down")}, time.Second)
	failing.collect(context.Background())
	assert.Equal(t, 7.0, testutil.ToFloat64(shadowSessions))
}

func TestSessionCollector_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewSessionCollector(fakeCounter{count: 1}, time.Hour).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}
