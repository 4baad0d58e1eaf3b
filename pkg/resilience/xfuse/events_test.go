package xfuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKindString(t *testing.T) {
	tests := map[EventKind]string{
		EventFire:              "fire",
		EventSuccess:           "success",
		EventFailure:           "failure",
		EventTimeout:           "timeout",
		EventReject:            "reject",
		EventGateRejected:      "gate_rejected",
		EventFallback:          "fallback",
		EventCacheHit:          "cache_hit",
		EventCacheMiss:         "cache_miss",
		EventOpen:              "open",
		EventClose:             "close",
		EventHalfOpen:          "half_open",
		EventHealthCheckFailed: "health_check_failed",
		EventShutdown:          "shutdown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "EventKind(-1)", EventKind(-1).String())
}

func TestEventTable(t *testing.T) {
	t.Run("kind listener only sees its kind", func(t *testing.T) {
		var got []Event
		tab := newEventTable([]subscription{
			{kind: EventOpen, fn: func(ev Event) { got = append(got, ev) }},
		})

		tab.emit(EventSuccess, "svc")
		tab.emit(EventOpen, "svc")

		require.Len(t, got, 1)
		assert.Equal(t, EventOpen, got[0].Kind)
		assert.Equal(t, "svc", got[0].Breaker)
		assert.False(t, got[0].Time.IsZero())
	})

	t.Run("all-events listener sees everything", func(t *testing.T) {
		var kinds []EventKind
		tab := newEventTable([]subscription{
			{all: true, fn: func(ev Event) { kinds = append(kinds, ev.Kind) }},
		})

		tab.emit(EventFire, "svc")
		tab.emit(EventFailure, "svc")
		tab.emit(EventShutdown, "svc")

		assert.Equal(t, []EventKind{EventFire, EventFailure, EventShutdown}, kinds)
	})

	t.Run("panicking listener does not break others", func(t *testing.T) {
		var called bool
		tab := newEventTable([]subscription{
			{kind: EventOpen, fn: func(Event) { panic("listener boom") }},
			{kind: EventOpen, fn: func(Event) { called = true }},
		})

		assert.NotPanics(t, func() { tab.emit(EventOpen, "svc") })
		assert.True(t, called)
	})

	t.Run("no listeners", func(t *testing.T) {
		tab := newEventTable(nil)
		assert.NotPanics(t, func() { tab.emit(EventClose, "svc") })
	})
}
