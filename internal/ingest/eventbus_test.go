package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/snarg/transcript-segmenter/internal/api"
)

// ── EventBus Publish/Subscribe ────────────────────────────────────────

func TestEventBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		defer cancel()

		eb.Publish(EventData{
			Type:    EventRunComplete,
			Source:  "http",
			JobID:   "job-1",
			Payload: map[string]string{"msg": "hello"},
		})

		select {
		case evt := <-ch:
			if evt.Type != EventRunComplete {
				t.Errorf("Type = %q, want %s", evt.Type, EventRunComplete)
			}
			if evt.Source != "http" {
				t.Errorf("Source = %q, want http", evt.Source)
			}
			if evt.JobID != "job-1" {
				t.Errorf("JobID = %q, want job-1", evt.JobID)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["msg"] != "hello" {
				t.Errorf("payload msg = %q, want hello", payload["msg"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{Types: []string{EventRunFailed}})
		defer cancel()

		eb.Publish(EventData{Type: EventRunComplete, Payload: "x"})

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		cancel()

		eb.Publish(EventData{Type: EventRunQueued, Payload: "x"})

		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("should not receive event after cancel")
			}
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("multiple_subscribers", func(t *testing.T) {
		eb := NewEventBus(64)
		ch1, cancel1 := eb.Subscribe(api.EventFilter{})
		defer cancel1()
		ch2, cancel2 := eb.Subscribe(api.EventFilter{})
		defer cancel2()

		eb.Publish(EventData{Type: EventRunQueued, Payload: "x"})

		for i, ch := range []<-chan api.SSEEvent{ch1, ch2} {
			select {
			case evt := <-ch:
				if evt.Type != EventRunQueued {
					t.Errorf("subscriber %d: Type = %q, want %s", i, evt.Type, EventRunQueued)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})

	t.Run("unmarshalable_payload_dropped", func(t *testing.T) {
		eb := NewEventBus(4)
		eb.Publish(EventData{Type: EventRunQueued, Payload: make(chan int)})
		if got := eb.ReplaySince("", api.EventFilter{}); len(got) != 0 {
			t.Errorf("got %d events, want 0", len(got))
		}
	})
}

// ── EventBus ReplaySince ─────────────────────────────────────────────

func TestEventBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: EventRunQueued, Payload: "a"})
		eb.Publish(EventData{Type: EventRunComplete, Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{})
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].Type != EventRunQueued {
			t.Errorf("first event = %q, want oldest first", events[0].Type)
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: EventRunQueued, Payload: "a"})

		allEvents := eb.ReplaySince("", api.EventFilter{})
		if len(allEvents) != 1 {
			t.Fatalf("expected 1 event, got %d", len(allEvents))
		}
		firstID := allEvents[0].ID

		eb.Publish(EventData{Type: EventRunComplete, Payload: "b"})

		events := eb.ReplaySince(firstID, api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (after first)", len(events))
		}
		if events[0].Type != EventRunComplete {
			t.Errorf("Type = %q, want %s", events[0].Type, EventRunComplete)
		}
	})

	t.Run("replay_with_filter", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: EventRunComplete, Source: "watch", Payload: "a"})
		eb.Publish(EventData{Type: EventRunComplete, Source: "mqtt", Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{Sources: []string{"mqtt"}})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (filtered)", len(events))
		}
		if events[0].Source != "mqtt" {
			t.Errorf("Source = %q, want mqtt", events[0].Source)
		}
	})

	t.Run("unknown_lastID_replays_all", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: EventRunQueued, Payload: "a"})

		events := eb.ReplaySince("nonexistent-id", api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (fallback replay all)", len(events))
		}
	})

	t.Run("ring_wraps", func(t *testing.T) {
		eb := NewEventBus(2)
		eb.Publish(EventData{Type: "a", Payload: 1})
		eb.Publish(EventData{Type: "b", Payload: 2})
		eb.Publish(EventData{Type: "c", Payload: 3})

		events := eb.ReplaySince("", api.EventFilter{})
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].Type != "b" || events[1].Type != "c" {
			t.Errorf("got %s,%s want b,c", events[0].Type, events[1].Type)
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		event  api.SSEEvent
		filter api.EventFilter
		want   bool
	}{
		{"empty_filter_matches_all", api.SSEEvent{Type: EventRunQueued, Source: "http"}, api.EventFilter{}, true},
		{"type_match", api.SSEEvent{Type: EventRunQueued}, api.EventFilter{Types: []string{EventRunQueued}}, true},
		{"type_no_match", api.SSEEvent{Type: EventRunQueued}, api.EventFilter{Types: []string{EventRunFailed}}, false},
		{"type_multiple_one_matches", api.SSEEvent{Type: EventRunFailed}, api.EventFilter{Types: []string{EventRunQueued, EventRunFailed}}, true},
		{"type_trimmed", api.SSEEvent{Type: EventRunFailed}, api.EventFilter{Types: []string{" run_failed "}}, true},
		{"source_match", api.SSEEvent{Type: EventRunQueued, Source: "watch"}, api.EventFilter{Sources: []string{"watch", "mqtt"}}, true},
		{"source_no_match", api.SSEEvent{Type: EventRunQueued, Source: "http"}, api.EventFilter{Sources: []string{"watch"}}, false},
		{
			"type_and_source_both_required",
			api.SSEEvent{Type: EventRunQueued, Source: "watch"},
			api.EventFilter{Types: []string{EventRunComplete}, Sources: []string{"watch"}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesFilter(tt.event, tt.filter)
			if got != tt.want {
				t.Errorf("matchesFilter(%+v, %+v) = %v, want %v", tt.event, tt.filter, got, tt.want)
			}
		})
	}
}
