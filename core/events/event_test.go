package events

import (
	"testing"

	"xaumdca/core/types"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(Wrap(&types.Event{Type: "a", Attributes: map[string]string{"k": "1"}}))
	rec.Emit(bareEvent{})
	rec.Emit(Wrap(&types.Event{Type: "a", Attributes: map[string]string{"k": "2"}}))

	got := rec.OfType("a")
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Attr("k") != "2" {
		t.Fatalf("unexpected ordering: %v", got)
	}
	if len(rec.Events()) != 3 {
		t.Fatalf("expected 3 recorded events")
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("reset did not clear events")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Emit(bareEvent{})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("event not delivered to every emitter")
	}
}

func TestCanonicalRejectsBareEvents(t *testing.T) {
	if _, ok := Canonical(bareEvent{}); ok {
		t.Fatalf("bare event should not carry a payload")
	}
	if _, ok := Canonical(Wrap(nil)); ok {
		t.Fatalf("nil payload should not be canonical")
	}
}
