package log

import "testing"

type recordingLogger struct {
	events []Event
}

func (m *recordingLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}

	multi := NewMultiLogger(a, nil, b)
	multi.Log(Event{ListenerID: "l1"})

	for i, l := range []*recordingLogger{a, b} {
		if len(l.events) != 1 || l.events[0].ListenerID != "l1" {
			t.Errorf("logger %d: got %v", i, l.events)
		}
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	l := &recordingLogger{}
	if OrNoop(l) != Logger(l) {
		t.Error("OrNoop should return non-nil logger unchanged")
	}
}
