package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/acs-auto/internal/macro"
)

type published struct {
	topic string
	value any
}

type fakeTransport struct {
	mu         sync.Mutex
	handlers   map[string]MessageHandler
	published  []published
	publishErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]MessageHandler)}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) PublishJSON(topic string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic, v})
	return nil
}

func (f *fakeTransport) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeActions struct {
	runErr  error
	ran     []macro.Category
	sources []string
	stopped bool
}

func (a *fakeActions) RunCategory(c macro.Category, source string) (*macro.Run, error) {
	if a.runErr != nil {
		return nil, a.runErr
	}
	a.ran = append(a.ran, c)
	a.sources = append(a.sources, source)
	return &macro.Run{ID: "run-1", Category: c}, nil
}

func (a *fakeActions) ToggleStop() bool {
	a.stopped = !a.stopped
	return a.stopped
}

func (a *fakeActions) SetStop(on bool) { a.stopped = on }

func lastResult(t *testing.T, f *fakeTransport) (string, CommandResult) {
	t.Helper()
	msgs := f.messages()
	if len(msgs) == 0 {
		t.Fatal("no command result published")
	}
	last := msgs[len(msgs)-1]
	res, ok := last.value.(CommandResult)
	if !ok {
		t.Fatalf("published %T, want CommandResult", last.value)
	}
	return last.topic, res
}

func TestCommandListenerStartStop(t *testing.T) {
	transport := newFakeTransport()
	l := NewCommandListener(transport, "bench-01", &fakeActions{}, nil)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if _, ok := transport.handlers["acsauto/bench-01/command/+"]; !ok {
		t.Fatalf("handlers = %v, want command wildcard", transport.handlers)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if len(transport.handlers) != 0 {
		t.Error("subscription left after Stop")
	}
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		runErr    error
		wantErr   error
		wantOK    bool
		wantRunID string
	}{
		{name: "starts category", payload: `{"category":"address","request_id":"r1"}`, wantOK: true, wantRunID: "run-1"},
		{name: "busy", payload: `{"category":"test"}`, runErr: macro.ErrBusy, wantErr: macro.ErrBusy},
		{name: "unknown category", payload: `{"category":"calibrate"}`, wantErr: macro.ErrUnknownCategory},
		{name: "bad json", payload: `{`, wantErr: ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			actions := &fakeActions{runErr: tt.runErr}
			l := NewCommandListener(transport, "bench-01", actions, nil)

			err := l.Handle("acsauto/bench-01/command/run", []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Handle() = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Handle() = %v", err)
			}

			topic, res := lastResult(t, transport)
			if topic != "acsauto/bench-01/command/run/result" {
				t.Errorf("result topic = %q", topic)
			}
			if res.OK != tt.wantOK || res.RunID != tt.wantRunID {
				t.Errorf("result = %+v", res)
			}
			if !tt.wantOK && res.Error == "" {
				t.Error("failed result carries no error")
			}
			if tt.wantOK && (len(actions.sources) != 1 || actions.sources[0] != macro.SourceMQTT) {
				t.Errorf("sources = %v, want [mqtt]", actions.sources)
			}
		})
	}
}

func TestStopCommand(t *testing.T) {
	transport := newFakeTransport()
	actions := &fakeActions{}
	l := NewCommandListener(transport, "bench-01", actions, nil)
	topic := Topics{Station: "bench-01"}.StopCommand()

	steps := []struct {
		payload string
		want    bool
	}{
		{"", true},
		{"", false},
		{`{"stop":true}`, true},
		{`{"stop":true}`, true},
		{`{"stop":false}`, false},
	}
	for i, s := range steps {
		if err := l.Handle(topic, []byte(s.payload)); err != nil {
			t.Fatalf("step %d: Handle() = %v", i, err)
		}
		_, res := lastResult(t, transport)
		if !res.OK || res.Stopped == nil || *res.Stopped != s.want || actions.stopped != s.want {
			t.Errorf("step %d: result=%+v actions=%v, want stopped=%v", i, res, actions.stopped, s.want)
		}
	}

	if err := l.Handle(topic, []byte("nope")); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Handle(bad) = %v, want ErrInvalidCommand", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	l := NewCommandListener(newFakeTransport(), "bench-01", &fakeActions{}, nil)
	if err := l.Handle("acsauto/bench-01/command/reboot", nil); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Handle() = %v, want ErrInvalidCommand", err)
	}
}

func TestReplyFailureIsLogged(t *testing.T) {
	transport := newFakeTransport()
	transport.publishErr = ErrNotConnected
	logger := &recordingLogger{}
	l := NewCommandListener(transport, "bench-01", &fakeActions{}, logger)

	if err := l.Handle("acsauto/bench-01/command/stop", nil); err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if got := logger.all(); len(got) != 1 || got[0] != "warn:publishing command result failed" {
		t.Errorf("log = %v", got)
	}
}

func TestRunPublisherPublishesInOrder(t *testing.T) {
	transport := newFakeTransport()
	p := NewRunPublisher(transport, "bench-01", nil)

	run := &macro.Run{ID: "run-7", Status: macro.RunRunning}
	p.RunStarted(run)
	run.Status = macro.RunCompleted
	p.RunFinished(run)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(transport.messages()) < 2 {
		select {
		case <-deadline:
			t.Fatal("events were not published")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	msgs := transport.messages()
	wantTopics := []string{"acsauto/bench-01/run/started", "acsauto/bench-01/run/finished"}
	wantStatus := []macro.RunStatus{macro.RunRunning, macro.RunCompleted}
	for i, m := range msgs {
		ev, ok := m.value.(RunEvent)
		if !ok {
			t.Fatalf("published %T, want RunEvent", m.value)
		}
		if m.topic != wantTopics[i] || ev.Run.Status != wantStatus[i] || ev.Station != "bench-01" {
			t.Errorf("event %d = %s %+v", i, m.topic, ev)
		}
	}
}

func TestRunPublisherDropsWhenFull(t *testing.T) {
	logger := &recordingLogger{}
	p := NewRunPublisher(newFakeTransport(), "bench-01", logger)

	run := &macro.Run{ID: "run-1"}
	for i := 0; i < eventBuffer+1; i++ {
		p.RunStarted(run)
	}
	if got := logger.all(); len(got) != 1 || got[0] != "warn:run event dropped, publisher queue full" {
		t.Errorf("log = %v", got)
	}
}
