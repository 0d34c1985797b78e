package mqtt

import (
	"context"
	"time"

	"github.com/nerrad567/acs-auto/internal/macro"
)

// Run lifecycle event names, the last segment of Topics.RunEvent.
const (
	EventRunStarted  = "started"
	EventRunFinished = "finished"
)

// eventBuffer bounds events waiting for the broker.
const eventBuffer = 32

// RunEvent is the payload published for run lifecycle changes.
type RunEvent struct {
	Station   string    `json:"station"`
	Event     string    `json:"event"`
	Run       macro.Run `json:"run"`
	Timestamp time.Time `json:"timestamp"`
}

// RunPublisher publishes run lifecycle events. It implements
// macro.RunListener; events are queued and sent by Run so the macro worker
// never waits on the broker.
type RunPublisher struct {
	transport Transport
	topics    Topics
	logger    Logger
	events    chan RunEvent
}

// NewRunPublisher creates a publisher for station. logger may be nil.
func NewRunPublisher(transport Transport, station string, logger Logger) *RunPublisher {
	return &RunPublisher{
		transport: transport,
		topics:    Topics{Station: station},
		logger:    logger,
		events:    make(chan RunEvent, eventBuffer),
	}
}

// RunStarted implements macro.RunListener.
func (p *RunPublisher) RunStarted(run *macro.Run) {
	p.enqueue(EventRunStarted, run)
}

// RunFinished implements macro.RunListener.
func (p *RunPublisher) RunFinished(run *macro.Run) {
	p.enqueue(EventRunFinished, run)
}

func (p *RunPublisher) enqueue(event string, run *macro.Run) {
	msg := RunEvent{
		Station:   p.topics.Station,
		Event:     event,
		Run:       *run.Clone(),
		Timestamp: time.Now().UTC(),
	}
	select {
	case p.events <- msg:
	default:
		if p.logger != nil {
			p.logger.Warn("run event dropped, publisher queue full", "event", event, "run_id", run.ID)
		}
	}
}

// Run publishes queued events in order until ctx is cancelled.
func (p *RunPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.events:
			p.publish(msg)
		}
	}
}

func (p *RunPublisher) publish(msg RunEvent) {
	if err := p.transport.PublishJSON(p.topics.RunEvent(msg.Event), msg); err != nil && p.logger != nil {
		p.logger.Warn("publishing run event failed", "event", msg.Event, "run_id", msg.Run.ID, "error", err)
	}
}
