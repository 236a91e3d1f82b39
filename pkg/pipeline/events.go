package pipeline

import (
	"log/slog"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventStepStarted   EventType = "step.started"
	EventStepSucceeded EventType = "step.succeeded"
	EventStepFailed    EventType = "step.failed"
	EventRunCompleted  EventType = "run.completed"
	EventRunAborted    EventType = "run.aborted"
)

// Event is emitted synchronously from the run goroutine.
type Event struct {
	Type      EventType
	Pipeline  string
	Step      string
	Kind      string
	Index     int // 1-based; 0 for run events
	Total     int
	Address   string // handle produced by the step, if any
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Observer receives progress events. Observers must not block for long;
// the next step waits for them.
type Observer interface {
	Event(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Event(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Event(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Event(e)
		}
	}
}

// LogObserver writes events to a slog.Logger.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns an observer logging to l, or slog.Default() if l is nil.
func NewLogObserver(l *slog.Logger) *LogObserver {
	return &LogObserver{Logger: l}
}

func (o *LogObserver) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *LogObserver) Event(e Event) {
	l := o.logger().With("pipeline", e.Pipeline)

	switch e.Type {
	case EventRunStarted:
		l.Info("starting provisioning", "steps", e.Total)
	case EventStepStarted:
		l.Debug("running step", "step", e.Step, "type", e.Kind, "index", e.Index, "total", e.Total)
	case EventStepSucceeded:
		attrs := []any{"step", e.Step, "type", e.Kind, "index", e.Index, "total", e.Total, "duration", e.Duration.Round(time.Millisecond)}
		if e.Address != "" {
			l.Info("resource deployed", append(attrs, "address", e.Address)...)
			return
		}
		l.Info("step completed", attrs...)
	case EventStepFailed:
		l.Error("step failed", "step", e.Step, "type", e.Kind, "index", e.Index, "total", e.Total, "error", e.Err)
	case EventRunCompleted:
		l.Info("provisioning completed", "duration", e.Duration.Round(time.Millisecond))
	case EventRunAborted:
		l.Error("provisioning aborted", "step", e.Step, "error", e.Err)
	}
}
