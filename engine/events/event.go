// Package events carries the pipeline's one-way output: log lines, emitted
// posts, progress snapshots and the completion signal.
package events

import (
	"time"

	"github.com/cafescout/cafescout/engine/domain"
)

// Kind discriminates an Event's payload.
type Kind string

const (
	KindLog       Kind = "log"
	KindPost      Kind = "post"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
)

// Severity grades a log line for presentation.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Log is a user-facing message.
type Log struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// PostFound announces an emitted post.
type PostFound struct {
	No       int               `json:"no"`
	SourceID string            `json:"id"`
	Title    string            `json:"content"`
	URL      string            `json:"url"`
	Record   domain.PostRecord `json:"record"`
}

// Completed ends a run. Normal is false for stopped and failed runs.
type Completed struct {
	Normal  bool   `json:"normal"`
	Outcome string `json:"outcome"`
	Emitted int    `json:"emitted"`
	Reason  string `json:"reason,omitempty"`
}

// Event is the envelope published on the bus. Exactly one payload is set.
type Event struct {
	RunID     string                `json:"run_id"`
	Kind      Kind                  `json:"kind"`
	Time      time.Time             `json:"time"`
	Log       *Log                  `json:"log,omitempty"`
	Post      *PostFound            `json:"post,omitempty"`
	Progress  *domain.ProgressEvent `json:"progress,omitempty"`
	Completed *Completed            `json:"completed,omitempty"`
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(Event)
}

// Emitter stamps events for one run.
type Emitter struct {
	pub   Publisher
	runID string
	now   func() time.Time
}

// NewEmitter creates an Emitter for runID.
func NewEmitter(pub Publisher, runID string) *Emitter {
	return &Emitter{pub: pub, runID: runID, now: time.Now}
}

func (e *Emitter) emit(ev Event) {
	ev.RunID = e.runID
	ev.Time = e.now()
	e.pub.Publish(ev)
}

func (e *Emitter) Log(sev Severity, msg string) {
	e.emit(Event{Kind: KindLog, Log: &Log{Message: msg, Severity: sev}})
}

func (e *Emitter) Post(p PostFound) {
	e.emit(Event{Kind: KindPost, Post: &p})
}

func (e *Emitter) Progress(p domain.ProgressEvent) {
	e.emit(Event{Kind: KindProgress, Progress: &p})
}

func (e *Emitter) Completed(c Completed) {
	e.emit(Event{Kind: KindCompleted, Completed: &c})
}
