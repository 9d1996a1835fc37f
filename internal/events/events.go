// Package events publishes annotation results to NATS.
//
// Each result is published as JSON to
//
//	{subject}.{status}
//
// where status is "completed" or "failed", so that subscribers can follow
// every re-annotation with "{subject}.>" or only failures with
// "{subject}.failed".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/detectd/internal/logging"
	"github.com/fyrsmithlabs/detectd/internal/watch"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event is the payload of one published annotation.
type Event struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Path      string    `json:"path"`
	Output    string    `json:"output,omitempty"`
	Detectors int       `json:"detectors"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent converts a watcher result.
func NewEvent(res watch.Result) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Status:    StatusCompleted,
		Path:      res.Path,
		Output:    res.Output,
		Detectors: res.Detectors,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if res.Err != nil {
		ev.Status = StatusFailed
		ev.Output = ""
		ev.Error = res.Err.Error()
	}
	return ev
}

// Publisher sends annotation events over a NATS connection.
type Publisher struct {
	nats    *nats.Conn
	subject string
	logger  *logging.Logger
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, subject string, logger *logging.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("detectd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewPublisher(nc, subject, logger), nil
}

// NewPublisher creates a publisher on an existing connection. logger may be
// nil.
func NewPublisher(nc *nats.Conn, subject string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Publisher{nats: nc, subject: subject, logger: logger}
}

// Subject is the subject an event with status is published to.
func (p *Publisher) Subject(status string) string {
	return p.subject + "." + status
}

// Publish sends one result.
func (p *Publisher) Publish(ctx context.Context, res watch.Result) error {
	ev := NewEvent(res)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nats.Publish(p.Subject(ev.Status), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Status, err)
	}
	p.logger.Debug(ctx, "annotation event published",
		zap.String("subject", p.Subject(ev.Status)),
		zap.String("event_id", ev.ID),
	)
	return nil
}

// Forward publishes every result from in and passes it on, unchanged, on
// the returned channel. The returned channel closes when in closes. A failed
// publish is logged and does not stop forwarding.
func (p *Publisher) Forward(ctx context.Context, in <-chan watch.Result) <-chan watch.Result {
	out := make(chan watch.Result)
	go func() {
		defer close(out)
		for res := range in {
			if err := p.Publish(ctx, res); err != nil {
				p.logger.Warn(ctx, "failed to publish annotation event", zap.Error(err))
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() error {
	return p.nats.Drain()
}
