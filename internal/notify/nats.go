// Package notify publishes deployment lifecycle events to NATS when configured.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
)

// Event is the payload published for each finished deployment.
type Event struct {
	DeployID  string    `json:"deploy_id"`
	Folder    string    `json:"folder"`
	Outcome   string    `json:"outcome"`
	Bytes     int64     `json:"bytes,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes deploy events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to NATS using the notify config.
// Returns an error when notifications are disabled or unreachable; callers
// decide whether that is fatal.
func NewPublisher(cfg *config.NotifyConfig) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("notifications are disabled")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("nekodeploy"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS notifications enabled", "url", cfg.URL, "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one deploy event. Failures are returned for logging; they
// never affect deployment outcome.
func (p *Publisher) Publish(ev Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal deploy event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish deploy event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	// Drain flushes buffered messages before closing.
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
