// Package notify publishes outcome records to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mattjoyce/intake/internal/outcome"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an outcome.Sink sending every record as JSON on
// <prefix>.<monitor>.<kind>.
type Publisher struct {
	conn   Conn
	prefix string
}

var _ outcome.Sink = (*Publisher)(nil)

func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Message is the published payload.
type Message struct {
	Service string `json:"service"`
	outcome.Record
}

func (p *Publisher) Accept(_ context.Context, rec outcome.Record) error {
	data, err := json.Marshal(Message{Service: "intake", Record: rec})
	if err != nil {
		return fmt.Errorf("encode outcome %s: %w", rec.ID, err)
	}
	subject := p.Subject(rec)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subject returns the subject rec is published on.
func (p *Publisher) Subject(rec outcome.Record) string {
	return p.prefix + "." + token(rec.Monitor) + "." + token(string(rec.Kind))
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS", "url", nc.ConnectedUrl())
	return nc, nil
}
