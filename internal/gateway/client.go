// Package gateway is the NATS-facing edge: it receives utterance and
// call-lifecycle events from the voice front end and publishes the agent's
// consolidated replies.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects on the call bus.
const (
	// SubjectUtterance carries one transcribed caller utterance.
	SubjectUtterance = "opus.call.utterance"
	// SubjectCallClosed signals the telephony layer ended a call.
	SubjectCallClosed = "opus.call.closed"
	// SubjectReply carries the agent's consolidated reply for a turn.
	SubjectReply = "opus.agent.reply"
	// SubjectRegistered announces this instance on startup.
	SubjectRegistered = "opus.agent.sahayak.registered"
)

// UtteranceEvent is one transcribed caller turn.
type UtteranceEvent struct {
	SessionRef   string    `json:"session_ref"`
	Utterance    string    `json:"utterance"`
	CallerNumber string    `json:"caller_number,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// CallClosedEvent signals the end of a call, clean or dropped.
type CallClosedEvent struct {
	SessionRef string    `json:"session_ref"`
	Reason     string    `json:"reason,omitempty"`
	ClosedAt   time.Time `json:"closed_at"`
}

// ReplyEvent is the single consolidated reply for one turn.
type ReplyEvent struct {
	SessionRef string    `json:"session_ref"`
	TurnIndex  int       `json:"turn_index"`
	Reply      string    `json:"reply"`
	Intent     string    `json:"intent"`
	Terminal   bool      `json:"terminal"`
	SentAt     time.Time `json:"sent_at"`
}

// RegisteredEvent announces a live instance.
type RegisteredEvent struct {
	Instance  string    `json:"instance"`
	StartedAt time.Time `json:"started_at"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishReply publishes the turn's consolidated reply.
func (c *Client) PublishReply(reply ReplyEvent) error {
	return c.Publish(SubjectReply, reply)
}

// Subscribe registers a handler for a subject. Every message is dispatched
// on its own goroutine, so a slow turn in one call never stalls the other
// calls; per-session serialization is the session lock's job.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		go handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
