// Package opsalert posts operational alerts to the ops Slack channel:
// human escalations the agent could not resolve, and ledger sink failures
// that need manual record creation.
package opsalert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Enabled reports whether alerting is configured. An unconfigured poster
// logs instead of posting.
func (p *Poster) Enabled() bool {
	return p.token != "" && p.channel != ""
}

// PostEscalation alerts the ops channel that a session hit the consecutive
// tool failure budget and needs a human.
func (p *Poster) PostEscalation(ctx context.Context, sessionRef, intent string, failureStreak int) {
	text := formatEscalationMessage(sessionRef, intent, failureStreak)
	p.post(ctx, "escalation", sessionRef, text)
}

// PostSinkFailure alerts the ops channel that a session's record could not
// be written after all retries and needs manual creation.
func (p *Poster) PostSinkFailure(ctx context.Context, sessionRef string, cause error) {
	text := formatSinkFailureMessage(sessionRef, cause)
	p.post(ctx, "sink failure", sessionRef, text)
}

func (p *Poster) post(ctx context.Context, kind, sessionRef, text string) {
	if !p.Enabled() {
		p.logger.Warn("ops alert not configured, logging only",
			"kind", kind, "session_ref", sessionRef, "alert", text)
		return
	}
	if err := p.postMessage(ctx, text); err != nil {
		p.logger.Error("ops alert post failed",
			"kind", kind, "session_ref", sessionRef, "error", err)
		return
	}
	p.logger.Info("ops alert posted", "kind", kind, "session_ref", sessionRef)
}

func (p *Poster) postMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return nil
}

func formatEscalationMessage(sessionRef, intent string, failureStreak int) string {
	var sb strings.Builder
	sb.WriteString(":rotating_light: *Sahayak escalation*\n")
	fmt.Fprintf(&sb, "*Session:* %s\n", sessionRef)
	fmt.Fprintf(&sb, "*Intent:* %s\n", intent)
	fmt.Fprintf(&sb, "*Consecutive tool failures:* %d\n", failureStreak)
	sb.WriteString("Caller was told a human will follow up.")
	return sb.String()
}

func formatSinkFailureMessage(sessionRef string, cause error) string {
	var sb strings.Builder
	sb.WriteString(":warning: *Sahayak record sink failure*\n")
	fmt.Fprintf(&sb, "*Session:* %s\n", sessionRef)
	fmt.Fprintf(&sb, "*Error:* %v\n", cause)
	sb.WriteString("Record was NOT written. Create it manually from the session log.")
	return sb.String()
}
