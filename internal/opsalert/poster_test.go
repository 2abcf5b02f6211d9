package opsalert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatEscalationMessage(t *testing.T) {
	msg := formatEscalationMessage("call-42", "KYC_STATUS", 3)

	checks := []string{"escalation", "call-42", "KYC_STATUS", "3", "human"}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got %q", check, msg)
		}
	}
}

func TestFormatSinkFailureMessage(t *testing.T) {
	msg := formatSinkFailureMessage("call-7", errors.New("connection refused"))

	checks := []string{"call-7", "connection refused", "NOT written"}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got %q", check, msg)
		}
	}
}

func TestPostEscalation_Success(t *testing.T) {
	posted := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		posted <- payload

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	p.PostEscalation(context.Background(), "call-42", "ACCOUNT_BLOCK", 3)

	payload := <-posted
	if payload["channel"] != "C123" {
		t.Errorf("expected channel C123, got %v", payload["channel"])
	}
	text, _ := payload["text"].(string)
	if !strings.Contains(text, "call-42") {
		t.Errorf("expected text to mention session, got %q", text)
	}
}

func TestPostSinkFailure_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	// Must not panic or block; the failure is logged.
	p.PostSinkFailure(context.Background(), "call-9", errors.New("db down"))
}

func TestUnconfiguredPosterLogsOnly(t *testing.T) {
	p := NewPoster("", "", discardLogger())

	if p.Enabled() {
		t.Error("poster without token and channel must report disabled")
	}
	// No server configured anywhere; this must not attempt a request.
	p.PostEscalation(context.Background(), "call-1", "KYC_STATUS", 3)
}
