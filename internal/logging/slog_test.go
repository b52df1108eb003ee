package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestAttrs(t *testing.T) {
	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{"operation", Operation("get_inbox"), KeyOperation, "get_inbox"},
		{"tool", Tool("search"), KeyTool, "search"},
		{"message id", MessageID("18c1"), KeyMessageID, "18c1"},
		{"folder", Folder("INBOX"), KeyFolder, "INBOX"},
		{"request id", RequestID("abc"), KeyRequestID, "abc"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
			}
			if tt.attr.Value.String() != tt.value {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.value)
			}
		})
	}
}

func TestMailboxAttrIsHashed(t *testing.T) {
	attr := Mailbox("jane@example.com")
	if attr.Key != KeyMailbox {
		t.Errorf("Mailbox key = %q, want %q", attr.Key, KeyMailbox)
	}
	if strings.Contains(attr.Value.String(), "jane") {
		t.Errorf("Mailbox value leaks the address: %q", attr.Value.String())
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != KeyError || attr.Value.String() != "boom" {
		t.Errorf("Err = %v, want error=boom", attr)
	}

	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty group", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantLen int
	}{
		{"jane@example.com", 20}, // "mbx:" + 16 hex chars
		{"user@gmail.com", 20},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			if len(got) != tt.wantLen {
				t.Errorf("AnonymizeEmail(%q) length = %d, want %d", tt.email, len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && !strings.HasPrefix(got, "mbx:") {
				t.Errorf("AnonymizeEmail(%q) = %q, want mbx: prefix", tt.email, got)
			}
		})
	}

	if AnonymizeEmail("Test@Example.com") != AnonymizeEmail("test@example.com") {
		t.Error("AnonymizeEmail should be case-insensitive")
	}
	if AnonymizeEmail("a@example.com") == AnonymizeEmail("b@example.com") {
		t.Error("different mailboxes should hash differently")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"ya29.a0AfH6SMB", "[token:14 chars]"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"invalid", ""},
		{"", ""},
		{"@", ""},
		{"user@", ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := ExtractDomain(tt.email); got != tt.expected {
				t.Errorf("ExtractDomain(%q) = %q, want %q", tt.email, got, tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Debug: true, Format: FormatJSON})
	logger.Debug("hello", Folder("INBOX"))
	out := buf.String()
	if !strings.Contains(out, `"folder":"INBOX"`) {
		t.Errorf("expected JSON output with folder attr, got %q", out)
	}

	buf.Reset()
	logger = New(&buf, Options{})
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := slog.Default()
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return the given logger")
	}
	WithComponent(nil, "x").Info("does not panic")
	WithMailbox(nil, "a@example.com").Info("does not panic")
}
