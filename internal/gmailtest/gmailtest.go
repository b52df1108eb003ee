// Package gmailtest serves a small in-memory Gmail API over httptest for
// tests of the packages built on internal/gmail.
package gmailtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
)

const apiPrefix = "/gmail/v1/users/me/"

// Server is a fake Gmail API for one mailbox.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	labels      []*gmailapi.Label
	order       []string
	messages    map[string]*gmailapi.Message
	attachments map[string]string
	sent        []string
	requests    []string
	auth        string

	// SendStatus, when set, is returned by messages.send instead of success.
	SendStatus int
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		labels: []*gmailapi.Label{
			{Id: "INBOX", Name: "INBOX"},
			{Id: "SENT", Name: "SENT"},
		},
		messages:    map[string]*gmailapi.Message{},
		attachments: map[string]string{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// SessionOption points a gmail.Session at this server.
func (s *Server) SessionOption() gmail.SessionOption {
	return gmail.WithClientOptions(option.WithEndpoint(s.srv.URL + "/"))
}

// AddMessage stores msg. Messages are listed newest first, in the reverse
// order they were added.
func (s *Server) AddMessage(msg *gmailapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ThreadId == "" {
		msg.ThreadId = "thread-" + msg.Id
	}
	s.messages[msg.Id] = msg
	s.order = append([]string{msg.Id}, s.order...)
}

// AddAttachment stores an attachment body for a message part.
func (s *Server) AddAttachment(messageID, attachmentID string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[messageID+"/"+attachmentID] = base64.URLEncoding.EncodeToString(content)
}

// Sent returns the decoded raw messages submitted to messages.send.
func (s *Server) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, len(s.sent))
	for _, raw := range s.sent {
		b, err := base64.URLEncoding.DecodeString(raw)
		if err != nil {
			b, _ = base64.RawURLEncoding.DecodeString(raw)
		}
		out = append(out, b)
	}
	return out
}

// Requests returns "METHOD path" for every request served, path relative to
// the users/me prefix.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Authorization returns the Authorization header of the last request.
func (s *Server) Authorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	s.requests = append(s.requests, r.Method+" "+path)
	s.auth = r.Header.Get("Authorization")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodGet && path == "labels":
		writeJSON(w, &gmailapi.ListLabelsResponse{Labels: s.labels})

	case r.Method == http.MethodPost && path == "messages/send":
		s.send(w, r)

	case r.Method == http.MethodGet && path == "messages":
		s.listMessages(w, r)

	case r.Method == http.MethodGet && path == "threads":
		s.listThreads(w, r)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "messages":
		msg, ok := s.messages[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "Requested entity was not found.")
			return
		}
		writeJSON(w, msg)

	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "messages" && parts[2] == "attachments":
		data, ok := s.attachments[parts[1]+"/"+parts[3]]
		if !ok {
			writeError(w, http.StatusNotFound, "Invalid attachment token")
			return
		}
		writeJSON(w, &gmailapi.MessagePartBody{Data: data, Size: int64(len(data))})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "threads":
		thread := &gmailapi.Thread{Id: parts[1]}
		for i := len(s.order) - 1; i >= 0; i-- {
			if msg := s.messages[s.order[i]]; msg.ThreadId == parts[1] {
				thread.Messages = append(thread.Messages, msg)
			}
		}
		if len(thread.Messages) == 0 {
			writeError(w, http.StatusNotFound, "Requested entity was not found.")
			return
		}
		writeJSON(w, thread)

	default:
		writeError(w, http.StatusNotFound, "unknown endpoint "+path)
	}
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := maxResults(q.Get("maxResults"))
	label := q.Get("labelIds")
	query := q.Get("q")

	resp := &gmailapi.ListMessagesResponse{Messages: []*gmailapi.Message{}}
	for _, id := range s.order {
		msg := s.messages[id]
		if label != "" && !slices.Contains(msg.LabelIds, label) {
			continue
		}
		if query != "" && !matches(msg, query) {
			continue
		}
		if len(resp.Messages) == limit {
			break
		}
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: msg.Id, ThreadId: msg.ThreadId})
	}
	writeJSON(w, resp)
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := maxResults(q.Get("maxResults"))
	query := q.Get("q")

	resp := &gmailapi.ListThreadsResponse{Threads: []*gmailapi.Thread{}}
	seen := map[string]bool{}
	for _, id := range s.order {
		msg := s.messages[id]
		if seen[msg.ThreadId] || (query != "" && !matches(msg, query)) {
			continue
		}
		if len(resp.Threads) == limit {
			break
		}
		seen[msg.ThreadId] = true
		resp.Threads = append(resp.Threads, &gmailapi.Thread{Id: msg.ThreadId})
	}
	writeJSON(w, resp)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	if s.SendStatus != 0 {
		writeError(w, s.SendStatus, "send rejected")
		return
	}
	var msg gmailapi.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sent = append(s.sent, msg.Raw)
	writeJSON(w, &gmailapi.Message{
		Id:       "sent-" + strconv.Itoa(len(s.sent)),
		ThreadId: "thread-sent-" + strconv.Itoa(len(s.sent)),
		LabelIds: []string{"SENT"},
	})
}

// matches reports whether the subject or snippet contains query,
// case-insensitively.
func matches(msg *gmailapi.Message, query string) bool {
	query = strings.ToLower(query)
	if strings.Contains(strings.ToLower(msg.Snippet), query) {
		return true
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "Subject") && strings.Contains(strings.ToLower(h.Value), query) {
				return true
			}
		}
	}
	return false
}

func maxResults(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return gmail.MaxPageSize
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, msg)
}

// Message builds an inbox message with a text/plain body.
func Message(id, subject, from, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:       id,
		LabelIds: []string{"INBOX", "UNREAD"},
		Snippet:  body,
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
				{Name: "To", Value: "jane@example.com"},
				{Name: "Date", Value: "Mon, 2 Jun 2025 10:00:00 +0000"},
			},
			Parts: []*gmailapi.MessagePart{{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
			}},
		},
	}
}

// WithAttachment adds an attachment part to msg and returns msg. The content
// must be registered with AddAttachment under the same ids.
func WithAttachment(msg *gmailapi.Message, filename, attachmentID string, size int64) *gmailapi.Message {
	msg.Payload.Parts = append(msg.Payload.Parts, &gmailapi.MessagePart{
		MimeType: gmail.GuessContentType(filename),
		Filename: filename,
		Body:     &gmailapi.MessagePartBody{AttachmentId: attachmentID, Size: size},
	})
	return msg
}

// SaveToken stores a valid credential for mailbox in store.
func SaveToken(t testing.TB, store *google.CredentialStore, mailbox string) {
	t.Helper()
	err := store.Save(mailbox, &oauth2.Token{
		AccessToken:  "access-" + mailbox,
		RefreshToken: "refresh-" + mailbox,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("save token: %v", err)
	}
}

// OAuthConfig is an OAuth client configuration whose endpoints are never
// reached while the stored tokens are valid.
func OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: "http://127.0.0.1:1/token",
		},
		RedirectURL: "http://localhost",
		Scopes:      google.DefaultScopes,
	}
}
