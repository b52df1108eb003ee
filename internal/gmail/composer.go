package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// Body types accepted by OutgoingMessage.
const (
	BodyTypePlain = "plain"
	BodyTypeHTML  = "html"
)

const defaultContentType = "application/octet-stream"

// Extensions that name a compression wrapper rather than a content type,
// including the shorthands for a compressed tar or svg.
var transportEncodings = map[string]bool{
	".tgz":  true,
	".taz":  true,
	".tz":   true,
	".tbz2": true,
	".txz":  true,
	".svgz": true,
	".gz":  true,
	".bz2": true,
	".xz":  true,
	".Z":   true,
	".br":  true,
}

// OutgoingMessage is a message to be sent.
type OutgoingMessage struct {
	To              string
	Subject         string
	Body            string
	BodyType        string
	AttachmentPaths []string
}

// SentMessage is the provider's confirmation of a sent message.
type SentMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	LabelIDs []string `json:"label_ids,omitempty"`
}

// MissingAttachment returns the first attachment path that does not exist,
// or "" when all of them do.
func (m *OutgoingMessage) MissingAttachment() string {
	for _, p := range m.AttachmentPaths {
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
	return ""
}

// BuildRaw renders msg as an RFC 5322 multipart/mixed message.
func BuildRaw(msg *OutgoingMessage) ([]byte, error) {
	if missing := msg.MissingAttachment(); missing != "" {
		return nil, &NotFoundError{What: "file", ID: missing}
	}

	to, err := mail.ParseAddressList(msg.To)
	if err != nil {
		return nil, &ValidationError{Field: "to", Reason: err.Error()}
	}
	if len(to) == 0 {
		return nil, &ValidationError{Field: "to", Reason: "no recipients"}
	}

	bodyType := strings.ToLower(msg.BodyType)
	switch bodyType {
	case "":
		bodyType = BodyTypePlain
	case BodyTypePlain, BodyTypeHTML:
	default:
		return nil, &ValidationError{Field: "body_type", Reason: fmt.Sprintf("must be %q or %q", BodyTypePlain, BodyTypeHTML)}
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/"+bodyType, map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := io.WriteString(tw, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}

	for _, path := range msg.AttachmentPaths {
		if err := writeAttachmentPart(mw, path); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAttachmentPart(mw *mail.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{What: "file", ID: path}
		}
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(GuessContentType(path), nil)
	ah.SetFilename(filepath.Base(path))
	ah.Set("Content-Transfer-Encoding", "base64")

	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write attachment %s: %w", path, err)
	}
	return w.Close()
}

// GuessContentType maps a file name to a MIME type by extension. Unknown
// extensions and compression suffixes map to application/octet-stream.
func GuessContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" || transportEncodings[ext] || transportEncodings[strings.ToLower(ext)] {
		return defaultContentType
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return defaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return defaultContentType
	}
	return mediaType
}

// Send builds msg and submits it.
func (s *Session) Send(ctx context.Context, msg *OutgoingMessage) (*SentMessage, error) {
	raw, err := BuildRaw(msg)
	if err != nil {
		return nil, err
	}

	sent, err := call(ctx, s, instrumentation.MethodMessagesSend, func(ctx context.Context) (*gmail.Message, error) {
		return s.svc.Messages.Send(me, &gmail.Message{
			Raw: base64.URLEncoding.EncodeToString(raw),
		}).Context(ctx).Do()
	})
	if err != nil {
		s.metrics.RecordMessageSent(ctx, instrumentation.StatusError)
		s.logger.Error("failed to send email", logging.Err(err))
		return nil, err
	}
	s.metrics.RecordMessageSent(ctx, instrumentation.StatusSuccess)
	s.logger.Info("email sent",
		logging.MessageID(sent.Id),
		slog.Int("attachments", len(msg.AttachmentPaths)))
	return &SentMessage{ID: sent.Id, ThreadID: sent.ThreadId, LabelIDs: sent.LabelIds}, nil
}
