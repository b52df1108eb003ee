package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// Placeholders used when a message lacks the corresponding field.
const (
	NoBodyPlaceholder       = "<text body not available>"
	NoSubjectPlaceholder    = "No subject"
	NoSenderPlaceholder     = "No sender"
	NoRecipientsPlaceholder = "No recipients"
	NoDatePlaceholder       = "No date"
	NoSnippetPlaceholder    = "No snippet"
)

const (
	starredLabel        = "STARRED"
	mimeTextPlain       = "text/plain"
	mimeTextHTML        = "text/html"
	mimeMultipartAltern = "multipart/alternative"
)

// BodyPolicy selects the body extraction algorithm.
type BodyPolicy string

const (
	// BodyPolicyFirstInline takes the first top-level part carrying inline
	// data, whatever its type. A multipart/alternative part contributes its
	// first text/plain sub-part and the scan goes on.
	BodyPolicyFirstInline BodyPolicy = "first-inline"

	// BodyPolicyPreferText walks the whole tree and prefers text/plain, then
	// text/html, then inline data on the root.
	BodyPolicyPreferText BodyPolicy = "prefer-text"
)

// ParseBodyPolicy parses a policy name. The empty string selects the default.
func ParseBodyPolicy(s string) (BodyPolicy, error) {
	switch BodyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BodyPolicyFirstInline:
		return BodyPolicyFirstInline, nil
	case BodyPolicyPreferText:
		return BodyPolicyPreferText, nil
	}
	return "", &ValidationError{Field: "body_policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// MessageDetail is the flattened view of one message.
type MessageDetail struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Subject        string `json:"subject"`
	Sender         string `json:"sender"`
	Recipients     string `json:"recipients"`
	Body           string `json:"body"`
	Snippet        string `json:"snippet"`
	HasAttachments bool   `json:"has_attachments"`
	Date           string `json:"date"`
	Star           bool   `json:"star"`
	Label          string `json:"label"`

	// Set by read_latest when downloads were requested.
	AttachmentsDownloaded *bool  `json:"attachments_downloaded,omitempty"`
	AttachmentDir         string `json:"attachment_dir,omitempty"`
	AttachmentError       string `json:"attachment_error,omitempty"`
}

// partKind tags the three shapes a MIME part can take for body extraction.
type partKind int

const (
	leafWithoutData partKind = iota
	leafWithData
	multipartContainer
)

type bodyPart struct {
	kind     partKind
	mimeType string
	data     string
	children []bodyPart
}

func classifyPart(p *gmail.MessagePart) bodyPart {
	if p == nil {
		return bodyPart{kind: leafWithoutData}
	}
	bp := bodyPart{mimeType: strings.ToLower(p.MimeType)}
	switch {
	case len(p.Parts) > 0 || strings.HasPrefix(bp.mimeType, "multipart/"):
		bp.kind = multipartContainer
		bp.children = make([]bodyPart, 0, len(p.Parts))
		for _, sub := range p.Parts {
			bp.children = append(bp.children, classifyPart(sub))
		}
	case p.Body != nil && p.Body.Data != "":
		bp.kind = leafWithData
		bp.data = p.Body.Data
	default:
		bp.kind = leafWithoutData
	}
	return bp
}

// GetMessageDetail fetches a message and flattens it.
func (s *Session) GetMessageDetail(ctx context.Context, messageID string) (*MessageDetail, error) {
	if messageID == "" {
		return nil, &ValidationError{Field: "message_id", Reason: "must not be empty"}
	}
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return buildDetail(msg, s.bodyPolicy)
}

// ExtractDetail is GetMessageDetail with failures logged and reported as nil.
// Callers skip a nil detail.
func (s *Session) ExtractDetail(ctx context.Context, messageID string) *MessageDetail {
	d, err := s.GetMessageDetail(ctx, messageID)
	if err != nil {
		s.logger.Warn("failed to get message details",
			logging.MessageID(messageID), logging.Err(err))
		return nil
	}
	return d
}

func (s *Session) getMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	return call(ctx, s, instrumentation.MethodMessagesGet, func(ctx context.Context) (*gmail.Message, error) {
		return s.svc.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
	}, instrumentation.MessageIDAttr(messageID))
}

func buildDetail(msg *gmail.Message, policy BodyPolicy) (*MessageDetail, error) {
	if msg == nil || msg.Payload == nil {
		return nil, fmt.Errorf("message has no payload")
	}
	headers := msg.Payload.Headers

	d := &MessageDetail{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Subject:    header(headers, "Subject", NoSubjectPlaceholder),
		Sender:     header(headers, "From", NoSenderPlaceholder),
		Recipients: header(headers, "To", NoRecipientsPlaceholder),
		Date:       header(headers, "Date", NoDatePlaceholder),
		Snippet:    msg.Snippet,
		Star:       slices.Contains(msg.LabelIds, starredLabel),
		Label:      strings.Join(msg.LabelIds, ", "),
	}
	if d.Snippet == "" {
		d.Snippet = NoSnippetPlaceholder
	}
	for _, p := range msg.Payload.Parts {
		if p != nil && p.Filename != "" {
			d.HasAttachments = true
			break
		}
	}

	body, err := extractBody(classifyPart(msg.Payload), policy)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body of message %s: %w", msg.Id, err)
	}
	d.Body = body
	return d, nil
}

// header returns the first header named name, compared case-insensitively.
func header(headers []*gmail.MessagePartHeader, name, fallback string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return fallback
}

func extractBody(root bodyPart, policy BodyPolicy) (string, error) {
	if policy == BodyPolicyPreferText {
		return preferTextBody(root)
	}
	return firstInlineBody(root)
}

func firstInlineBody(root bodyPart) (string, error) {
	body := NoBodyPlaceholder
	for _, part := range root.children {
		if part.mimeType == mimeMultipartAltern {
			for _, sub := range part.children {
				if sub.mimeType == mimeTextPlain && sub.kind == leafWithData {
					text, err := decodeBase64(sub.data)
					if err != nil {
						return "", err
					}
					body = text
					break
				}
			}
			continue
		}
		if part.kind == leafWithData {
			text, err := decodeBase64(part.data)
			if err != nil {
				return "", err
			}
			return text, nil
		}
	}
	return body, nil
}

func preferTextBody(root bodyPart) (string, error) {
	var plain, html string
	var walk func(bodyPart)
	walk = func(p bodyPart) {
		switch p.kind {
		case multipartContainer:
			for _, c := range p.children {
				walk(c)
			}
		case leafWithData:
			if plain == "" && p.mimeType == mimeTextPlain {
				plain = p.data
			}
			if html == "" && p.mimeType == mimeTextHTML {
				html = p.data
			}
		}
	}
	walk(root)

	switch {
	case plain != "":
		return decodeBase64(plain)
	case html != "":
		return decodeBase64(html)
	case root.kind == leafWithData:
		return decodeBase64(root.data)
	}
	return NoBodyPlaceholder, nil
}

// decodeBase64 decodes Gmail's base64url data, tolerating missing padding and
// the standard alphabet.
func decodeBase64(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return string(b), nil
	}
	if b, err = base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	if b, err = base64.StdEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	return "", fmt.Errorf("failed to decode base64 data: %w", err)
}
