package gmail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// AttachmentInfo describes one attachment part of a message.
type AttachmentInfo struct {
	MessageID    string `json:"message_id"`
	PartID       string `json:"part_id,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size"`

	inlineData string
}

// topLevelAttachments returns the top-level parts of msg that carry a filename.
func topLevelAttachments(msg *gmail.Message) []*AttachmentInfo {
	if msg == nil || msg.Payload == nil {
		return nil
	}
	var out []*AttachmentInfo
	for _, part := range msg.Payload.Parts {
		if part == nil || part.Filename == "" {
			continue
		}
		info := &AttachmentInfo{
			MessageID: msg.Id,
			PartID:    part.PartId,
			Filename:  part.Filename,
			MimeType:  part.MimeType,
		}
		if part.Body != nil {
			info.AttachmentID = part.Body.AttachmentId
			info.Size = part.Body.Size
			info.inlineData = part.Body.Data
		}
		out = append(out, info)
	}
	return out
}

// ListAttachments returns the top-level parts of a message that carry a
// filename, the same parts DownloadAttachments writes.
func (s *Session) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentInfo, error) {
	if messageID == "" {
		return nil, &ValidationError{Field: "message_id", Reason: "must not be empty"}
	}
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return topLevelAttachments(msg), nil
}

// GetAttachment retrieves and decodes the content of one attachment.
func (s *Session) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if messageID == "" {
		return nil, &ValidationError{Field: "message_id", Reason: "must not be empty"}
	}
	if attachmentID == "" {
		return nil, &ValidationError{Field: "attachment_id", Reason: "must not be empty"}
	}

	att, err := call(ctx, s, instrumentation.MethodAttachmentsGet, func(ctx context.Context) (*gmail.MessagePartBody, error) {
		return s.svc.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
	}, instrumentation.MessageIDAttr(messageID))
	if err != nil {
		return nil, err
	}

	data, err := decodeBase64(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return []byte(data), nil
}

// DownloadAttachments writes the attachments of messageID into targetDir and
// returns the written paths. With wholeThread set, every message of the
// message's thread is processed. Files with the same name overwrite each
// other.
func (s *Session) DownloadAttachments(ctx context.Context, messageID string, wholeThread bool, targetDir string) ([]string, error) {
	if targetDir == "" {
		return nil, &ValidationError{Field: "target_dir", Reason: "must not be empty"}
	}
	if messageID == "" {
		return nil, &ValidationError{Field: "message_id", Reason: "must not be empty"}
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	messages := []*gmail.Message{msg}

	if wholeThread {
		threadID := msg.ThreadId
		if threadID == "" {
			threadID = messageID
		}
		thread, err := call(ctx, s, instrumentation.MethodThreadsGet, func(ctx context.Context) (*gmail.Thread, error) {
			return s.svc.Threads.Get(me, threadID).Format("full").Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		messages = thread.Messages
	}

	var written []string
	for _, m := range messages {
		for _, info := range topLevelAttachments(m) {
			path, err := s.writeAttachment(ctx, info, targetDir)
			if err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func (s *Session) writeAttachment(ctx context.Context, info *AttachmentInfo, targetDir string) (string, error) {
	var data []byte
	switch {
	case info.AttachmentID != "":
		b, err := s.GetAttachment(ctx, info.MessageID, info.AttachmentID)
		if err != nil {
			return "", err
		}
		data = b
	case info.inlineData != "":
		text, err := decodeBase64(info.inlineData)
		if err != nil {
			return "", fmt.Errorf("failed to decode inline attachment %s: %w", info.Filename, err)
		}
		data = []byte(text)
	default:
		return "", &NotFoundError{What: "attachment", ID: info.Filename}
	}

	path := filepath.Join(targetDir, SanitizeFilename(info.Filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment %s: %w", path, err)
	}
	s.metrics.RecordAttachmentWritten(ctx, len(data))
	s.logger.Info("saved attachment",
		logging.MessageID(info.MessageID),
		logging.Operation("download_attachment"),
		"path", path)
	return path, nil
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	// Remove path separators and other potentially dangerous characters
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return filename
}
