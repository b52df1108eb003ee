package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/keylock"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

const (
	// InboxFolder is the label listed by GetInbox and ReadLatest.
	InboxFolder = "INBOX"

	// InboxPageSize is the number of messages GetInbox returns.
	InboxPageSize = 10

	// DefaultAttachmentDir is where attachments are written unless configured otherwise.
	DefaultAttachmentDir = "downloaded_attachments"

	unknownMessageID = "unknown"
)

// Response is the envelope every operation returns. It always carries a
// boolean "success"; failures carry a "message".
type Response map[string]any

// Success reports the envelope's success flag.
func (r Response) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Message returns the envelope's message, if any.
func (r Response) Message() string {
	msg, _ := r["message"].(string)
	return msg
}

func fail(msg string) Response {
	return Response{"success": false, "message": msg}
}

// withEmptyEmails adds an empty email list to failures of list-shaped operations.
func withEmptyEmails(r Response) Response {
	if _, ok := r["emails"]; !ok && !r.Success() {
		r["emails"] = []*gmail.MessageDetail{}
	}
	return r
}

// Mailbox is the per-mailbox surface the operations run against.
// *gmail.Session implements it.
type Mailbox interface {
	ListFolder(ctx context.Context, folder string, maxResults int) ([]gmail.MessageRef, string, error)
	SearchMessages(ctx context.Context, query string, maxResults int) ([]gmail.MessageRef, error)
	SearchThreads(ctx context.Context, query string, maxResults int) ([]gmail.MessageRef, error)
	ExtractDetail(ctx context.Context, messageID string) *gmail.MessageDetail
	ListAttachments(ctx context.Context, messageID string) ([]*gmail.AttachmentInfo, error)
	DownloadAttachments(ctx context.Context, messageID string, wholeThread bool, targetDir string) ([]string, error)
	Send(ctx context.Context, msg *gmail.OutgoingMessage) (*gmail.SentMessage, error)
}

var _ Mailbox = (*gmail.Session)(nil)

// Resolver yields the Mailbox for a mailbox identifier.
type Resolver interface {
	Resolve(ctx context.Context, mailbox string) (Mailbox, error)
}

// Invalidator is implemented by resolvers that cache mailboxes. A mailbox
// whose credential stops working mid-operation is invalidated.
type Invalidator interface {
	Invalidate(mailbox string)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, mailbox string) (Mailbox, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, mailbox string) (Mailbox, error) {
	return f(ctx, mailbox)
}

// Dispatcher maps named operations onto mailbox sessions and normalizes
// every outcome into a Response. No operation returns an error or panics.
type Dispatcher struct {
	resolver      Resolver
	attachmentDir string
	logger        *slog.Logger

	dirLocks keylock.Map
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAttachmentDir sets the directory attachments are written to.
func WithAttachmentDir(dir string) Option {
	return func(d *Dispatcher) {
		if dir != "" {
			d.attachmentDir = dir
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher resolving sessions through resolver.
func New(resolver Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{resolver: resolver, attachmentDir: DefaultAttachmentDir}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.WithComponent(d.logger, "dispatcher")
	return d
}

// AttachmentDir returns the directory attachments are written to.
func (d *Dispatcher) AttachmentDir() string {
	return d.attachmentDir
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id that operations log instead of
// generating their own.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id attached to ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type opFunc func(ctx context.Context, log *slog.Logger, mb Mailbox) (Response, error)

// run resolves the mailbox and runs fn, converting errors and panics into
// failure envelopes.
func (d *Dispatcher) run(ctx context.Context, op, mailbox string, fn opFunc) (resp Response) {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := d.logger.With(
		logging.Operation(op),
		logging.Mailbox(mailbox),
		logging.RequestID(requestID),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("operation panicked", slog.Any("panic", r))
			resp = fail(fmt.Sprintf("internal error: %v", r))
		}
		status := logging.StatusSuccess
		if !resp.Success() {
			status = logging.StatusError
		}
		log.Info("operation finished",
			logging.Status(status),
			slog.Duration(logging.KeyDuration, time.Since(start)))
	}()

	log.Debug("operation started")
	mb, err := d.resolver.Resolve(ctx, mailbox)
	if err != nil {
		log.Error("failed to resolve mailbox", logging.Err(err))
		return fail(err.Error())
	}

	resp, err = fn(ctx, log, mb)
	if err != nil {
		log.Error("operation failed", logging.Err(err))
		if inv, ok := d.resolver.(Invalidator); ok && google.IsCredentialError(err) {
			inv.Invalidate(mailbox)
		}
		return fail(err.Error())
	}
	if resp == nil {
		return fail("no result")
	}
	return resp
}

// details reads every ref, skipping messages that cannot be read.
func details(ctx context.Context, mb Mailbox, refs []gmail.MessageRef) []*gmail.MessageDetail {
	out := make([]*gmail.MessageDetail, 0, len(refs))
	for _, ref := range refs {
		if d := mb.ExtractDetail(ctx, ref.ID); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// GetInbox returns the newest inbox messages.
func (d *Dispatcher) GetInbox(ctx context.Context, mailbox string) Response {
	return d.run(ctx, "get_inbox", mailbox, func(ctx context.Context, _ *slog.Logger, mb Mailbox) (Response, error) {
		refs, next, err := mb.ListFolder(ctx, InboxFolder, InboxPageSize)
		if err != nil {
			return nil, err
		}
		return Response{
			"success":  true,
			"emails":   details(ctx, mb, refs),
			"has_more": next != "",
		}, nil
	})
}

// GetEmailDetails returns one message.
func (d *Dispatcher) GetEmailDetails(ctx context.Context, mailbox, messageID string) Response {
	return d.run(ctx, "get_email_details", mailbox, func(ctx context.Context, _ *slog.Logger, mb Mailbox) (Response, error) {
		detail := mb.ExtractDetail(ctx, messageID)
		if detail == nil {
			return fail("Email not found"), nil
		}
		return Response{"success": true, "email": detail}, nil
	})
}

// ListAttachments reports whether a message has attachments and, if it
// does, lists them. A message that cannot be fetched has none.
func (d *Dispatcher) ListAttachments(ctx context.Context, mailbox, messageID string) Response {
	return d.run(ctx, "list_attachments", mailbox, func(ctx context.Context, log *slog.Logger, mb Mailbox) (Response, error) {
		atts, err := mb.ListAttachments(ctx, messageID)
		if err != nil {
			log.Warn("listing attachments failed", logging.MessageID(messageID), logging.Err(err))
		}
		if len(atts) == 0 {
			return Response{"success": true, "has_attachments": false}, nil
		}
		return Response{"success": true, "has_attachments": true, "message_id": messageID, "attachments": atts}, nil
	})
}

// SendRequest carries the arguments of SendMail.
type SendRequest struct {
	To              string
	Subject         string
	Body            string
	BodyType        string
	AttachmentPaths []string
}

// SendMail sends a message. Attachment paths are checked before anything is
// sent.
func (d *Dispatcher) SendMail(ctx context.Context, mailbox string, req SendRequest) Response {
	return d.run(ctx, "send_mail", mailbox, func(ctx context.Context, log *slog.Logger, mb Mailbox) (Response, error) {
		msg := &gmail.OutgoingMessage{
			To:              req.To,
			Subject:         req.Subject,
			Body:            req.Body,
			BodyType:        req.BodyType,
			AttachmentPaths: req.AttachmentPaths,
		}
		if missing := msg.MissingAttachment(); missing != "" {
			return fail("Attachment not found: " + missing), nil
		}

		sent, err := mb.Send(ctx, msg)
		if err != nil {
			// A file can vanish between the check and the send.
			if path, ok := gmail.NotFoundID(err); ok {
				return fail("Attachment not found: " + path), nil
			}
			if gmail.IsProviderCallError(err) {
				log.Warn("send rejected by provider", logging.Err(err))
				return fail("Failed to send email"), nil
			}
			return nil, err
		}

		id := unknownMessageID
		if sent != nil && sent.ID != "" {
			id = sent.ID
		}
		return Response{
			"success":    true,
			"message":    "Email sent successfully to " + req.To,
			"message_id": id,
		}, nil
	})
}

// SearchRequest carries the arguments of Search.
type SearchRequest struct {
	Query                string
	MaxResults           int
	IncludeConversations bool
}

// Search runs a message search and, optionally, a conversation search and
// returns the concatenated details.
func (d *Dispatcher) Search(ctx context.Context, mailbox string, req SearchRequest) Response {
	return withEmptyEmails(d.run(ctx, "search", mailbox, func(ctx context.Context, _ *slog.Logger, mb Mailbox) (Response, error) {
		refs, err := mb.SearchMessages(ctx, req.Query, req.MaxResults)
		if err != nil {
			return nil, err
		}
		emails := details(ctx, mb, refs)

		if req.IncludeConversations {
			threads, err := mb.SearchThreads(ctx, req.Query, req.MaxResults)
			if err != nil {
				return nil, err
			}
			emails = append(emails, details(ctx, mb, threads)...)
		}

		return Response{
			"success": true,
			"message": fmt.Sprintf("Found %d emails", len(emails)),
			"emails":  emails,
		}, nil
	}))
}

// ReadLatest returns the newest inbox messages, optionally downloading their
// attachments. A failed download is recorded on that message only.
func (d *Dispatcher) ReadLatest(ctx context.Context, mailbox string, maxResults int, download bool) Response {
	return withEmptyEmails(d.run(ctx, "read_latest", mailbox, func(ctx context.Context, log *slog.Logger, mb Mailbox) (Response, error) {
		refs, _, err := mb.ListFolder(ctx, InboxFolder, maxResults)
		if err != nil {
			return nil, err
		}
		if download {
			if err := os.MkdirAll(d.attachmentDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create attachment directory: %w", err)
			}
		}

		emails := make([]*gmail.MessageDetail, 0, len(refs))
		for _, ref := range refs {
			detail := mb.ExtractDetail(ctx, ref.ID)
			if detail == nil {
				continue
			}
			if download && detail.HasAttachments {
				_, err := d.download(ctx, mb, ref.ID, false)
				ok := err == nil
				detail.AttachmentsDownloaded = &ok
				detail.AttachmentDir = d.attachmentDir
				if err != nil {
					log.Warn("attachment download failed",
						logging.MessageID(ref.ID), logging.Err(err))
					detail.AttachmentError = err.Error()
				}
			}
			emails = append(emails, detail)
		}

		return Response{
			"success":              true,
			"message":              fmt.Sprintf("Retrieved %d latest emails", len(emails)),
			"emails":               emails,
			"attachment_downloads": download,
		}, nil
	}))
}

// DownloadAttachments writes a message's attachments, or those of its whole
// thread, to the attachment directory.
func (d *Dispatcher) DownloadAttachments(ctx context.Context, mailbox, messageID string, allInThread bool) Response {
	return d.run(ctx, "download_attachments", mailbox, func(ctx context.Context, _ *slog.Logger, mb Mailbox) (Response, error) {
		if err := os.MkdirAll(d.attachmentDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create attachment directory: %w", err)
		}
		files, err := d.download(ctx, mb, messageID, allInThread)
		if err != nil {
			return nil, err
		}
		if files == nil {
			files = []string{}
		}
		return Response{
			"success":           true,
			"message":           "Attachments downloaded successfully",
			"directory":         d.attachmentDir,
			"thread_downloaded": allInThread,
			"files":             files,
		}, nil
	})
}

// download serializes writers of the attachment directory.
func (d *Dispatcher) download(ctx context.Context, mb Mailbox, messageID string, wholeThread bool) ([]string, error) {
	key, err := filepath.Abs(d.attachmentDir)
	if err != nil {
		key = d.attachmentDir
	}
	unlock := d.dirLocks.Lock(key)
	defer unlock()
	return mb.DownloadAttachments(ctx, messageID, wholeThread, d.attachmentDir)
}
