package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
)

const mailbox = "jane@example.com"

// fakeMailbox is an in-memory Mailbox.
type fakeMailbox struct {
	mu sync.Mutex

	inbox     []gmail.MessageRef
	inboxNext string
	found     []gmail.MessageRef
	threads   []gmail.MessageRef
	details   map[string]*gmail.MessageDetail
	atts      map[string][]*gmail.AttachmentInfo

	listErr     error
	searchErr   error
	downloadErr map[string]error
	sendErr     error
	sendID      string
	panicOn     string

	sent          []*gmail.OutgoingMessage
	downloads     []string
	listMax       []int
	searchMax     []int
	threadSearchs int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		details:     map[string]*gmail.MessageDetail{},
		atts:        map[string][]*gmail.AttachmentInfo{},
		downloadErr: map[string]error{},
		sendID:      "sent-1",
	}
}

func (f *fakeMailbox) ListFolder(_ context.Context, folder string, max int) ([]gmail.MessageRef, string, error) {
	if f.panicOn == "list" {
		panic("list exploded")
	}
	f.listMax = append(f.listMax, max)
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	if folder != InboxFolder {
		return []gmail.MessageRef{}, "", nil
	}
	refs := f.inbox
	if max > 0 && max < len(refs) {
		refs = refs[:max]
	}
	return refs, f.inboxNext, nil
}

func (f *fakeMailbox) SearchMessages(_ context.Context, _ string, max int) ([]gmail.MessageRef, error) {
	f.searchMax = append(f.searchMax, max)
	return f.found, f.searchErr
}

func (f *fakeMailbox) SearchThreads(_ context.Context, _ string, _ int) ([]gmail.MessageRef, error) {
	f.threadSearchs++
	return f.threads, f.searchErr
}

func (f *fakeMailbox) ExtractDetail(_ context.Context, id string) *gmail.MessageDetail {
	d, ok := f.details[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (f *fakeMailbox) ListAttachments(_ context.Context, id string) ([]*gmail.AttachmentInfo, error) {
	if _, ok := f.details[id]; !ok {
		return nil, &gmail.ProviderCallError{Op: "messages.get", Err: errors.New("404")}
	}
	return f.atts[id], nil
}

func (f *fakeMailbox) DownloadAttachments(_ context.Context, id string, whole bool, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.downloadErr[id]; err != nil {
		return nil, err
	}
	f.downloads = append(f.downloads, id)
	name := id + ".bin"
	if whole {
		name = id + "-thread.bin"
	}
	path := filepath.Join(dir, name)
	return []string{path}, os.WriteFile(path, []byte(id), 0o600)
}

func (f *fakeMailbox) Send(_ context.Context, msg *gmail.OutgoingMessage) (*gmail.SentMessage, error) {
	f.sent = append(f.sent, msg)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &gmail.SentMessage{ID: f.sendID}, nil
}

func detail(id string, hasAttachments bool) *gmail.MessageDetail {
	return &gmail.MessageDetail{ID: id, ThreadID: "t-" + id, Subject: "subject " + id, HasAttachments: hasAttachments}
}

func newTestDispatcher(t *testing.T, mb Mailbox) (*Dispatcher, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "attachments")
	d := New(ResolverFunc(func(context.Context, string) (Mailbox, error) { return mb, nil }),
		WithAttachmentDir(dir))
	return d, dir
}

func emails(t *testing.T, r Response) []*gmail.MessageDetail {
	t.Helper()
	list, ok := r["emails"].([]*gmail.MessageDetail)
	require.True(t, ok, "emails has type %T", r["emails"])
	return list
}

func TestEveryOperationNormalizesResolveFailure(t *testing.T) {
	resolveErr := &google.CredentialError{Op: "refresh", Mailbox: mailbox, Err: errors.New("invalid_grant")}
	d := New(ResolverFunc(func(context.Context, string) (Mailbox, error) { return nil, resolveErr }),
		WithAttachmentDir(t.TempDir()))
	ctx := context.Background()

	ops := map[string]func() Response{
		"get_inbox":            func() Response { return d.GetInbox(ctx, mailbox) },
		"get_email_details":    func() Response { return d.GetEmailDetails(ctx, mailbox, "m1") },
		"list_attachments":     func() Response { return d.ListAttachments(ctx, mailbox, "m1") },
		"send_mail":            func() Response { return d.SendMail(ctx, mailbox, SendRequest{To: "bob@example.com"}) },
		"search":               func() Response { return d.Search(ctx, mailbox, SearchRequest{Query: "x", MaxResults: 30}) },
		"read_latest":          func() Response { return d.ReadLatest(ctx, mailbox, 5, false) },
		"download_attachments": func() Response { return d.DownloadAttachments(ctx, mailbox, "m1", false) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			var r Response
			require.NotPanics(t, func() { r = op() })
			assert.False(t, r.Success())
			assert.Equal(t, resolveErr.Error(), r.Message())
		})
	}
}

func TestPanicsBecomeFailures(t *testing.T) {
	mb := newFakeMailbox()
	mb.panicOn = "list"
	d, _ := newTestDispatcher(t, mb)

	var r Response
	require.NotPanics(t, func() { r = d.GetInbox(context.Background(), mailbox) })
	assert.False(t, r.Success())
	assert.Contains(t, r.Message(), "list exploded")
}

func TestGetInbox(t *testing.T) {
	mb := newFakeMailbox()
	mb.inbox = []gmail.MessageRef{{ID: "a"}, {ID: "gone"}, {ID: "b"}}
	mb.inboxNext = "tok"
	mb.details["a"] = detail("a", false)
	mb.details["b"] = detail("b", true)
	d, _ := newTestDispatcher(t, mb)

	r := d.GetInbox(context.Background(), mailbox)
	require.True(t, r.Success())
	assert.Equal(t, true, r["has_more"])
	got := emails(t, r)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, []int{InboxPageSize}, mb.listMax)
}

func TestGetInbox_ProviderFailure(t *testing.T) {
	mb := newFakeMailbox()
	mb.listErr = &gmail.ProviderCallError{Op: "labels.list", Mailbox: mailbox, Err: errors.New("503")}
	d, _ := newTestDispatcher(t, mb)

	r := d.GetInbox(context.Background(), mailbox)
	assert.False(t, r.Success())
	assert.Contains(t, r.Message(), "labels.list")
}

func TestGetEmailDetails(t *testing.T) {
	mb := newFakeMailbox()
	mb.details["m1"] = detail("m1", false)
	d, _ := newTestDispatcher(t, mb)
	ctx := context.Background()

	r := d.GetEmailDetails(ctx, mailbox, "m1")
	require.True(t, r.Success())
	assert.Equal(t, "m1", r["email"].(*gmail.MessageDetail).ID)

	r = d.GetEmailDetails(ctx, mailbox, "missing")
	assert.Equal(t, Response{"success": false, "message": "Email not found"}, r)
}

func TestListAttachments(t *testing.T) {
	mb := newFakeMailbox()
	mb.details["with"] = detail("with", true)
	report := &gmail.AttachmentInfo{MessageID: "with", AttachmentID: "a1", Filename: "report.pdf", Size: 3}
	mb.atts["with"] = []*gmail.AttachmentInfo{report}
	mb.details["without"] = detail("without", false)
	d, _ := newTestDispatcher(t, mb)
	ctx := context.Background()

	tests := []struct {
		id   string
		want Response
	}{
		{id: "with", want: Response{
			"success": true, "has_attachments": true, "message_id": "with",
			"attachments": []*gmail.AttachmentInfo{report},
		}},
		{id: "without", want: Response{"success": true, "has_attachments": false}},
		{id: "missing", want: Response{"success": true, "has_attachments": false}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ListAttachments(ctx, mailbox, tt.id))
		})
	}
}

func TestSendMail(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))
	missing := filepath.Join(t.TempDir(), "missing.txt")

	tests := []struct {
		name      string
		setup     func(*fakeMailbox)
		req       SendRequest
		want      Response
		wantSends int
	}{
		{
			name:      "sent",
			req:       SendRequest{To: "bob@example.com", Subject: "s", Body: "b", AttachmentPaths: []string{existing}},
			want:      Response{"success": true, "message": "Email sent successfully to bob@example.com", "message_id": "sent-1"},
			wantSends: 1,
		},
		{
			name:      "missing id reported as unknown",
			setup:     func(f *fakeMailbox) { f.sendID = "" },
			req:       SendRequest{To: "bob@example.com"},
			want:      Response{"success": true, "message": "Email sent successfully to bob@example.com", "message_id": "unknown"},
			wantSends: 1,
		},
		{
			name:      "missing attachment is rejected before sending",
			req:       SendRequest{To: "bob@example.com", AttachmentPaths: []string{existing, missing}},
			want:      Response{"success": false, "message": "Attachment not found: " + missing},
			wantSends: 0,
		},
		{
			name: "attachment removed before sending",
			setup: func(f *fakeMailbox) {
				f.sendErr = &gmail.NotFoundError{What: "file", ID: "/tmp/gone.pdf"}
			},
			req:       SendRequest{To: "bob@example.com"},
			want:      Response{"success": false, "message": "Attachment not found: /tmp/gone.pdf"},
			wantSends: 1,
		},
		{
			name: "provider failure",
			setup: func(f *fakeMailbox) {
				f.sendErr = &gmail.ProviderCallError{Op: "messages.send", Err: errors.New("403")}
			},
			req:       SendRequest{To: "bob@example.com"},
			want:      Response{"success": false, "message": "Failed to send email"},
			wantSends: 1,
		},
		{
			name: "validation failure keeps its message",
			setup: func(f *fakeMailbox) {
				f.sendErr = &gmail.ValidationError{Field: "to", Reason: "mail: missing @ in addr-spec"}
			},
			req:       SendRequest{To: "nobody"},
			want:      Response{"success": false, "message": "invalid to: mail: missing @ in addr-spec"},
			wantSends: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := newFakeMailbox()
			if tt.setup != nil {
				tt.setup(mb)
			}
			d, _ := newTestDispatcher(t, mb)

			assert.Equal(t, tt.want, d.SendMail(context.Background(), mailbox, tt.req))
			assert.Len(t, mb.sent, tt.wantSends)
		})
	}
}

func TestSearch(t *testing.T) {
	mb := newFakeMailbox()
	mb.found = []gmail.MessageRef{{ID: "m1"}, {ID: "m2"}, {ID: "unreadable"}}
	mb.threads = []gmail.MessageRef{{ID: "t1", ThreadID: "t1"}}
	for _, id := range []string{"m1", "m2", "t1"} {
		mb.details[id] = detail(id, false)
	}
	d, _ := newTestDispatcher(t, mb)
	ctx := context.Background()

	t.Run("with conversations", func(t *testing.T) {
		r := d.Search(ctx, mailbox, SearchRequest{Query: "from:bob", MaxResults: 30, IncludeConversations: true})
		require.True(t, r.Success())
		assert.Equal(t, "Found 3 emails", r.Message())
		got := emails(t, r)
		assert.Equal(t, []string{"m1", "m2", "t1"}, []string{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("messages only", func(t *testing.T) {
		before := mb.threadSearchs
		r := d.Search(ctx, mailbox, SearchRequest{Query: "from:bob", MaxResults: 30})
		require.True(t, r.Success())
		assert.Equal(t, "Found 2 emails", r.Message())
		assert.Equal(t, before, mb.threadSearchs)
	})

	t.Run("failure carries empty list", func(t *testing.T) {
		failing := newFakeMailbox()
		failing.searchErr = errors.New("boom")
		fd, _ := newTestDispatcher(t, failing)
		r := fd.Search(ctx, mailbox, SearchRequest{Query: "x"})
		assert.False(t, r.Success())
		assert.Equal(t, "boom", r.Message())
		assert.Empty(t, emails(t, r))
	})
}

func TestReadLatest(t *testing.T) {
	mb := newFakeMailbox()
	mb.inbox = []gmail.MessageRef{{ID: "plain"}, {ID: "att"}, {ID: "broken"}}
	mb.details["plain"] = detail("plain", false)
	mb.details["att"] = detail("att", true)
	mb.details["broken"] = detail("broken", true)
	mb.downloadErr["broken"] = errors.New("disk full")
	d, dir := newTestDispatcher(t, mb)
	ctx := context.Background()

	t.Run("without download", func(t *testing.T) {
		r := d.ReadLatest(ctx, mailbox, 5, false)
		require.True(t, r.Success())
		assert.Equal(t, "Retrieved 3 latest emails", r.Message())
		assert.Equal(t, false, r["attachment_downloads"])
		for _, e := range emails(t, r) {
			assert.Nil(t, e.AttachmentsDownloaded)
		}
		assert.NoDirExists(t, dir)
	})

	t.Run("with download", func(t *testing.T) {
		r := d.ReadLatest(ctx, mailbox, 5, true)
		require.True(t, r.Success())
		assert.Equal(t, true, r["attachment_downloads"])

		got := emails(t, r)
		require.Len(t, got, 3)
		assert.Nil(t, got[0].AttachmentsDownloaded)

		require.NotNil(t, got[1].AttachmentsDownloaded)
		assert.True(t, *got[1].AttachmentsDownloaded)
		assert.Equal(t, dir, got[1].AttachmentDir)
		assert.Empty(t, got[1].AttachmentError)

		require.NotNil(t, got[2].AttachmentsDownloaded)
		assert.False(t, *got[2].AttachmentsDownloaded)
		assert.Equal(t, "disk full", got[2].AttachmentError)

		assert.FileExists(t, filepath.Join(dir, "att.bin"))
		assert.Equal(t, []string{"att"}, mb.downloads)
	})

	t.Run("max results is passed through", func(t *testing.T) {
		r := d.ReadLatest(ctx, mailbox, 1, false)
		require.True(t, r.Success())
		assert.Len(t, emails(t, r), 1)
	})
}

func TestDownloadAttachments(t *testing.T) {
	mb := newFakeMailbox()
	d, dir := newTestDispatcher(t, mb)
	ctx := context.Background()

	r := d.DownloadAttachments(ctx, mailbox, "m1", true)
	require.True(t, r.Success())
	assert.Equal(t, "Attachments downloaded successfully", r.Message())
	assert.Equal(t, dir, r["directory"])
	assert.Equal(t, true, r["thread_downloaded"])
	assert.Equal(t, []string{filepath.Join(dir, "m1-thread.bin")}, r["files"])
	assert.DirExists(t, dir)

	mb.downloadErr["m2"] = &gmail.ProviderCallError{Op: "messages.get", Err: errors.New("404")}
	r = d.DownloadAttachments(ctx, mailbox, "m2", false)
	assert.False(t, r.Success())
	assert.Contains(t, r.Message(), "messages.get")
}

func TestDownloadAttachments_ConcurrentWritersShareDirectory(t *testing.T) {
	mb := newFakeMailbox()
	d, dir := newTestDispatcher(t, mb)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.True(t, d.DownloadAttachments(ctx, mailbox, id, false).Success())
		}(id)
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestDefaultAttachmentDir(t *testing.T) {
	d := New(ResolverFunc(func(context.Context, string) (Mailbox, error) { return newFakeMailbox(), nil }))
	assert.Equal(t, DefaultAttachmentDir, d.AttachmentDir())
}

type cachingResolver struct {
	mb          Mailbox
	invalidated []string
}

func (c *cachingResolver) Resolve(context.Context, string) (Mailbox, error) { return c.mb, nil }

func (c *cachingResolver) Invalidate(mailbox string) {
	c.invalidated = append(c.invalidated, mailbox)
}

func TestCredentialFailureInvalidatesCachedMailbox(t *testing.T) {
	mb := newFakeMailbox()
	res := &cachingResolver{mb: mb}
	d := New(res, WithAttachmentDir(t.TempDir()))
	ctx := context.Background()

	mb.listErr = errors.New("labels.list: 503")
	assert.False(t, d.GetInbox(ctx, mailbox).Success())
	assert.Empty(t, res.invalidated)

	mb.listErr = &gmail.ProviderCallError{
		Op:  "labels.list",
		Err: &google.CredentialError{Op: "refresh", Mailbox: mailbox, Err: errors.New("invalid_grant")},
	}
	assert.False(t, d.GetInbox(ctx, mailbox).Success())
	assert.Equal(t, []string{mailbox}, res.invalidated)
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ContextWithRequestID(ctx, "req-1")))
}
