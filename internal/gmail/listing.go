package gmail

import (
	"context"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// MaxPageSize is the largest page Gmail returns from list endpoints.
const MaxPageSize = 500

// MessageRef identifies a message and its thread.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// ListFolder returns one page of messages carrying the label named folder,
// matched case-insensitively. An unknown folder yields no messages and no
// error. maxResults <= 0 leaves the page size to the provider.
func (s *Session) ListFolder(ctx context.Context, folder string, maxResults int) ([]MessageRef, string, error) {
	labels, err := call(ctx, s, instrumentation.MethodLabelsList, func(ctx context.Context) (*gmail.ListLabelsResponse, error) {
		return s.svc.Labels.List(me).Context(ctx).Do()
	})
	if err != nil {
		return nil, "", err
	}

	labelID := ""
	for _, l := range labels.Labels {
		if l != nil && strings.EqualFold(l.Name, folder) {
			labelID = l.Id
			break
		}
	}
	if labelID == "" {
		s.logger.Debug("folder not found", logging.Folder(folder))
		return []MessageRef{}, "", nil
	}

	res, err := call(ctx, s, instrumentation.MethodMessagesList, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
		req := s.svc.Messages.List(me).LabelIds(labelID).Context(ctx)
		if maxResults > 0 {
			req = req.MaxResults(int64(maxResults))
		}
		return req.Do()
	})
	if err != nil {
		return nil, "", err
	}
	return messageRefs(res.Messages), res.NextPageToken, nil
}

// SearchMessages returns up to maxResults messages matching query, paging as
// needed. maxResults <= 0 returns every match.
func (s *Session) SearchMessages(ctx context.Context, query string, maxResults int) ([]MessageRef, error) {
	return paginate(ctx, maxResults, func(ctx context.Context, pageSize int, token string) ([]MessageRef, string, error) {
		res, err := call(ctx, s, instrumentation.MethodMessagesList, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
			req := s.svc.Messages.List(me).Q(query).MaxResults(int64(pageSize)).Context(ctx)
			if token != "" {
				req = req.PageToken(token)
			}
			return req.Do()
		})
		if err != nil {
			return nil, "", err
		}
		return messageRefs(res.Messages), res.NextPageToken, nil
	})
}

// SearchThreads is SearchMessages for conversations. Each ref carries the
// thread id in both fields.
func (s *Session) SearchThreads(ctx context.Context, query string, maxResults int) ([]MessageRef, error) {
	return paginate(ctx, maxResults, func(ctx context.Context, pageSize int, token string) ([]MessageRef, string, error) {
		res, err := call(ctx, s, instrumentation.MethodThreadsList, func(ctx context.Context) (*gmail.ListThreadsResponse, error) {
			req := s.svc.Threads.List(me).Q(query).MaxResults(int64(pageSize)).Context(ctx)
			if token != "" {
				req = req.PageToken(token)
			}
			return req.Do()
		})
		if err != nil {
			return nil, "", err
		}
		refs := make([]MessageRef, 0, len(res.Threads))
		for _, t := range res.Threads {
			if t != nil {
				refs = append(refs, MessageRef{ID: t.Id, ThreadID: t.Id})
			}
		}
		return refs, res.NextPageToken, nil
	})
}

// pageFunc fetches one page of at most pageSize items starting at token.
type pageFunc[T any] func(ctx context.Context, pageSize int, token string) ([]T, string, error)

// paginate accumulates pages until the provider runs out or maxResults items
// are collected. maxResults <= 0 means unbounded.
func paginate[T any](ctx context.Context, maxResults int, fetch pageFunc[T]) ([]T, error) {
	acc := []T{}
	token := ""
	for {
		pageSize := MaxPageSize
		if maxResults > 0 {
			pageSize = min(MaxPageSize, maxResults-len(acc))
		}
		items, next, err := fetch(ctx, pageSize, token)
		if err != nil {
			return nil, err
		}
		acc = append(acc, items...)
		if next == "" || (maxResults > 0 && len(acc) >= maxResults) {
			break
		}
		token = next
	}
	if maxResults > 0 && len(acc) > maxResults {
		acc = acc[:maxResults]
	}
	return acc, nil
}

func messageRefs(msgs []*gmail.Message) []MessageRef {
	refs := make([]MessageRef, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
	}
	return refs
}
