// Package gmail is the mailbox side of the server: a Session bound to one
// mailbox's credential, plus the message reader, the listing and search
// engine, the attachment fetcher and the mail composer built on it.
//
// A Session only talks to the Gmail API through google.golang.org/api/gmail/v1.
// Sessions are created per mailbox by the server context and are safe for
// concurrent use.
//
// Example usage:
//
//	client, err := store.HTTPClient(ctx, "jane@example.com")
//	if err != nil {
//	    return err
//	}
//	sess, err := gmail.NewSession(ctx, "jane@example.com", gmail.WithHTTPClient(client))
//	if err != nil {
//	    return err
//	}
//	refs, next, err := sess.ListFolder(ctx, "INBOX", 10)
package gmail
