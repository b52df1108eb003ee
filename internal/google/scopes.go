package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultScopes grants full mailbox access, which sending with attachments
// and reading attachments both need.
var DefaultScopes = []string{gmail.MailGoogleComScope}
