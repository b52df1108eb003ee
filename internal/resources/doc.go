// Package resources exposes read-only Gmail data as MCP resources.
//
// gmail://accounts lists the mailboxes with a stored credential. The
// templates gmail://inbox/{email_identifier},
// gmail://email/{email_identifier}/{msg_id} and
// gmail://attachments/{email_identifier}/{msg_id} return the same JSON
// envelopes as the get_inbox, get_email_details and list_attachments tools.
package resources
