// Package gmail_tools exposes the Gmail operations as MCP tools.
//
// Every tool takes an email_identifier naming the mailbox to act on and
// returns the operation's JSON envelope as text. A failed envelope
// ("success": false) marks the tool result as an error.
//
// Reading:
//   - get_inbox: the 10 newest inbox messages
//   - get_email_details: one message by msg_id
//   - search: Gmail query search, optionally over conversations
//   - read_latest: the newest inbox messages, optionally downloading attachments
//
// Attachments:
//   - list_attachments: whether a message has attachments
//   - download_attachments: write a message's, or its thread's, attachments to disk
//
// Sending:
//   - send_mail: compose and send a message with attachments; not registered
//     in read-only mode
package gmail_tools
