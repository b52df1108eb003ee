// Package google_tools provides the MCP tools that authorize a mailbox.
//
// The manual OAuth flow:
//  1. Call google_get_auth_url with the mailbox's email_identifier
//  2. The user visits the URL and grants access
//  3. Call google_save_auth_code with the returned code
//
// The stored credential is refreshed automatically afterwards.
package google_tools
