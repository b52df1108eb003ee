// Package google manages per-mailbox Google OAuth credentials.
//
// Each mailbox identifier owns one credential file,
// token_gmail_v1_<mailbox>.json, inside the configured token directory.
// CredentialStore resolves a usable token for a mailbox:
//
//   - a valid stored token is used as is
//   - an expired token with a refresh token is refreshed and persisted
//   - a missing token, or an expired one without a refresh token, goes through
//     the configured ConsentFlow and the result is persisted
//
// Resolution, refresh and persistence for one mailbox are serialized.
// Concurrent resolutions of the same mailbox share a single result.
package google
