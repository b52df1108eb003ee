// Package dispatcher is the operation surface of the server. Each operation
// takes a mailbox identifier plus its own arguments, resolves the mailbox's
// session and returns a Response envelope.
//
// Operations never return errors and never panic. Every failure, including a
// mailbox that cannot be resolved, becomes
//
//	{"success": false, "message": "<reason>"}
//
// so callers branch on the success flag only.
package dispatcher
