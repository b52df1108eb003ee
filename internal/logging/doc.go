// Package logging provides structured logging helpers for gmail-mcp-server.
//
// All components log through log/slog. This package fixes the attribute keys
// they share and keeps mailbox identifiers out of log output by hashing them.
//
//	logger := logging.New(os.Stderr, logging.Options{Debug: true})
//	logger.Info("listing folder",
//	    logging.Mailbox(mailbox),
//	    logging.Folder("INBOX"))
//
// The root logger always writes to stderr. Stdout is reserved for the MCP stdio
// transport and for JSON printed by the CLI commands.
package logging
