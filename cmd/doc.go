// Package cmd implements the command-line interface for gmail-mcp-server.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable-http
//   - authorize: Run the browser consent for an account and store its credential
//   - accounts: List the accounts with a stored credential
//   - inbox, read, search, send: Run one Gmail operation and print the JSON result
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
// Settings come from flags, GMAIL_MCP_* environment variables, an optional
// config.yaml and a .env file; see package config.
package cmd
