// Package common provides the helpers shared by the MCP tool packages:
// argument parsing, the JSON envelope result and the instrumentation wrapper
// every tool handler runs through.
package common
