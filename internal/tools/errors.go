// ABOUTME: Error types for tool lookup and argument validation
// ABOUTME: Both reject a call before any upstream traffic happens

package tools

import "fmt"

// UnknownToolError reports a tools/call naming something outside the fixed
// catalog.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ArgumentError reports tool arguments rejected by the tool's input schema
// or by decoding. Nothing was sent upstream.
type ArgumentError struct {
	Tool   string
	Detail string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Detail)
}
