package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// args decodes the raw tool arguments. Malformed or absent arguments
// decode to an empty map so every getter falls back to its default.
type args map[string]any

func parseArgs(raw json.RawMessage) args {
	a := args{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &a)
	}
	return a
}

func (a args) str(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// integer truncates JSON numbers.
func (a args) integer(key string, def int) int {
	if f, ok := a[key].(float64); ok {
		return int(f)
	}
	return def
}

func (a args) boolean(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encoding result: %v", err))
	}
	return textResult(string(data))
}

func errorResult(msg string) *mcp.CallToolResult {
	var r mcp.CallToolResult
	r.SetError(fmt.Errorf("%s", msg))
	return &r
}
