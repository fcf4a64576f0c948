package executor

import (
	"fmt"
	"sort"
	"strings"
)

// previewMaxLen caps every tool args preview.
const previewMaxLen = 60

// fallbackKeys are tried in order when no per-tool rule applies.
var fallbackKeys = []string{
	"command", "path", "file", "pattern", "query", "url", "task", "prompt", "name", "action",
}

// FormatToolArgs renders a tool's argument map as a display string of at
// most 60 characters plus a trailing "..." when cut, using per-tool rules to
// surface the most useful field.
func FormatToolArgs(tool string, args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}

	switch strings.ToLower(tool) {
	case "read":
		return capPreview(formatReadArgs(args))
	case "write":
		path := tailTruncate(stringArg(args, "path"), 40)
		if content, ok := args["content"].(string); ok {
			return capPreview(fmt.Sprintf("%s (%d chars)", path, len(content)))
		}
		return capPreview(path)
	case "edit":
		return capPreview(tailTruncate(stringArg(args, "path"), 50))
	case "bash":
		return headTruncate(stringArg(args, "command"), previewMaxLen)
	case "grep", "rg":
		preview := stringArg(args, "pattern")
		if path := stringArg(args, "path"); path != "" {
			preview += " in " + path
		}
		return headTruncate(preview, previewMaxLen)
	case "find":
		preview := stringArg(args, "path")
		if name := stringArg(args, "name"); name != "" {
			preview += fmt.Sprintf(" -name %q", name)
		}
		return headTruncate(preview, previewMaxLen)
	case "mcp":
		for _, key := range []string{"tool", "search", "server"} {
			if v := stringArg(args, key); v != "" {
				return capPreview(key + ": " + v)
			}
		}
	case "subagent":
		if task := stringArg(args, "task"); task != "" {
			return headTruncate(task, 50)
		}
		if agent := stringArg(args, "agent"); agent != "" {
			return capPreview("agent: " + agent)
		}
	case "todo":
		action := stringArg(args, "action")
		if title := stringArg(args, "title"); title != "" {
			return capPreview(action + ": " + headTruncate(title, 40))
		}
		if id := stringArg(args, "id"); id != "" {
			return capPreview(action + ": " + id)
		}
		return capPreview(action)
	}

	for _, key := range fallbackKeys {
		if v := stringArg(args, key); v != "" {
			return headTruncate(v, previewMaxLen)
		}
	}

	// First string-valued entry, by sorted key for a stable preview.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return headTruncate(k+": "+v, previewMaxLen)
		}
	}
	return ""
}

// formatReadArgs renders read arguments as a tail-truncated path plus an
// optional line range when offset or limit is present.
func formatReadArgs(args map[string]interface{}) string {
	preview := tailTruncate(stringArg(args, "path"), 50)

	offset, hasOffset := intArg(args, "offset")
	limit, hasLimit := intArg(args, "limit")
	if hasOffset || hasLimit {
		if !hasOffset {
			offset = 1
		}
		if !hasLimit {
			limit = 100
		}
		preview += fmt.Sprintf(" [%d-%d]", offset, offset+limit)
	}
	return preview
}

// stringArg returns a string value from the args map, or "".
func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg returns a numeric value from the args map. JSON numbers arrive as
// float64.
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// tailTruncate keeps the last n characters of s, marking the cut with a
// leading ellipsis.
func tailTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// headTruncate keeps the first n characters of s, marking the cut with a
// trailing ellipsis.
func headTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// capPreview applies the global preview length cap.
func capPreview(s string) string {
	return headTruncate(s, previewMaxLen)
}
