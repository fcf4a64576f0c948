package executor

import "strings"

// Default output truncation caps.
const (
	DefaultMaxOutputBytes = 50 * 1024
	DefaultMaxOutputLines = 2000
)

// TruncateOutput bounds output to maxLines lines and maxBytes bytes,
// preserving the tail in both dimensions: agent conclusions live at the end.
// The operation is idempotent and the truncated flag is monotone.
func TruncateOutput(output string, maxBytes, maxLines int) (string, bool) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxOutputLines
	}

	truncated := false

	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		output = strings.Join(lines, "\n")
		truncated = true
	}

	for len(output) > maxBytes && len(output) > 0 {
		output = output[len(output)/2:]
		truncated = true
	}

	return output, truncated
}
