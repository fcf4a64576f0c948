package executor

import (
	"bytes"
	"encoding/json"
)

// Event type discriminators in the agent's NDJSON stream.
const (
	eventMessageEnd         = "message_end"
	eventToolExecutionStart = "tool_execution_start"
	eventToolExecutionEnd   = "tool_execution_end"
	eventToolResultEnd      = "tool_result_end"
)

// streamEvent is one line of the agent's stdout stream.
type streamEvent struct {
	Type     string                 `json:"type"`
	Message  *streamMessage         `json:"message,omitempty"`
	ToolName string                 `json:"toolName,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

// streamMessage is the message payload of message_end and tool_result_end events.
type streamMessage struct {
	Role         string         `json:"role"`
	Content      []contentPart  `json:"content"`
	Usage        *messageUsage  `json:"usage,omitempty"`
	StopReason   string         `json:"stopReason,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// contentPart is one block of message content.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messageUsage carries the per-message token counters. Missing sub-fields
// default to zero.
type messageUsage struct {
	Input       int64      `json:"input"`
	Output      int64      `json:"output"`
	CacheRead   int64      `json:"cacheRead"`
	CacheWrite  int64      `json:"cacheWrite"`
	Cost        *usageCost `json:"cost,omitempty"`
	TotalTokens int64      `json:"totalTokens"`
}

// usageCost carries the per-message cost.
type usageCost struct {
	Total float64 `json:"total"`
}

// parseEvent parses one stream line. Malformed lines and lines without a
// type discriminator return ok=false and are skipped by the caller.
func parseEvent(line []byte) (streamEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return streamEvent{}, false
	}
	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return streamEvent{}, false
	}
	if ev.Type == "" {
		return streamEvent{}, false
	}
	return ev, true
}

// finalTextPart returns the text of the last text part of a message,
// or "" when the message carries no text.
func finalTextPart(msg *streamMessage) string {
	if msg == nil {
		return ""
	}
	text := ""
	for _, part := range msg.Content {
		if part.Type == "text" {
			text = part.Text
		}
	}
	return text
}
