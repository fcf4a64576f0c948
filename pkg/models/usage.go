package models

// UsageStats holds token and cost counters accumulated over a task's lifetime.
// All fields start at zero and are only ever incremented.
type UsageStats struct {
	// Input is the total input tokens consumed.
	Input int64 `json:"input"`
	// Output is the total output tokens produced.
	Output int64 `json:"output"`
	// CacheRead is the total tokens read from the prompt cache.
	CacheRead int64 `json:"cache_read"`
	// CacheWrite is the total tokens written to the prompt cache.
	CacheWrite int64 `json:"cache_write"`
	// Cost is the accumulated cost in dollars.
	Cost float64 `json:"cost"`
	// ContextTokens is the current context window occupancy.
	ContextTokens int64 `json:"context_tokens"`
	// Turns is the number of assistant responses observed.
	Turns int `json:"turns"`
}

// Add accumulates the counters of delta into u. Zero-valued fields of delta
// leave u unchanged, so a partial update only touches the fields it carries.
func (u *UsageStats) Add(delta UsageStats) {
	u.Input += delta.Input
	u.Output += delta.Output
	u.CacheRead += delta.CacheRead
	u.CacheWrite += delta.CacheWrite
	u.Cost += delta.Cost
	u.ContextTokens += delta.ContextTokens
	u.Turns += delta.Turns
}

// TotalTokens returns the sum of input and output tokens.
func (u UsageStats) TotalTokens() int64 {
	return u.Input + u.Output
}
