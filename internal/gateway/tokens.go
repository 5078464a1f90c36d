package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenSafetyBuffer pads estimates so prompts near a candidate's input cap
// are routed to a larger model instead of being truncated server-side.
const tokenSafetyBuffer = 500

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func tokenEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// EstimateTokens returns the estimated token count of text plus the safety
// buffer. Uses cl100k_base when available, otherwise a 4-chars-per-token
// heuristic.
func EstimateTokens(text string) int {
	if enc := tokenEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil)) + tokenSafetyBuffer
	}
	return len(text)/4 + tokenSafetyBuffer
}
