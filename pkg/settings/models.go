package settings

import "strings"

const DefaultContextWindow = 4096

// contextWindows maps model name prefixes to their window size. Longer
// prefixes win, so gpt-4-32k is matched before gpt-4.
var contextWindows = map[string]int{
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16385,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"claude":            200000,
}

// ContextWindowFor returns the context window size of a model, or
// DefaultContextWindow for unknown models.
func ContextWindowFor(model string) int {
	best := ""
	for prefix := range contextWindows {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return DefaultContextWindow
	}
	return contextWindows[best]
}
