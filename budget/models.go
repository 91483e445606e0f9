package budget

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxTokens is used for models missing from the limit table.
const DefaultMaxTokens = 4096

var defaultLimits = map[string]int{
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16384,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
}

// Limits maps model ids to their context window size.
type Limits map[string]int

// DefaultLimits returns a copy of the built in table.
func DefaultLimits() Limits {
	l := make(Limits, len(defaultLimits))
	for k, v := range defaultLimits {
		l[k] = v
	}
	return l
}

// MaxTokens looks up a model's context window, falling back to DefaultMaxTokens.
func (l Limits) MaxTokens(modelID string) int {
	if v, ok := l[modelID]; ok && v > 0 {
		return v
	}
	return DefaultMaxTokens
}

// MaxTokensForModel consults the built in table.
func MaxTokensForModel(modelID string) int {
	return Limits(defaultLimits).MaxTokens(modelID)
}

// ParseLimits reads "model=tokens" pairs separated by commas, as used by the
// MODEL_TOKEN_LIMITS setting.
func ParseLimits(s string) (Limits, error) {
	l := Limits{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid model limit %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid token count for model %q: %q", k, v)
		}
		l[strings.TrimSpace(k)] = n
	}
	return l, nil
}

// Merge returns a new table with the entries of other overriding l.
func (l Limits) Merge(other Limits) Limits {
	out := make(Limits, len(l)+len(other))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
