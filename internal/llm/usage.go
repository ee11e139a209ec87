package llm

import (
	"encoding/json"

	"github.com/tmc/langchaingo/llms"
)

// Usage is a cumulative token-usage tally.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage record into the tally.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// UsageExtractor tries to read token usage out of one response shape.
// Providers disagree on where usage lives, so extraction is an ordered
// list of strategies; the first match wins.
type UsageExtractor interface {
	TryExtract(info map[string]any) (Usage, bool)
}

// DefaultExtractors is the strategy order applied after every model
// invocation: a nested token_usage map, flat input/output/total keys,
// a nested usage_metadata map, then the OpenAI-style counter names.
var DefaultExtractors = []UsageExtractor{
	nestedMapExtractor{key: "token_usage"},
	flatKeysExtractor{},
	nestedMapExtractor{key: "usage_metadata"},
	openAIKeysExtractor{},
}

// ExtractUsage runs the default strategies over a choice's generation
// info. A miss is not an error; callers log it and move on.
func ExtractUsage(choice *llms.ContentChoice) (Usage, bool) {
	if choice == nil || choice.GenerationInfo == nil {
		return Usage{}, false
	}
	for _, ex := range DefaultExtractors {
		if u, ok := ex.TryExtract(choice.GenerationInfo); ok {
			return u, true
		}
	}
	return Usage{}, false
}

// nestedMapExtractor reads {key: {input_tokens, output_tokens, total_tokens}}.
type nestedMapExtractor struct {
	key string
}

func (e nestedMapExtractor) TryExtract(info map[string]any) (Usage, bool) {
	nested, ok := info[e.key].(map[string]any)
	if !ok {
		return Usage{}, false
	}
	return (flatKeysExtractor{}).TryExtract(nested)
}

// flatKeysExtractor reads input_tokens/output_tokens/total_tokens at the
// top level.
type flatKeysExtractor struct{}

func (flatKeysExtractor) TryExtract(info map[string]any) (Usage, bool) {
	in, okIn := toInt(info["input_tokens"])
	out, okOut := toInt(info["output_tokens"])
	total, okTotal := toInt(info["total_tokens"])
	if !okIn && !okOut && !okTotal {
		return Usage{}, false
	}
	if !okTotal {
		total = in + out
	}
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}, true
}

// openAIKeysExtractor reads the PromptTokens/CompletionTokens/TotalTokens
// counters several langchaingo providers put in GenerationInfo.
type openAIKeysExtractor struct{}

func (openAIKeysExtractor) TryExtract(info map[string]any) (Usage, bool) {
	in, okIn := toInt(info["PromptTokens"])
	out, okOut := toInt(info["CompletionTokens"])
	total, okTotal := toInt(info["TotalTokens"])
	if !okIn && !okOut && !okTotal {
		return Usage{}, false
	}
	if !okTotal {
		total = in + out
	}
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
