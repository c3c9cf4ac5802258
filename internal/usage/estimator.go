// Package usage estimates token counts and monetary cost for chat payloads.
package usage

import (
	"unicode/utf8"
)

// MinTokens is the floor applied to every estimate so that trivial input is still billed
const MinTokens = 5

// DefaultRate is the per-token price used for models missing from the rate table
const DefaultRate = 0.0005

// DefaultRates returns built-in per-token prices for the supported models
func DefaultRates() map[string]float64 {
	return map[string]float64{
		// OpenAI
		"gpt-3.5-turbo": 0.0005,
		"gpt-4o-mini":   0.0006,
		"gpt-4o":        0.005,
		"gpt-4-turbo":   0.01,
		"gpt-4":         0.03,
		// Anthropic
		"claude-3-haiku-20240307":    0.00025,
		"claude-3-5-sonnet-20241022": 0.003,
		"claude-3-sonnet-20240229":   0.0031,
		"claude-3-opus-20240229":     0.015,
		// DeepSeek
		"deepseek-chat":  0.00027,
		"deepseek-coder": 0.00028,
		// Google
		"gemini-2.5-flash": 0.00015,
		"gemini-1.5-flash": 0.000075,
		"gemini-1.5-pro":   0.00125,
	}
}

// Estimator maps text and a model identifier to an estimated token count and cost
type Estimator struct {
	rates map[string]float64
}

// NewEstimator creates an Estimator with default rates and optional overrides
func NewEstimator(overrides map[string]float64) *Estimator {
	rates := DefaultRates()
	for model, rate := range overrides {
		rates[model] = rate
	}
	return &Estimator{rates: rates}
}

var defaultEstimator = NewEstimator(nil)

// Estimate uses the built-in rate table
func Estimate(text, model string) (int, float64) {
	return defaultEstimator.Estimate(text, model)
}

// Tokens returns max(MinTokens, ceil(len(text)/2)) where len counts characters
func Tokens(text string) int {
	n := utf8.RuneCountInString(text)
	tokens := (n + 1) / 2
	if tokens < MinTokens {
		return MinTokens
	}
	return tokens
}

// Estimate returns the token estimate for text and its cost under model's rate
func (e *Estimator) Estimate(text, model string) (int, float64) {
	tokens := Tokens(text)
	return tokens, e.Cost(tokens, model)
}

// Cost prices a token count for the given model
func (e *Estimator) Cost(tokens int, model string) float64 {
	return float64(tokens) * e.Rate(model)
}

// Rate returns the per-token price of model
func (e *Estimator) Rate(model string) float64 {
	if rate, ok := e.rates[model]; ok {
		return rate
	}
	return DefaultRate
}
