package usage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty gets floor", "", MinTokens},
		{"hello gets floor", "Hello", 5},
		{"ten chars", strings.Repeat("a", 10), 5},
		{"eleven chars rounds up", strings.Repeat("a", 11), 6},
		{"long text", strings.Repeat("a", 100), 50},
		{"counts characters not bytes", strings.Repeat("é", 12), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.text))
		})
	}
}

func TestEstimate_Hello(t *testing.T) {
	e := NewEstimator(map[string]float64{"model-a": 0.0005})

	tokens, cost := e.Estimate("Hello", "model-a")

	assert.Equal(t, 5, tokens)
	assert.InDelta(t, 0.0025, cost, 1e-12)
}

func TestEstimator_Rates(t *testing.T) {
	e := NewEstimator(map[string]float64{"gpt-4o": 1})

	assert.Equal(t, 1.0, e.Rate("gpt-4o"), "override wins")
	assert.Equal(t, DefaultRates()["gpt-4"], e.Rate("gpt-4"))
	assert.Equal(t, DefaultRate, e.Rate("unknown-model"))
	assert.NotEqual(t, e.Rate("gpt-4"), e.Rate("gpt-3.5-turbo"))
}

func TestEstimate_Deterministic(t *testing.T) {
	t1, c1 := Estimate("some payload", "gpt-4")
	t2, c2 := Estimate("some payload", "gpt-4")

	assert.Equal(t, t1, t2)
	assert.Equal(t, c1, c2)
}
