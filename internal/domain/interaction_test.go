package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEffect(t *testing.T) {
	t.Run("increase aliases", func(t *testing.T) {
		for _, in := range []string{"+", "increase", "increases", "up", "positive", "pos", "inc"} {
			got, err := NormalizeEffect(in)
			require.NoError(t, err, in)
			assert.Equal(t, EffectIncrease, got, in)
		}
	})

	t.Run("decrease aliases", func(t *testing.T) {
		for _, in := range []string{"-", "decrease", "decreases", "down", "negative", "neg", "dec"} {
			got, err := NormalizeEffect(in)
			require.NoError(t, err, in)
			assert.Equal(t, EffectDecrease, got, in)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		got, err := NormalizeEffect("Increases")
		require.NoError(t, err)
		assert.Equal(t, EffectIncrease, got)

		got, err = NormalizeEffect("NEG")
		require.NoError(t, err)
		assert.Equal(t, EffectDecrease, got)
	})

	t.Run("rejects everything else", func(t *testing.T) {
		for _, in := range []string{"unclear", "", "no effect", "++", " +", "increased", "mixed"} {
			_, err := NormalizeEffect(in)
			require.Error(t, err, in)
			assert.True(t, errors.Is(err, ErrUnrecognizedEffect), in)
		}
	})

	t.Run("rejection is stable", func(t *testing.T) {
		_, first := NormalizeEffect("unclear")
		_, second := NormalizeEffect("unclear")
		assert.Error(t, first)
		assert.Error(t, second)
	})
}

func TestMatchesTopic(t *testing.T) {
	tests := []struct {
		name  string
		iv    string
		dv    string
		match bool
	}{
		{name: "iv matches", iv: "creatine", dv: "muscle mass", match: true},
		{name: "dv matches", iv: "exercise", dv: "creatine", match: true},
		{name: "neither matches", iv: "caffeine", dv: "heart rate", match: false},
		{name: "case differs", iv: "Creatine", dv: "muscle mass", match: false},
		{name: "substring only", iv: "creatine supplementation", dv: "strength", match: false},
		{name: "whitespace differs", iv: " creatine", dv: "strength", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, MatchesTopic("creatine", tt.iv, tt.dv))
		})
	}
}

func TestEffect_Symbol(t *testing.T) {
	assert.Equal(t, "+", EffectIncrease.Symbol())
	assert.Equal(t, "-", EffectDecrease.Symbol())
	assert.Equal(t, "?", Effect("other").Symbol())
}

func TestInteraction_String(t *testing.T) {
	i := Interaction{IndependentVariable: "creatine", DependentVariable: "muscle mass", Effect: EffectIncrease}
	assert.Equal(t, "creatine -> muscle mass (+)", i.String())
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1000/ABC", "10.1000/abc"},
		{"  10.1000/abc ", "10.1000/abc"},
		{"https://doi.org/10.1000/abc", "10.1000/abc"},
		{"doi:10.1000/abc", "10.1000/abc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDOI(tt.in), tt.in)
	}
}
