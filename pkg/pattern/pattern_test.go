package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		rule    string
		kind    Kind
		wantErr bool
	}{
		{"example.com", KindExact, false},
		{"*tracker*", KindWildcard, false},
		{"~^https://", KindRegexp, false},
		{"~*analytics", KindRegexp, false},
		{"  *padded*  ", KindWildcard, false},
		{"", 0, true},
		{"   ", 0, true},
		{"~[unclosed", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			p, err := Compile(tt.rule)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		input string
		want  bool
	}{
		{"exact equal", "Example.com", "example.COM", true},
		{"exact substring is not a match", "example.com", "www.example.com", false},
		{"wildcard contains", "*doubleclick.net*", "https://AD.DoubleClick.net/x.js", true},
		{"wildcard miss", "*doubleclick.net*", "https://example.com/", false},
		{"wildcard prefix", "https://cdn.*", "https://cdn.example.com/a.js", true},
		{"wildcard suffix", "*.woff2", "https://fonts.example.com/a.WOFF2", true},
		{"wildcard middle parts in order", "*/ads/*/banner*", "https://x.com/ads/2024/banner.png", true},
		{"wildcard middle parts out of order", "*/banner/*/ads*", "https://x.com/ads/2024/banner.png", false},
		{"wildcard overlapping ends", "ab*ba", "aba", false},
		{"catch-all", "*", "anything", true},
		{"regexp case-sensitive", "~^https://ads\\.", "https://ads.example.com", true},
		{"regexp case-sensitive miss", "~^https://ads\\.", "HTTPS://ADS.example.com", false},
		{"regexp case-insensitive", "~*(tracking|analytics)", "https://x.com/ANALYTICS.js", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustCompile(tt.rule)
			assert.Equal(t, tt.want, p.Match(tt.input))
		})
	}
}

func TestMatch_NilAndZero(t *testing.T) {
	var p *Pattern
	assert.False(t, p.Match("anything"))
	assert.False(t, (&Pattern{}).Match(""))
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("") })
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "exact", KindExact.String())
	assert.Equal(t, "wildcard", KindWildcard.String())
	assert.Equal(t, "regexp", KindRegexp.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
