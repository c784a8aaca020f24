package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"(devel)", "(devel)"},
		{"v1.4.2", "v1.4.2"},
		{"1.2", "v1.2.0"},
		{"v2.0.0-rc.1", "v2.0.0-rc.1 (pre-release)"},
		{"main-abc123", "main-abc123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, displayVersion(tt.in), tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "細胞", truncate("細胞分裂", 2))
}
