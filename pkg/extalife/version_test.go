package extalife

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.6.10", "1.6.29", true},
		{"1.6.29", "1.6.29", false},
		{"1.7.0", "1.6.29", false},
		{"", "1.6.29", false},
		{"garbage", "1.6.29", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, versionLess(tc.a, tc.b), "%s < %s", tc.a, tc.b)
	}
}

func TestCanonicalVersion(t *testing.T) {
	assert.Equal(t, "v1.6.29", canonicalVersion("1.6.29"))
	assert.Equal(t, "v1.6.29", canonicalVersion("v1.6.29"))
	assert.Equal(t, "", canonicalVersion("not-a-version"))
}
