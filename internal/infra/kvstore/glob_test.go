package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		match   bool
	}{
		{"payment:*", "payment:pi_1", true},
		{"payment:*", "payment:", true},
		{"payment:*", "xpayment:1", false},
		{"payment:*", "payment_intent:1", false},
		{"*", "", true},
		{"*intent*", "payment_intent:9", true},
		{"a+b", "a+b", true},
		{"a+b", "aab", false},
		{"(x)", "(x)", true},
		{"k?", "k1", false},
		{"k?", "k?", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.match, compileGlob(tt.pattern).MatchString(tt.key))
		})
	}
}
