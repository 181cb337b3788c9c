package taskqueue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, truncateError(nil, 10))
	assert.Equal(t, "hello", truncateError(errors.New("hello world"), 5))
	assert.Equal(t, "short", truncateError(errors.New("short"), 64))
}

func TestTruncateString_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"aő", 2, "a"}, // ő is two bytes
		{"aő", 3, "aő"},
		{"€uro", 2, ""},
		{"abc", 0, ""},
		{"abc", -1, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, truncateString(tc.in, tc.max), "%q/%d", tc.in, tc.max)
	}
}
