package jobhandle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatParseRoundTrip(t *testing.T) {
	h := Format("worker-a", "42")
	host, localID, ok := Parse(h)
	assert.True(t, ok)
	assert.Equal(t, "worker-a", host)
	assert.Equal(t, "42", localID)
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"not-a-handle",
		"ssh/",
		"ssh//42",
		"ssh/worker-a/",
		"other/worker-a/42",
	}
	for _, tt := range tests {
		_, _, ok := Parse(tt)
		assert.False(t, ok, "expected Parse(%q) to fail", tt)
	}
}
