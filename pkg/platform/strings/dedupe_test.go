package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil input", input: nil, expected: nil},
		{name: "empty input", input: []string{}, expected: []string{}},
		{
			name:     "trims and drops empties",
			input:    []string{"  broker-1:9092 ", "", "  "},
			expected: []string{"broker-1:9092"},
		},
		{
			name:     "dedupes preserving first occurrence",
			input:    []string{"a", "b", " a", "c", "b"},
			expected: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
