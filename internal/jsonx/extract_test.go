package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json tagged fence",
			input:    "```json\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "untagged fence",
			input:    "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "fence with surrounding prose",
			input:    "Here you go:\n```json\n{\"a\":1}\n```\nLet me know!",
			expected: `{"a":1}`,
		},
		{
			name:     "uppercase tag",
			input:    "```JSON\n{\"a\":1}```",
			expected: `{"a":1}`,
		},
		{
			name:     "no fence",
			input:    "   {\"a\":1}  \n",
			expected: `{"a":1}`,
		},
		{
			name:     "unterminated fence is left alone",
			input:    "```json\n{\"a\":1}",
			expected: "```json\n{\"a\":1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFence(tt.input))
		})
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{
			name:     "bare object",
			input:    `{"title":"Cells"}`,
			expected: `{"title":"Cells"}`,
			found:    true,
		},
		{
			name:     "leading and trailing prose",
			input:    `Sure! {"title":"Cells"} Hope this helps.`,
			expected: `{"title":"Cells"}`,
			found:    true,
		},
		{
			name:     "nested objects",
			input:    `{"a":{"b":{"c":1}},"d":[{"e":2}]} trailing`,
			expected: `{"a":{"b":{"c":1}},"d":[{"e":2}]}`,
			found:    true,
		},
		{
			name:     "braces inside strings are ignored",
			input:    `{"code":"func() { return }","x":"}"} {"second":true}`,
			expected: `{"code":"func() { return }","x":"}"}`,
			found:    true,
		},
		{
			name:     "escaped quote does not end the string",
			input:    `{"q":"say \"}\" now"} tail`,
			expected: `{"q":"say \"}\" now"}`,
			found:    true,
		},
		{
			name:     "escaped backslash before closing quote",
			input:    `{"path":"C:\\"} {"x":1}`,
			expected: `{"path":"C:\\"}`,
			found:    true,
		},
		{
			name:     "only the first object is returned",
			input:    `{"a":1}{"b":2}`,
			expected: `{"a":1}`,
			found:    true,
		},
		{
			name:  "no opening brace",
			input: `I cannot help with that.`,
			found: false,
		},
		{
			name:  "unbalanced object",
			input: `{"a":{"b":1}`,
			found: false,
		},
		{
			name:  "empty input",
			input: "",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.input)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtract_FencedObjectWithProse(t *testing.T) {
	objects := []string{
		`{"a":1}`,
		`{"questions":[{"q":"What is 2+2?","options":["3","4"]}],"title":"Math"}`,
		`{"s":"brace } and { inside","n":null}`,
	}

	for _, obj := range objects {
		input := "Here is the quiz you asked for:\n```json\n" + obj + "\n```\nGood luck with the lesson."
		got, ok := Extract(input)
		require.True(t, ok)
		assert.Equal(t, obj, got)
	}
}
