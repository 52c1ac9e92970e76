package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantGoal    string
		wantLenient bool
		wantErr     bool
	}{
		{
			name:     "pure JSON",
			reply:    `{"use_case_goal": "answer HR questions"}`,
			wantGoal: "answer HR questions",
		},
		{
			name:        "markdown fence",
			reply:       "```json\n{\"use_case_goal\": \"route tickets\"}\n```",
			wantGoal:    "route tickets",
			wantLenient: true,
		},
		{
			name:        "prose around object with braces in strings",
			reply:       `Sure! Here it is: {"use_case_goal": "parse {templates} and \"quotes\"", "nested": {"a": 1}} Hope that helps {`,
			wantGoal:    `parse {templates} and "quotes"`,
			wantLenient: true,
		},
		{
			name:    "no object",
			reply:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			reply:   `{"use_case_goal": "x"`,
			wantErr: true,
		},
		{
			name:    "balanced but invalid",
			reply:   `text {use_case_goal: x} text`,
			wantErr: true,
		},
		{
			name:    "array is not an object",
			reply:   `["a", "b"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, lenient, err := extractJSON(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparsableResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLenient, lenient)
			assert.Equal(t, tt.wantGoal, data["use_case_goal"])
		})
	}
}

func TestLooseConversions(t *testing.T) {
	n, ok := looseInt("4")
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	n, ok = looseInt(3.6)
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = looseInt("several")
	assert.False(t, ok)

	b, ok := looseBool("yes")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = looseBool("maybe")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, looseStrings("a, b,"))
	assert.Equal(t, []string{"x", "2"}, looseStrings([]any{"x", 2.0, nil, " "}))
	assert.Equal(t, []string{}, looseStrings(nil))

	assert.Equal(t, "tool_actions", normalizeEnum(" Tool-Actions "))
}

func TestOverlay(t *testing.T) {
	got := overlay(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": nil})
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, got)
}
