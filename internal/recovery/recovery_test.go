package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `[{"prompt":"What is 2+2?","answer":"4","explanation":"arithmetic","options":["3","4"]},{"prompt":"Capital of France?","answer":"Paris","explanation":"geography"}]`

func TestRecover_EquivalentShapes(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		strategy Strategy
	}{
		{"pure", payload, StrategyDirect},
		{"fenced json", "```json\n" + payload + "\n```", StrategyFenced},
		{"fenced bare", "Here you go:\n```\n" + payload + "\n```\nEnjoy!", StrategyFenced},
		{"prose", "Sure! Here are the questions: " + payload + " Let me know if you need more.", StrategyBracket},
	}

	want, err := Recover(payload)
	require.NoError(t, err)
	require.Len(t, want.Items, 2)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recover(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, got.Strategy)
			assert.Equal(t, want.Items, got.Items)
		})
	}
}

func TestRecover_QuestionsWrapper(t *testing.T) {
	got, err := Recover(`{"questions": ` + payload + `}`)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, got.Strategy)
	assert.Len(t, got.Items, 2)

	got, err = Recover("```json\n{\"questions\": [{\"prompt\":\"p\",\"answer\":\"a\",\"explanation\":\"e\"}]}\n```")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestRecover_SingleObject(t *testing.T) {
	got, err := Recover(`{"prompt":"p","answer":"a","explanation":"e"}`)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p", got.Items[0]["prompt"])
}

func TestRecover_LooseObjects(t *testing.T) {
	text := `Question one: {"prompt":"a","answer":"1","explanation":"x"}
Question two: {"prompt":"b","answer":"2","explanation":"y","question_data":{"left_items":["l"],"right_items":["r"]}}`
	got, err := Recover(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyObjects, got.Strategy)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "b", got.Items[1]["prompt"])
}

func TestRecover_BracketsInsideStrings(t *testing.T) {
	text := `Output: [{"prompt":"Which array is [1, 2]?","answer":"]{","explanation":"tricky \"[\" quote"}] done`
	got, err := Recover(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyBracket, got.Strategy)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "]{", got.Items[0]["answer"])
}

func TestRecover_NestedArraysDoNotTerminateEarly(t *testing.T) {
	text := `The list is [{"prompt":"order","answer":["a","b"],"items":["b","a"],"explanation":"e"}] as requested.`
	got, err := Recover(text)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, []any{"a", "b"}, got.Items[0]["answer"])
}

func TestRecover_SkipsNonListBracketSpans(t *testing.T) {
	text := `See note [1]. Result: [{"prompt":"p","answer":"a","explanation":"e"}]`
	got, err := Recover(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyBracket, got.Strategy)
	require.Len(t, got.Items, 1)
}

func TestRecover_DropsNonObjectElements(t *testing.T) {
	got, err := Recover(`[{"prompt":"p","answer":"a","explanation":"e"}, "stray", 3]`)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestRecover_Failures(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"I'm sorry, I can't help with that.",
		`[{"prompt": "unterminated"`,
		`"just a string"`,
		`42`,
		`[1, 2, 3]`,
	} {
		_, err := Recover(text)
		assert.ErrorIs(t, err, ErrUnrecoverable, "text %q", text)
	}
}

func TestBalancedEnd(t *testing.T) {
	end, ok := balancedEnd(`x[a,[b],{"c":"]"}]y`, 1)
	require.True(t, ok)
	assert.Equal(t, 17, end)

	_, ok = balancedEnd(`[unclosed`, 0)
	assert.False(t, ok)
}

func TestRecover_InnerArraysOfLooseObjectsIgnored(t *testing.T) {
	text := `First {"prompt":"a","answer":"1","explanation":"x","options":[{"k":1}]} then {"prompt":"b","answer":"2","explanation":"y"}`
	got, err := Recover(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyObjects, got.Strategy)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "a", got.Items[0]["prompt"])
}

func TestRecover_UnclosedBracketBeforeValidList(t *testing.T) {
	text := `Notes [draft: here it is [{"prompt":"p","answer":"a","explanation":"e"}]`
	got, err := Recover(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyBracket, got.Strategy)
	assert.Len(t, got.Items, 1)
}

func TestRecover_ProseWrappedQuestionsWrapper(t *testing.T) {
	got, err := Recover(`Result: {"questions": [{"prompt":"a"},{"prompt":"b"}]} and more`)
	require.NoError(t, err)
	assert.Equal(t, StrategyObjects, got.Strategy)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "a", got.Items[0]["prompt"])
	assert.Equal(t, "b", got.Items[1]["prompt"])

	// A wrapper next to a loose object contributes its questions in place.
	got, err = Recover(`First {"prompt":"x"} then {"questions": [{"prompt":"y"}]}`)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "x", got.Items[0]["prompt"])
	assert.Equal(t, "y", got.Items[1]["prompt"])
}
