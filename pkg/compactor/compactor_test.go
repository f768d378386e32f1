package compactor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

type fixedSummarizer struct {
	summary string
	failFor int // fails the n-th call (1-indexed); 0 = never fails
	calls   int
}

func (f *fixedSummarizer) SummarizeTurn(ctx context.Context, modelID string, turn []forgetype.Message) (string, error) {
	f.calls++
	if f.failFor != 0 && f.calls == f.failFor {
		return "", assert.AnError
	}
	return f.summary, nil
}

func longContext(nTurns int, wordsPerTurn int) forgetype.Context {
	msgs := []forgetype.Message{forgetype.NewSystemMessage("sys")}
	body := strings.Repeat("word ", wordsPerTurn)
	for i := 0; i < nTurns; i++ {
		msgs = append(msgs, forgetype.NewUserMessage(body))
		msgs = append(msgs, forgetype.NewAssistantMessage(body))
	}
	return forgetype.Context{Messages: msgs, ModelID: "m"}
}

func TestCompactNoOpBelowThreshold(t *testing.T) {
	c := New(&fixedSummarizer{summary: "s"}, Config{TokenThreshold: 1_000_000})
	in := longContext(3, 50)
	out, res := c.Compact(context.Background(), "m", in)
	assert.Equal(t, in, out)
	assert.Equal(t, res.TokensBefore, res.TokensAfter)
}

func TestCompactEmptyContextNoOp(t *testing.T) {
	c := New(&fixedSummarizer{summary: "s"}, DefaultConfig())
	out, res := c.Compact(context.Background(), "m", forgetype.Context{})
	assert.Empty(t, out.Messages)
	assert.Equal(t, 0, res.TokensBefore)
}

func TestCompactSystemOnlyNoOp(t *testing.T) {
	c := New(&fixedSummarizer{summary: "s"}, Config{TokenThreshold: 0})
	in := forgetype.Context{Messages: []forgetype.Message{forgetype.NewSystemMessage("sys")}}
	out, _ := c.Compact(context.Background(), "m", in)
	assert.Equal(t, in, out)
}

func TestCompactShrinksAndKeepsSystemFirst(t *testing.T) {
	c := New(&fixedSummarizer{summary: "short"}, Config{TokenThreshold: 10})
	in := longContext(4, 200)
	out, res := c.Compact(context.Background(), "m", in)

	require.NotEmpty(t, out.Messages)
	assert.Equal(t, forgetype.RoleSystem, out.Messages[0].Role)
	// Each turn holds one User and one Assistant message; the Assistant
	// message is replaced by one work_summary, so the count is unchanged
	// while the token estimate drops.
	assert.Equal(t, res.MessagesBefore, res.MessagesAfter)
	assert.Less(t, res.TokensAfter, res.TokensBefore)

	for _, m := range out.Messages[1:] {
		if m.Role == forgetype.RoleAssistant {
			assert.Contains(t, m.Content, "<work_summary>")
		}
	}
}

func TestCompactFailedTurnLeftIntact(t *testing.T) {
	summ := &fixedSummarizer{summary: "short", failFor: 1}
	c := New(summ, Config{TokenThreshold: 10})
	in := longContext(2, 100)

	out, _ := c.compactOnePass(context.Background(), "m", in)
	// within this pass the first turn's summarizer call failed, so its
	// assistant message survives verbatim rather than becoming a work_summary.
	found := false
	for _, m := range out.Messages {
		if m.Role == forgetype.RoleAssistant && strings.Contains(m.Content, "word word") {
			found = true
		}
	}
	assert.True(t, found, "failed turn must be left intact")
}

func TestPartitionTurns(t *testing.T) {
	msgs := []forgetype.Message{
		forgetype.NewUserMessage("u1"),
		forgetype.NewAssistantMessage("a1"),
		forgetype.NewUserMessage("u2"),
		forgetype.NewAssistantMessage("a2"),
		forgetype.NewToolMessage("id", forgetype.ToolResult{Content: "r"}),
	}
	turns := partitionTurns(msgs)
	require.Len(t, turns, 2)
	assert.Equal(t, turn{0, 2}, turns[0])
	assert.Equal(t, turn{2, 5}, turns[1])
}
