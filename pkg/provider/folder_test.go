package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(i int) *int { return &i }

func TestFoldTextOnly(t *testing.T) {
	var streamed []string
	f := NewFolder(func(s string) { streamed = append(streamed, s) })
	f.Push(Delta{TextFrag: "Hi"})
	f.Push(Delta{TextFrag: "."})
	f.Push(Delta{Finish: FinishStop})

	res := f.Finish()
	assert.Equal(t, "Hi.", res.Message.Content)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, []string{"Hi", "."}, streamed)
}

func TestFoldToolCallByIndex(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ID: "call_1", Name: "fs_read"}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ArgsFrag: `{"path":`}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ArgsFrag: `"/tmp/x"}`}}})
	f.Push(Delta{Finish: FinishToolCalls})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 1)
	call := res.ToolCalls[0]
	assert.Equal(t, "fs_read", call.Name)
	assert.Nil(t, call.ParseError)
	assert.Equal(t, "/tmp/x", call.Arguments["path"])
}

func TestFoldMultipleToolCallsPreservesOrder(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(1), ID: "b", Name: "second"}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ID: "a", Name: "first"}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ArgsFrag: "{}"}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(1), ArgsFrag: "{}"}}})
	f.Push(Delta{Finish: FinishToolCalls})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 2)
	// order of arrival is first-seen order: index 1 arrived before index 0,
	// so it folds first, independent of provider-side numeric index value.
	assert.Equal(t, "second", res.ToolCalls[0].Name)
	assert.Equal(t, "first", res.ToolCalls[1].Name)
}

func TestFoldToolCallByIDWhenNoIndex(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{ToolCalls: []ToolCallDelta{{ID: "x", Name: "tool"}}})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{ID: "x", ArgsFrag: `{"a":1}`}}})
	f.Push(Delta{Finish: FinishToolCalls})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 1)
	assert.EqualValues(t, 1, res.ToolCalls[0].Arguments["a"])
}

func TestFoldInvalidJSONYieldsParseErrorNotAbort(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ID: "a", Name: "tool", ArgsFrag: "{not json"}}})
	f.Push(Delta{Finish: FinishToolCalls})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 1)
	assert.Error(t, res.ToolCalls[0].ParseError)
}

func TestFoldXMLFallbackWhenNoStructuredCalls(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{TextFrag: `before <forge_tool_call><name>fs_read</name><arguments>{"path":"/tmp/x"}</arguments></forge_tool_call> after`})
	f.Push(Delta{Finish: FinishStop})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "fs_read", res.ToolCalls[0].Name)
	assert.Equal(t, "before  after", res.Message.Content)
}

func TestFoldStructuredTakesPrecedenceOverXML(t *testing.T) {
	f := NewFolder(nil)
	f.Push(Delta{TextFrag: `<forge_tool_call><name>ignored</name><arguments>{}</arguments></forge_tool_call>`})
	f.Push(Delta{ToolCalls: []ToolCallDelta{{Index: intp(0), ID: "a", Name: "real", ArgsFrag: "{}"}}})
	f.Push(Delta{Finish: FinishToolCalls})

	res := f.Finish()
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "real", res.ToolCalls[0].Name)
}

func TestFoldStreamDrainsChannel(t *testing.T) {
	ch := make(chan Delta, 3)
	ch <- Delta{TextFrag: "a"}
	ch <- Delta{TextFrag: "b"}
	ch <- Delta{Finish: FinishStop}
	close(ch)

	res, err := FoldStream(context.Background(), ch, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", res.Message.Content)
}

func TestFoldStreamHonorsCancellation(t *testing.T) {
	ch := make(chan Delta)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FoldStream(ctx, ch, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
