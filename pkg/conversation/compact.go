package conversation

import (
	"context"

	"github.com/vanshchauhan21/forge/pkg/compactor"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// CompactionResult aggregates before/after counts across every AgentState
// that had a Context at the time CompactConversation ran.
type CompactionResult struct {
	TokensBefore, TokensAfter     int
	MessagesBefore, MessagesAfter int
}

// CompactConversation runs the Context Compactor against every AgentState
// in the conversation that has a Context, persists the shrunk results under
// the store's normal per-id lock, and returns the aggregated counts (spec.md
// §4.1 compact_conversation).
func CompactConversation(ctx context.Context, s *Store, c *compactor.Compactor, id string) (CompactionResult, error) {
	return Update(ctx, s, id, func(conv *forgetype.Conversation) (CompactionResult, error) {
		var agg CompactionResult
		for agentID, st := range conv.AgentStates {
			if st.Context == nil {
				continue
			}
			shrunk, res := c.Compact(ctx, st.Context.ModelID, *st.Context)
			agg.TokensBefore += res.TokensBefore
			agg.TokensAfter += res.TokensAfter
			agg.MessagesBefore += res.MessagesBefore
			agg.MessagesAfter += res.MessagesAfter
			st.Context = &shrunk
			conv.AgentStates[agentID] = st
		}
		return agg, nil
	})
}
