package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// forgeToolCallPattern matches the canonical XML fallback form named in
// spec.md §9: <forge_tool_call><name>...</name><arguments>{...}</arguments></forge_tool_call>,
// used by models whose provider channel does not support structured tool
// calls.
var forgeToolCallPattern = regexp.MustCompile(`(?s)<forge_tool_call>\s*<name>(.*?)</name>\s*<arguments>(.*?)</arguments>\s*</forge_tool_call>`)

// parseXMLToolCalls scans text for one or more forge_tool_call blocks and
// returns the parsed ToolCallFull values plus the text with those blocks
// stripped out. Structured and XML tool-call forms never mix for a single
// turn (spec.md §4.4); callers only invoke this when no structured tool
// call was folded.
func parseXMLToolCalls(text string) ([]forgetype.ToolCallFull, string) {
	matches := forgeToolCallPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text
	}

	var calls []forgetype.ToolCallFull
	var remainder strings.Builder
	last := 0
	for _, m := range matches {
		remainder.WriteString(text[last:m[0]])
		last = m[1]

		name := strings.TrimSpace(text[m[2]:m[3]])
		argsRaw := strings.TrimSpace(text[m[4]:m[5]])

		call := forgetype.ToolCallFull{Name: name, RawArguments: argsRaw}
		if argsRaw == "" {
			call.Arguments = map[string]any{}
		} else if err := json.Unmarshal([]byte(argsRaw), &call.Arguments); err != nil {
			call.ParseError = err
		}
		calls = append(calls, call)
	}
	remainder.WriteString(text[last:])

	return calls, strings.TrimSpace(remainder.String())
}
