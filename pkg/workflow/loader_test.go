package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

func writeWorkflow(t *testing.T, dir string, manifest string, agents map[string]string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yaml"), []byte(manifest), 0o644))
	for name, body := range agents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0o644))
	}
}

const coderAgentFile = `---
id: coder
description: writes code
model: claude-sonnet-4-0
subscribe:
  - user_task_init
tools:
  - bash
max_turns: 10
---
You are the coder agent. Variables: {{.Variables}}
---
User said: {{.Event}}
`

func TestLoadSingleAgentWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, `
name: solo
head: coder
agents:
  - coder
variables:
  project: forge
`, map[string]string{"coder": coderAgentFile})

	wf, renderer, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, wf.Agents, 1)

	agent := wf.Agents[0]
	assert.Equal(t, "coder", agent.ID)
	assert.Equal(t, "claude-sonnet-4-0", agent.ModelID)
	assert.Equal(t, 10, agent.MaxTurns)
	assert.True(t, agent.Subscribes("user_task_init"))
	assert.Equal(t, "forge", wf.Variables["project"])

	sys, err := renderer.Render(agent.SystemPromptTmpl, struct {
		Variables map[string]any
	}{Variables: wf.Variables})
	require.NoError(t, err)
	assert.Contains(t, sys, "coder agent")

	user, err := renderer.Render(agent.UserPromptTmpl, struct{ Event string }{Event: "go"})
	require.NoError(t, err)
	assert.Equal(t, "User said: go", user)
}

func TestLoadMissingManifest(t *testing.T) {
	_, _, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadRejectsUndefinedHead(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, `
name: solo
head: ghost
agents:
  - coder
`, map[string]string{"coder": coderAgentFile})

	_, _, err := Load(dir)
	assert.ErrorIs(t, err, forgetype.ErrHeadAgentUndefined)
}

func TestLoadAgentMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, `
name: solo
agents:
  - bare
`, map[string]string{"bare": "---\nid: bare\n---\nbody\n"})

	_, _, err := Load(dir)
	assert.Error(t, err)
}

func TestDefaultUserTemplateWhenNoDelimiter(t *testing.T) {
	dir := t.TempDir()
	body := "---\nid: a\ndescription: d\nmodel: m\n---\nJust a system prompt, no delimiter.\n"
	writeWorkflow(t, dir, "name: solo\nagents:\n  - a\n", map[string]string{"a": body})

	wf, renderer, err := Load(dir)
	require.NoError(t, err)

	out, err := renderer.Render(wf.Agents[0].UserPromptTmpl, struct{ Event string }{Event: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}
