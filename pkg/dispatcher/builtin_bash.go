package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/gobwas/glob"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// BashInput is the schema-validated input for the bash tool. Grounded in the
// teacher's BashInput/BashTool (pkg/tools/bash.go), trimmed to the subset
// the core's minimal in-repo shell executor needs; a background/long-running
// shell facade belongs to the external tool-executor collaborator named in
// spec.md §1, not this core.
type BashInput struct {
	Description string `json:"description" jsonschema_description:"what this command does"`
	Command     string `json:"command" jsonschema_description:"the shell command to run"`
	Timeout     int    `json:"timeout" jsonschema_description:"timeout in seconds" jsonschema:"default=10"`
}

// BashTool runs a shell command, restricted to a glob-matched allow-list
// exactly as the teacher's tool does (github.com/gobwas/glob), since the
// `Shell` tool is "responsible for exposing its own timeout argument"
// (spec.md §5).
type BashTool struct {
	allowedCommands []string
	compiled        []glob.Glob
}

// NewBashTool compiles allowedCommands (glob patterns) once at registration
// time.
func NewBashTool(allowedCommands []string) *BashTool {
	compiled := make([]glob.Glob, 0, len(allowedCommands))
	for _, pattern := range allowedCommands {
		compiled = append(compiled, glob.MustCompile(pattern))
	}
	return &BashTool{allowedCommands: allowedCommands, compiled: compiled}
}

func (b *BashTool) matches(command string) bool {
	if len(b.compiled) == 0 {
		return true
	}
	for _, g := range b.compiled {
		if g.Match(command) {
			return true
		}
	}
	return false
}

func (b *BashTool) Name() string        { return "bash" }
func (b *BashTool) Description() string { return "Run a shell command and return its combined output." }
func (b *BashTool) Schema() *jsonschema.Schema {
	return GenerateSchema[BashInput]()
}

func (b *BashTool) ValidateInput(raw json.RawMessage) error {
	var in BashInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrap(err, "invalid bash arguments")
	}
	if in.Command == "" {
		return errors.New("bash requires a non-empty command")
	}
	if !b.matches(in.Command) {
		return errors.Errorf("command %q is not in the allowed list", in.Command)
	}
	return nil
}

func (b *BashTool) Call(ctx context.Context, tcc *ToolCallContext, raw json.RawMessage) (string, error) {
	var in BashInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 10
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", in.Command)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), errors.Wrapf(err, "command %q failed", in.Command)
	}
	return buf.String(), nil
}
