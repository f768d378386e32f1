package dispatcher

import (
	"context"
	"encoding/json"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// FileReadInput is the schema-validated input for the file_read tool.
type FileReadInput struct {
	Path string `json:"path" jsonschema_description:"absolute or relative path of the file to read"`
}

// FileReadTool reads a file from the local filesystem. It is one of the
// minimal in-repo tool executors that exercise the Dispatcher contract;
// real filesystem/shell/patch/fetch executors live outside this core
// (spec.md §1).
type FileReadTool struct{}

func (FileReadTool) Name() string        { return "file_read" }
func (FileReadTool) Description() string { return "Read the contents of a file." }
func (FileReadTool) Schema() *jsonschema.Schema {
	return GenerateSchema[FileReadInput]()
}

func (FileReadTool) ValidateInput(raw json.RawMessage) error {
	var in FileReadInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrap(err, "invalid file_read arguments")
	}
	if in.Path == "" {
		return errors.New("file_read requires a non-empty path")
	}
	return nil
}

func (FileReadTool) Call(ctx context.Context, tcc *ToolCallContext, raw json.RawMessage) (string, error) {
	var in FileReadInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	content, err := os.ReadFile(in.Path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", in.Path)
	}
	return string(content), nil
}

// FileWriteInput is the schema-validated input for the file_write tool.
type FileWriteInput struct {
	Path    string `json:"path" jsonschema_description:"path of the file to write"`
	Content string `json:"content" jsonschema_description:"full content to write"`
}

// FileWriteTool overwrites (or creates) a file with the given content.
type FileWriteTool struct{}

func (FileWriteTool) Name() string        { return "file_write" }
func (FileWriteTool) Description() string { return "Write content to a file, creating it if necessary." }
func (FileWriteTool) Schema() *jsonschema.Schema {
	return GenerateSchema[FileWriteInput]()
}

func (FileWriteTool) ValidateInput(raw json.RawMessage) error {
	var in FileWriteInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrap(err, "invalid file_write arguments")
	}
	if in.Path == "" {
		return errors.New("file_write requires a non-empty path")
	}
	return nil
}

func (FileWriteTool) Call(ctx context.Context, tcc *ToolCallContext, raw json.RawMessage) (string, error) {
	var in FileWriteInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	if err := os.WriteFile(in.Path, []byte(in.Content), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", in.Path)
	}
	return "wrote " + in.Path, nil
}
