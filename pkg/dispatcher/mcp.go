package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/logger"
)

// MCPServerType selects the transport an MCP bridge speaks, mirroring the
// teacher's pkg/tools/mcp.go MCPServerConfig.
type MCPServerType string

const (
	MCPServerTypeStdio MCPServerType = "stdio"
	MCPServerTypeSSE   MCPServerType = "sse"
)

// MCPServerConfig describes one external MCP server to bridge into the
// dispatcher's Registry.
type MCPServerConfig struct {
	ServerType    MCPServerType     `mapstructure:"server_type" yaml:"server_type"`
	Command       string            `mapstructure:"command" yaml:"command"`
	Args          []string          `mapstructure:"args" yaml:"args"`
	Envs          map[string]string `mapstructure:"envs" yaml:"envs"`
	BaseURL       string            `mapstructure:"base_url" yaml:"base_url"`
	Headers       map[string]string `mapstructure:"headers" yaml:"headers"`
	ToolWhiteList []string          `mapstructure:"tool_white_list" yaml:"tool_white_list"`
}

func newMCPClient(cfg MCPServerConfig) (*client.Client, error) {
	serverType := cfg.ServerType
	if serverType == "" {
		switch {
		case cfg.BaseURL != "":
			serverType = MCPServerTypeSSE
		case cfg.Command != "":
			serverType = MCPServerTypeStdio
		default:
			return nil, errors.New("mcp server config needs either command or base_url")
		}
	}

	switch serverType {
	case MCPServerTypeStdio:
		if cfg.Command == "" {
			return nil, errors.New("command is required for a stdio mcp server")
		}
		envArgs := make([]string, 0, len(cfg.Envs))
		for k, v := range cfg.Envs {
			envArgs = append(envArgs, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewClient(transport.NewStdio(cfg.Command, envArgs, cfg.Args...)), nil
	case MCPServerTypeSSE:
		if cfg.BaseURL == "" {
			return nil, errors.New("base_url is required for an sse mcp server")
		}
		tp, err := transport.NewSSE(cfg.BaseURL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, errors.Wrap(err, "create sse mcp transport")
		}
		return client.NewClient(tp), nil
	default:
		return nil, errors.Errorf("invalid mcp server type %q", serverType)
	}
}

// DiscoverMCPTools connects to every configured MCP server, initializes the
// session, and returns a Tool per whitelisted remote tool ready to hand to
// NewRegistry alongside the in-process built-ins. One server failing to
// initialize does not abort discovery against the others (spec.md §1's "MCP
// bridges" executor category is best-effort per server).
func DiscoverMCPTools(ctx context.Context, servers map[string]MCPServerConfig) ([]Tool, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		multiErr error
		tools    []Tool
	)

	wg.Add(len(servers))
	for name, cfg := range servers {
		go func(name string, cfg MCPServerConfig) {
			defer wg.Done()
			discovered, err := discoverOneServer(ctx, name, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				multiErr = multierror.Append(multiErr, errors.Wrapf(err, "mcp server %s", name))
				return
			}
			tools = append(tools, discovered...)
		}(name, cfg)
	}
	wg.Wait()

	if multiErr != nil {
		logger.G(ctx).WithError(multiErr).Warn("one or more mcp servers failed to initialize")
	}
	return tools, multiErr
}

func discoverOneServer(ctx context.Context, name string, cfg MCPServerConfig) ([]Tool, error) {
	c, err := newMCPClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start mcp client")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "forge", Version: "dev"}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, errors.Wrap(err, "initialize mcp session")
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "list mcp tools")
	}

	tools := make([]Tool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		if len(cfg.ToolWhiteList) > 0 && !slices.Contains(cfg.ToolWhiteList, t.GetName()) {
			continue
		}
		tools = append(tools, newMCPTool(name, c, t))
	}
	return tools, nil
}

// mcpTool bridges one remote MCP tool into the dispatcher.Tool interface,
// grounded directly in the teacher's MCPTool (pkg/tools/mcp.go).
type mcpTool struct {
	serverName  string
	client      *client.Client
	name        string
	description string
	inputSchema mcp.ToolInputSchema
}

func newMCPTool(serverName string, c *client.Client, t mcp.Tool) *mcpTool {
	return &mcpTool{
		serverName:  serverName,
		client:      c,
		name:        t.GetName(),
		description: t.Description,
		inputSchema: t.InputSchema,
	}
}

func (t *mcpTool) Name() string { return fmt.Sprintf("mcp_%s_%s", t.serverName, t.name) }

func (t *mcpTool) Description() string { return t.description }

func (t *mcpTool) Schema() *jsonschema.Schema {
	raw, err := t.inputSchema.MarshalJSON()
	if err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return &schema
}

// ValidateInput defers entirely to the remote server's own validation: the
// dispatcher has no local copy of the MCP tool's semantics to check against,
// only the schema already advertised via Schema().
func (t *mcpTool) ValidateInput(rawArgs json.RawMessage) error {
	var v any
	return json.Unmarshal(rawArgs, &v)
}

func (t *mcpTool) Call(ctx context.Context, tcc *ToolCallContext, rawArgs json.RawMessage) (string, error) {
	var input map[string]any
	if err := json.Unmarshal(rawArgs, &input); err != nil {
		return "", errors.Wrap(err, "unmarshal mcp tool arguments")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = input

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", errors.Wrapf(err, "call mcp tool %s", t.name)
	}

	var out string
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			out += text.Text
		} else {
			out += fmt.Sprintf("%v", c)
		}
	}
	return out, nil
}
