package workflow

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// userPromptDelimiter splits an agent markdown body into its system prompt
// template (above the delimiter) and user prompt template (below it). An
// agent file with no delimiter uses its whole body as the system prompt and
// falls back to defaultUserTemplate.
const userPromptDelimiter = "\n---\n"

const defaultUserTemplate = "{{.Event}}"

// Load reads the workflow.yaml manifest in dir plus every agent markdown
// file it names, and returns the assembled forgetype.Workflow alongside a
// Renderer with every agent's prompt templates already parsed.
func Load(dir string) (forgetype.Workflow, *Renderer, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return forgetype.Workflow{}, nil, err
	}

	renderer := NewRenderer()
	agents := make([]forgetype.Agent, 0, len(manifest.Agents))

	for _, name := range manifest.Agents {
		fm, systemBody, userBody, err := loadAgentFile(dir, name)
		if err != nil {
			return forgetype.Workflow{}, nil, errors.Wrapf(err, "load agent %q", name)
		}

		systemTmpl := fm.ID + ".system"
		userTmpl := fm.ID + ".user"
		if err := renderer.Register(systemTmpl, systemBody); err != nil {
			return forgetype.Workflow{}, nil, errors.Wrapf(err, "parse system prompt template for agent %s", fm.ID)
		}
		if err := renderer.Register(userTmpl, userBody); err != nil {
			return forgetype.Workflow{}, nil, errors.Wrapf(err, "parse user prompt template for agent %s", fm.ID)
		}

		agent, err := fm.toAgent(systemTmpl, userTmpl)
		if err != nil {
			return forgetype.Workflow{}, nil, err
		}
		agents = append(agents, agent)
	}

	wf := forgetype.Workflow{Agents: agents, Variables: manifest.Variables}

	if manifest.Head != "" {
		if _, ok := wf.AgentByID(manifest.Head); !ok {
			return forgetype.Workflow{}, nil, errors.Wrapf(forgetype.ErrHeadAgentUndefined, "head %q", manifest.Head)
		}
	}

	return wf, renderer, nil
}

func loadAgentFile(dir, name string) (agentFrontmatter, string, string, error) {
	var lastErr error
	for _, path := range agentFileCandidates(dir, name) {
		content, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		fm, body, err := parseAgentMarkdown(content)
		if err != nil {
			return agentFrontmatter{}, "", "", errors.Wrapf(err, "parse %s", path)
		}
		if fm.ID == "" {
			fm.ID = strings.TrimSuffix(name, ".md")
		}
		systemBody, userBody := splitPrompts(body)
		return fm, systemBody, userBody, nil
	}
	return agentFrontmatter{}, "", "", errors.Wrapf(lastErr, "no agent file found for %q in %s", name, dir)
}

// parseAgentMarkdown extracts the YAML frontmatter (via goldmark-meta, the
// same extension pkg/agents/agent.go uses) and the remaining markdown body
// from one agent definition file.
func parseAgentMarkdown(content []byte) (agentFrontmatter, string, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return agentFrontmatter{}, "", errors.Wrap(err, "convert markdown")
	}

	raw, err := yaml.Marshal(meta.Get(pctx))
	if err != nil {
		return agentFrontmatter{}, "", errors.Wrap(err, "re-marshal frontmatter")
	}
	var fm agentFrontmatter
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return agentFrontmatter{}, "", errors.Wrap(err, "unmarshal frontmatter into agent shape")
	}

	return fm, extractBody(string(content)), nil
}

// extractBody strips the YAML frontmatter block, mirroring
// pkg/agents/agent.go's extractBodyContent.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return content
	}
	return strings.TrimSpace(strings.Join(lines[end+1:], "\n"))
}

func splitPrompts(body string) (system, user string) {
	if idx := strings.Index(body, userPromptDelimiter); idx >= 0 {
		return strings.TrimSpace(body[:idx]), strings.TrimSpace(body[idx+len(userPromptDelimiter):])
	}
	return body, defaultUserTemplate
}

// Loaded pairs one directory's assembled Workflow with its Renderer.
type Loaded struct {
	Dir      string
	Workflow forgetype.Workflow
	Renderer *Renderer
}

// List loads every workflow.yaml found directly under the given root
// directories, skipping (and logging) any that fail to parse rather than
// aborting discovery — the multi-entry generalization of
// pkg/agents/agent.go's ListAgents log-and-continue pattern.
func List(dirs ...string) []Loaded {
	var out []Loaded
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.L.WithField("dir", dir).Debug("workflow directory not found, skipping")
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			sub := dir + string(os.PathSeparator) + e.Name()
			wf, renderer, err := Load(sub)
			if err != nil {
				logger.L.WithField("workflow_dir", sub).WithError(err).Warn("failed to load workflow, skipping")
				continue
			}
			out = append(out, Loaded{Dir: sub, Workflow: wf, Renderer: renderer})
		}
	}
	return out
}
