// Package workflow loads Workflow/Agent definitions (spec.md §3) from disk:
// a YAML manifest naming the participating agents and the workflow's shared
// variables, plus one markdown-with-YAML-frontmatter file per agent — the
// multi-agent generalization of the teacher's single-agent frontmatter
// loader (pkg/agents/agent.go).
package workflow

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// Manifest is the top-level workflow.yaml document: the shared variable map
// and the ordered list of agent definition files (relative to the manifest's
// directory, without extension).
type Manifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Head        string         `yaml:"head"`
	Agents      []string       `yaml:"agents"`
	Variables   map[string]any `yaml:"variables"`
}

// agentFrontmatter mirrors the YAML frontmatter fields of one agent markdown
// file, named the way pkg/agents/agent.go's AgentMetadata names them where
// the concept carries over, and extended with the Workflow-specific fields
// (subscribed events, handovers) spec.md §3 requires.
type agentFrontmatter struct {
	ID               string           `yaml:"id"`
	Description      string           `yaml:"description"`
	Model            string           `yaml:"model"`
	SubscribedEvents []string         `yaml:"subscribe"`
	Tools            []string         `yaml:"tools"`
	Handovers        []handoverEntry  `yaml:"handovers"`
	MaxTurns         int              `yaml:"max_turns"`
	Ephemeral        bool             `yaml:"ephemeral"`
	Suggestions      bool             `yaml:"suggestions"`
	WalkerDepth      *int             `yaml:"walker_depth"`
}

type handoverEntry struct {
	ID   string `yaml:"id"`
	Wait bool   `yaml:"wait"`
}

// LoadManifest reads and parses the workflow.yaml (or .yml) manifest in dir.
func LoadManifest(dir string) (Manifest, error) {
	path, err := findManifestFile(dir)
	if err != nil {
		return Manifest{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.Wrapf(err, "read workflow manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, errors.Wrapf(err, "parse workflow manifest %s", path)
	}
	if len(m.Agents) == 0 {
		return Manifest{}, errors.Errorf("workflow manifest %s lists no agents", path)
	}
	return m, nil
}

func findManifestFile(dir string) (string, error) {
	for _, name := range []string{"workflow.yaml", "workflow.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Errorf("no workflow.yaml/workflow.yml found in %s", dir)
}

// toAgent converts a parsed frontmatter plus the loaded prompt template
// names into a forgetype.Agent, applying spec.md §3's required-field
// validation.
func (fm agentFrontmatter) toAgent(systemTmpl, userTmpl string) (forgetype.Agent, error) {
	if fm.ID == "" {
		return forgetype.Agent{}, errors.Wrap(forgetype.ErrAgentUndefined, "agent id is required")
	}
	if fm.Description == "" {
		return forgetype.Agent{}, errors.Wrapf(forgetype.ErrMissingAgentDescription, "agent %s", fm.ID)
	}
	if fm.Model == "" {
		return forgetype.Agent{}, errors.Wrapf(forgetype.ErrMissingModel, "agent %s", fm.ID)
	}

	maxTurns := fm.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 25
	}

	handovers := make([]forgetype.Handover, 0, len(fm.Handovers))
	for _, h := range fm.Handovers {
		handovers = append(handovers, forgetype.Handover{AgentID: h.ID, Wait: h.Wait})
	}

	return forgetype.Agent{
		ID:               fm.ID,
		Description:      fm.Description,
		ModelID:          fm.Model,
		SystemPromptTmpl: systemTmpl,
		UserPromptTmpl:   userTmpl,
		SubscribedEvents: fm.SubscribedEvents,
		ToolNames:        fm.Tools,
		Handovers:        handovers,
		MaxTurns:         maxTurns,
		Ephemeral:        fm.Ephemeral,
		Suggestions:      fm.Suggestions,
		WalkerDepth:      fm.WalkerDepth,
	}, nil
}

// agentFileCandidates returns the possible on-disk filenames for an agent
// named in a manifest's Agents list, mirroring pkg/agents/agent.go's
// findAgentFile dual-lookup (".md" suffix, or the bare name).
func agentFileCandidates(dir, name string) []string {
	base := strings.TrimSuffix(name, ".md")
	return []string{
		filepath.Join(dir, base+".md"),
		filepath.Join(dir, base),
	}
}
