package workflow

import (
	"strings"
	"sync"
	"text/template"

	"github.com/pkg/errors"
)

// Renderer implements orchestrator.TemplateRenderer over the prompt
// templates parsed out of a Workflow's agent files, following the same
// "parse once at load time, execute by name" shape as pkg/sysprompt.Renderer
// — generalized here to a dynamic, per-workflow template set rather than a
// fixed embedded filesystem.
type Renderer struct {
	mu        sync.RWMutex
	templates *template.Template
}

// NewRenderer constructs an empty Renderer ready for Register calls.
func NewRenderer() *Renderer {
	return &Renderer{templates: template.New("workflow")}
}

// Register parses body under name, making it renderable via Render. Re-
// registering an existing name replaces its template body.
func (r *Renderer) Register(name, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.templates.New(name).Parse(body)
	if err != nil {
		return errors.Wrapf(err, "parse template %s", name)
	}
	return nil
}

// Render executes the named template in strict mode: an undefined variable
// reference is a render error, not silently empty output, matching
// text/template's Option("missingkey=error").
func (r *Renderer) Render(name string, promptContext any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl := r.templates.Lookup(name)
	if tmpl == nil {
		return "", errors.Errorf("template %s not found", name)
	}

	var buf strings.Builder
	if err := tmpl.Option("missingkey=error").Execute(&buf, promptContext); err != nil {
		return "", errors.Wrapf(err, "execute template %s", name)
	}
	return buf.String(), nil
}
