// Package forgetype holds the value objects exchanged between the
// conversation orchestrator's components: events, messages, tool calls, and
// the streamed chat response items handed back to a caller.
package forgetype

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var eventNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidEventName is returned by NewEvent when name fails the
// [A-Za-z0-9_.-]+ pattern required of event names.
var ErrInvalidEventName = errors.New("event name must match [A-Za-z0-9_.-]+")

// Attachment is a resolved attachment reference carried on an Event, e.g. a
// file the user dragged into the conversation. Resolution (reading the file,
// extracting its content) happens upstream of the core; the core only
// transports the result.
type Attachment struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content,omitempty"`
}

// Event is the unit of input to the orchestrator. Conventional names include
// "user_task_init", "user_task_update", "agent.<id>" for synthetic handover
// events, and "<tool_name>_complete" for tool completion broadcasts.
type Event struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Value       json.RawMessage `json:"value"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewEvent builds an Event with a fresh id and the current timestamp. value
// may be a plain string or any JSON-marshalable structured value.
func NewEvent(name string, value any) (Event, error) {
	if !eventNamePattern.MatchString(name) {
		return Event{}, errors.Wrapf(ErrInvalidEventName, "name %q", name)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Event{}, errors.Wrap(err, "marshal event value")
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Value:     raw,
		CreatedAt: time.Now(),
	}, nil
}

// ValueString returns Value as a plain string when it was constructed from
// one (the common case for user input), unquoting a JSON string literal.
func (e Event) ValueString() string {
	var s string
	if err := json.Unmarshal(e.Value, &s); err == nil {
		return s
	}
	return string(e.Value)
}
