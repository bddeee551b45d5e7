package merkle

import "encoding/json"

// Event kinds recorded in the ledger.
const (
	KindMessage    = "message"
	KindWizardStep = "wizard_step"
	KindSubmission = "submission"
)

// Event is the content stored in every ledger node. A chat turn is a chain of
// message events; wizard and submission events chain per case.
type Event struct {
	Kind     string         `json:"kind"`
	Case     string         `json:"case,omitempty"`
	Role     string         `json:"role,omitempty"`
	Text     string         `json:"text,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// EventOf decodes a node's content into an Event. Content read back from a
// storer is generic JSON, so it is re-encoded rather than type-asserted.
func EventOf(n *Node) (Event, bool) {
	if ev, ok := n.Content.(Event); ok {
		return ev, true
	}

	raw, err := json.Marshal(n.Content)
	if err != nil {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Kind == "" {
		return Event{}, false
	}
	return ev, true
}
