package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/update"
)

// Control-plane events exchanged between the master and a worker.
const (
	EventMasterInit      = "masterInit"
	EventWorkerHandshake = "workerHandshake"
	EventMasterHandshake = "masterHandshake"
	EventModuleReady     = "moduleReady"
	EventAppReady        = "appReady"

	EventActivateUpdate       = "activateUpdate"
	EventMergeActiveUpdate    = "mergeActiveUpdate"
	EventRevertActiveUpdate   = "revertActiveUpdate"
	EventModuleUpdates        = "moduleUpdates"
	EventModuleUpdatesFailure = "moduleUpdatesFailure"
)

// Message is one control-plane packet. Data holds the event-specific
// payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes payload into a message for event. A nil payload yields
// a message without data.
func NewMessage(event string, payload any) (Message, error) {
	msg := Message{Event: event}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no payload", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Event, err)
	}
	return nil
}

// MasterInit is the first packet a worker receives.
type MasterInit struct {
	AppConfig    *config.Model   `json:"appConfig"`
	ModuleConfig map[string]any  `json:"moduleConfig"`
	Updates      []update.Update `json:"updates"`
	ActiveUpdate *update.Update  `json:"activeUpdate,omitempty"`
}

// WorkerHandshake reports the worker's declared dependencies and actions.
type WorkerHandshake struct {
	Dependencies []string `json:"dependencies"`
	// Declared is false when the module declared no dependency list.
	Declared bool     `json:"declared"`
	Actions  []string `json:"actions"`
}

// MasterHandshake carries the worker's resolved position in the graph.
type MasterHandshake struct {
	Dependencies       []string            `json:"dependencies"`
	TargetDependencies []string            `json:"targetDependencies"`
	Dependents         []string            `json:"dependents"`
	DependentMap       map[string][]string `json:"dependentMap"`
}

// UpdatePacket carries an update in either direction.
type UpdatePacket struct {
	Update update.Update `json:"update"`
}

// ModuleUpdates lists the module's pending and active updates.
type ModuleUpdates struct {
	Updates      []update.Update `json:"updates"`
	ActiveUpdate *update.Update  `json:"activeUpdate,omitempty"`
}

// Failure reports an error for a request that cannot be served.
type Failure struct {
	Error string `json:"error"`
}
