package pipeline

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const eventSubject = "catalog.pipeline"

type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// StageEvent is published to JetStream at every stage transition so that
// dashboards and downstream consumers can follow a run without polling.
type StageEvent struct {
	RunID  string         `json:"run_id"`
	Stage  string         `json:"stage"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}

// Events wraps an optional JetStream publisher. A nil Events (or one built
// around a nil publisher) drops everything silently, which keeps CLI runs
// usable without a broker.
type Events struct {
	js JetStreamPublisher
}

func NewEvents(js JetStreamPublisher) *Events {
	return &Events{js: js}
}

func (e *Events) Publish(runID, stage, status string, detail map[string]any) {
	if e == nil || e.js == nil {
		return
	}

	data, err := json.Marshal(StageEvent{
		RunID:  runID,
		Stage:  stage,
		Status: status,
		Detail: detail,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if _, err := e.js.Publish(eventSubject, data); err != nil {
		log.Printf("[Pipeline] Event publish failed (%s/%s): %v", stage, status, err)
	}
}
