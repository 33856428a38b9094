// Package orchestrator runs the provisioning pipeline, ordered cleanup,
// and the deployment service operations on top of a provider adapter
// and the deployment store.
package orchestrator

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// EventType identifies a lifecycle or resource event.
type EventType string

const (
	// Deployment lifecycle events, consumed by the notification/audit
	// collaborator.
	EventProvisioningStarted  EventType = "provisioning_started"
	EventStepCompleted        EventType = "step_completed"
	EventDeploymentActive     EventType = "deployment_active"
	EventDeploymentFailed     EventType = "deployment_failed"
	EventDeploymentTerminated EventType = "deployment_terminated"

	// Resource-level events.
	EventResourceCreated      EventType = "resource.created"
	EventResourceDeleted      EventType = "resource.deleted"
	EventResourceDeleteFailed EventType = "resource.delete_failed"
	EventDegradedFallback     EventType = "degraded_fallback"
)

// Event is a structured record of something the orchestrator did.
type Event struct {
	Type         EventType
	DeploymentID string
	Step         string
	Resource     string
	Message      string
	Timestamp    time.Time
	Fields       map[string]string
}

// Observer receives orchestrator events. It doubles as the
// notification/audit sink: implementations may forward events to an
// external collaborator.
type Observer interface {
	Event(event Event)
}

// LogObserver implements Observer on the standard log package.
type LogObserver struct{}

// NewLogObserver creates a console observer.
func NewLogObserver() *LogObserver {
	return &LogObserver{}
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

func formatEvent(event Event) string {
	var parts []string

	parts = append(parts, string(event.Type))
	if event.DeploymentID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.DeploymentID))
	}
	if event.Step != "" {
		parts = append(parts, fmt.Sprintf("step=%s", event.Step))
	}
	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		var fieldParts []string
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// NullObserver drops every event.
type NullObserver struct{}

// Event implements Observer.
func (NullObserver) Event(Event) {}
