package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "lifecycle event",
			event: Event{Type: EventProvisioningStarted, DeploymentID: "dep-1", Message: "provisioning on aws in us-east-1"},
			want:  "provisioning_started [dep-1] provisioning on aws in us-east-1",
		},
		{
			name:  "step with resource",
			event: Event{Type: EventStepCompleted, DeploymentID: "dep-1", Step: "network", Resource: "network/vpc-1"},
			want:  "step_completed [dep-1] step=network resource=network/vpc-1",
		},
		{
			name:  "type only",
			event: Event{Type: EventDeploymentTerminated},
			want:  "deployment_terminated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.event))
		})
	}
}
