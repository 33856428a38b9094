package deployment

import "fmt"

// Status is the deployment lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusTerminating  Status = "terminating"
	StatusTerminated   Status = "terminated"
)

// ErrInvalidTransition wraps every rejected status transition.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// transitions is the full set of allowed lifecycle edges. A restart is
// modeled as a new deployment, never a resurrection: nothing leads out
// of terminated or error back to provisioning.
var transitions = map[Status][]Status{
	StatusPending:      {StatusProvisioning},
	StatusProvisioning: {StatusActive, StatusError, StatusTerminating},
	StatusActive:       {StatusTerminating},
	StatusTerminating:  {StatusTerminated},
}

// CanTransition reports whether the edge from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transitions lead out of s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition moves the deployment to next, rejecting any edge not in
// the lifecycle table.
func (d *Deployment) Transition(next Status) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (deployment %s)",
			ErrInvalidTransition, d.Status, next, d.ID)
	}
	d.Status = next
	return nil
}
