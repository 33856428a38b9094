package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	path := writeRequestFile(t, `
organization_id: org-1
name: llama-70b
provider: gcp
region: us-central1
model_size: large
`)

	assert.NoError(t, Cost(context.Background(), path, false, false))
	assert.NoError(t, Cost(context.Background(), path, false, true))
	assert.NoError(t, Cost(context.Background(), path, true, false))
}

func TestCost_MissingFile(t *testing.T) {
	err := Cost(context.Background(), "absent.yaml", false, false)
	assert.Error(t, err)
}
