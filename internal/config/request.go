package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modelgrid/modelgrid/internal/deployment"
)

// LoadRequest reads a deployment request from a YAML file, fills tier
// defaults, and validates it.
func LoadRequest(path string) (deployment.Request, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return deployment.Request{}, fmt.Errorf("failed to read request file: %w", err)
	}
	return ParseRequest(data)
}

// ParseRequest parses a YAML deployment request.
func ParseRequest(data []byte) (deployment.Request, error) {
	var req deployment.Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return deployment.Request{}, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return deployment.Request{}, fmt.Errorf("request validation failed: %w", err)
	}
	return req, nil
}
