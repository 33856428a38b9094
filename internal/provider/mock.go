package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter is the sandbox/test variant of Adapter. It fabricates
// handles, records every call in order, and lets tests override any
// operation through function fields. It is selected only by explicit
// configuration.
type MockAdapter struct {
	mu      sync.Mutex
	calls   []MockCall
	deleted []Handle

	CreateNetworkFunc        func(ctx context.Context, spec NetworkSpec) (Handle, error)
	CreateStorageFunc        func(ctx context.Context, spec StorageSpec) (Handle, error)
	CreateComputeServiceFunc func(ctx context.Context, spec ComputeSpec) (ComputeResult, error)
	SetPublicAccessFunc      func(ctx context.Context, handle Handle) error
	GetStatusFunc            func(ctx context.Context, handle Handle) (ServiceStatus, error)
	DeleteComputeServiceFunc func(ctx context.Context, handle Handle) error
	DeleteStorageFunc        func(ctx context.Context, handle Handle) error
	DeleteNetworkFunc        func(ctx context.Context, handle Handle) error
}

// MockCall records one adapter invocation.
type MockCall struct {
	Op     string
	Handle Handle
}

// NewMock creates a mock adapter whose operations all succeed.
func NewMock() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Name() ID { return Mock }

func (m *MockAdapter) record(op string, handle Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Op: op, Handle: handle})
}

// Calls returns a snapshot of all recorded invocations in order.
func (m *MockAdapter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Deleted returns the handles passed to delete operations, in call
// order.
func (m *MockAdapter) Deleted() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, len(m.deleted))
	copy(out, m.deleted)
	return out
}

func (m *MockAdapter) CreateNetwork(ctx context.Context, spec NetworkSpec) (Handle, error) {
	if m.CreateNetworkFunc != nil {
		h, err := m.CreateNetworkFunc(ctx, spec)
		m.record("CreateNetwork", h)
		return h, err
	}
	h := Handle{Kind: KindNetwork, ID: "mock-net-" + spec.Name}
	m.record("CreateNetwork", h)
	return h, nil
}

func (m *MockAdapter) CreateStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	if m.CreateStorageFunc != nil {
		h, err := m.CreateStorageFunc(ctx, spec)
		m.record("CreateStorage", h)
		return h, err
	}
	h := Handle{Kind: KindStorage, ID: "mock-store-" + spec.Name}
	m.record("CreateStorage", h)
	return h, nil
}

func (m *MockAdapter) CreateComputeService(ctx context.Context, spec ComputeSpec) (ComputeResult, error) {
	if m.CreateComputeServiceFunc != nil {
		res, err := m.CreateComputeServiceFunc(ctx, spec)
		m.record("CreateComputeService", res.Handle)
		return res, err
	}
	h := Handle{Kind: KindCompute, ID: "mock-svc-" + spec.Name}
	m.record("CreateComputeService", h)
	return ComputeResult{
		Handle: h,
		URL:    fmt.Sprintf("http://%s.mock.local:%d", spec.Name, spec.Port),
	}, nil
}

func (m *MockAdapter) SetPublicAccess(ctx context.Context, handle Handle) error {
	m.record("SetPublicAccess", handle)
	if m.SetPublicAccessFunc != nil {
		return m.SetPublicAccessFunc(ctx, handle)
	}
	return nil
}

func (m *MockAdapter) GetStatus(ctx context.Context, handle Handle) (ServiceStatus, error) {
	m.record("GetStatus", handle)
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, handle)
	}
	return StatusReady, nil
}

func (m *MockAdapter) DeleteComputeService(ctx context.Context, handle Handle) error {
	m.record("DeleteComputeService", handle)
	m.mu.Lock()
	m.deleted = append(m.deleted, handle)
	m.mu.Unlock()
	if m.DeleteComputeServiceFunc != nil {
		return m.DeleteComputeServiceFunc(ctx, handle)
	}
	return nil
}

func (m *MockAdapter) DeleteStorage(ctx context.Context, handle Handle) error {
	m.record("DeleteStorage", handle)
	m.mu.Lock()
	m.deleted = append(m.deleted, handle)
	m.mu.Unlock()
	if m.DeleteStorageFunc != nil {
		return m.DeleteStorageFunc(ctx, handle)
	}
	return nil
}

func (m *MockAdapter) DeleteNetwork(ctx context.Context, handle Handle) error {
	m.record("DeleteNetwork", handle)
	m.mu.Lock()
	m.deleted = append(m.deleted, handle)
	m.mu.Unlock()
	if m.DeleteNetworkFunc != nil {
		return m.DeleteNetworkFunc(ctx, handle)
	}
	return nil
}
