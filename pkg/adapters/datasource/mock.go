package datasource

import (
	"context"
	"sync/atomic"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// MockConnector is a configurable fake for testing. Set the function
// fields to control behavior.
type MockConnector struct {
	TestFunc       func(ctx context.Context) error
	IntrospectFunc func(ctx context.Context) (*models.SchemaSnapshot, error)
	ExecuteFunc    func(ctx context.Context, query string) (*RawResult, error)
	CloseFunc      func() error

	TestCalls       atomic.Int64
	IntrospectCalls atomic.Int64
	ExecuteCalls    atomic.Int64
	CloseCalls      atomic.Int64
}

func (m *MockConnector) Test(ctx context.Context) error {
	m.TestCalls.Add(1)
	if m.TestFunc != nil {
		return m.TestFunc(ctx)
	}
	return nil
}

func (m *MockConnector) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	m.IntrospectCalls.Add(1)
	if m.IntrospectFunc != nil {
		return m.IntrospectFunc(ctx)
	}
	return &models.SchemaSnapshot{}, nil
}

func (m *MockConnector) Execute(ctx context.Context, query string) (*RawResult, error) {
	m.ExecuteCalls.Add(1)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, query)
	}
	return &RawResult{Rows: make([]map[string]any, 0)}, nil
}

func (m *MockConnector) Close() error {
	m.CloseCalls.Add(1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ Connector = (*MockConnector)(nil)

// MockFactory is a configurable ConnectorFactory fake.
type MockFactory struct {
	ConnectFunc func(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error)
	ProbeFunc   func(ctx context.Context, descriptor *models.ConnectionDescriptor) error
	ResolveFunc func(dbType string) (Info, error)
	Types       []Info
}

func (m *MockFactory) Connect(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, descriptor)
	}
	return &MockConnector{}, nil
}

func (m *MockFactory) Probe(ctx context.Context, descriptor *models.ConnectionDescriptor) error {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, descriptor)
	}
	return nil
}

func (m *MockFactory) Resolve(dbType string) (Info, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(dbType)
	}
	return Info{Type: dbType, Family: models.FamilyRelational, Dialect: "SQL"}, nil
}

func (m *MockFactory) ListTypes() []Info {
	return m.Types
}

var _ ConnectorFactory = (*MockFactory)(nil)
