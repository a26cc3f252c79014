package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

func registerFake(t *testing.T, dbType string, family models.Family) {
	t.Helper()
	Register(Registration{
		Info: Info{Type: dbType, DisplayName: dbType, Family: family, Dialect: "test"},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error) {
			return &MockConnector{}, nil
		},
	})
}

func TestRegisterAndLookup(t *testing.T) {
	registerFake(t, "fakedb-lookup", models.FamilyRelational)

	reg, ok := Lookup("fakedb-lookup")
	require.True(t, ok)
	assert.Equal(t, "fakedb-lookup", reg.Info.Type)
	assert.True(t, IsRegistered("fakedb-lookup"))

	_, ok = Lookup("never-registered")
	assert.False(t, ok)
	assert.False(t, IsRegistered("never-registered"))
}

func TestRegisteredTypesSorted(t *testing.T) {
	registerFake(t, "fakedb-zz", models.FamilyGraph)
	registerFake(t, "fakedb-aa", models.FamilyDocument)

	infos := RegisteredTypes()
	for i := 1; i < len(infos); i++ {
		assert.LessOrEqual(t, infos[i-1].Type, infos[i].Type)
	}
}

func TestFactoryConnectUnknownType(t *testing.T) {
	factory := NewConnectorFactory()
	_, err := factory.Connect(context.Background(), &models.ConnectionDescriptor{
		Type:   "nonexistent",
		Params: map[string]string{"host": "h"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestFactoryProbeClosesConnector(t *testing.T) {
	mock := &MockConnector{}
	Register(Registration{
		Info: Info{Type: "fakedb-probe", Family: models.FamilyRelational},
		Connect: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error) {
			return mock, nil
		},
	})

	factory := NewConnectorFactory()
	err := factory.Probe(context.Background(), &models.ConnectionDescriptor{
		Type:   "fakedb-probe",
		Params: map[string]string{"host": "h"},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), mock.TestCalls.Load())
	assert.Equal(t, int64(1), mock.CloseCalls.Load(), "probe must not leave a handle open")
}

func TestFactoryResolve(t *testing.T) {
	registerFake(t, "fakedb-resolve", models.FamilyTimeSeries)

	factory := NewConnectorFactory()
	info, err := factory.Resolve("fakedb-resolve")
	require.NoError(t, err)
	assert.Equal(t, models.FamilyTimeSeries, info.Family)

	_, err = factory.Resolve("nonexistent")
	assert.Error(t, err)
}
