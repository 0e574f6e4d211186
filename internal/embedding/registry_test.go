package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name    string
	dim     int
	healthy bool
	calls   int
}

func (m *fakeModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(m.dim)}
	}
	return out, nil
}
func (m *fakeModel) EncodeSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := m.Encode(ctx, []string{text})
	return out[0], err
}
func (m *fakeModel) Name() string     { return m.name }
func (m *fakeModel) Dimensions() int  { return m.dim }
func (m *fakeModel) MaxTokens() int   { return 8192 }
func (m *fakeModel) Provider() string { return "fake" }
func (m *fakeModel) Health(ctx context.Context) error {
	if m.healthy {
		return nil
	}
	return errors.New("unhealthy")
}
func (m *fakeModel) Close() error { return nil }

func TestRegistryUsesPrimaryWhenHealthy(t *testing.T) {
	reg := NewRegistry(RegistryConfig{FallbackChain: []string{"backup"}})
	primary := &fakeModel{name: "primary", dim: 384, healthy: true}
	reg.Register("primary", primary)

	out, err := reg.Encode(context.Background(), "primary", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, float32(384), out[0][0])
	assert.Equal(t, 1, primary.calls)
}

func TestRegistryFallsBackWhenPrimaryUnhealthy(t *testing.T) {
	reg := NewRegistry(RegistryConfig{FallbackChain: []string{"backup"}})
	primary := &fakeModel{name: "primary", dim: 384, healthy: false}
	backup := &fakeModel{name: "backup", dim: 512, healthy: true}
	reg.Register("primary", primary)
	reg.Register("backup", backup)

	out, err := reg.Encode(context.Background(), "primary", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, float32(512), out[0][0])
	assert.Equal(t, 1, backup.calls)
}

func TestRegistryFallsThroughToPrimaryWhenNoHealthyFallback(t *testing.T) {
	reg := NewRegistry(RegistryConfig{FallbackChain: []string{"backup"}})
	primary := &fakeModel{name: "primary", dim: 384, healthy: false}
	backup := &fakeModel{name: "backup", dim: 512, healthy: false}
	reg.Register("primary", primary)
	reg.Register("backup", backup)

	out, err := reg.Encode(context.Background(), "primary", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, float32(384), out[0][0])
}

func TestRegistryUnknownModel(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	_, err := reg.Encode(context.Background(), "missing", []string{"a"})
	require.Error(t, err)
}
