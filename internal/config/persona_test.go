package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePersonas(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPersonaRegistry_Load(t *testing.T) {
	path := writePersonas(t, `
personas:
  secure:
    tone: "谨慎行事"
    default_fraction: 0.2
  Aggressive:
    tone: "大胆出击"
    lookback: 30
`)
	r, err := NewPersonaRegistry(path)
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Personas, 2)

	p := r.Persona("secure")
	assert.Equal(t, "谨慎行事", p.Tone)
	assert.Equal(t, 0.2, p.DefaultFraction)
	assert.Equal(t, 60, p.Lookback)
	assert.Equal(t, 1, p.DecisionIntervalMultiple)

	// 名称归一化为小写
	p = r.Persona("AGGRESSIVE")
	assert.Equal(t, "大胆出击", p.Tone)
	assert.Equal(t, 30, p.Lookback)
	// 缺省比例取内置兜底（aggressive 满仓）
	assert.Equal(t, 1.0, p.DefaultFraction)
}

func TestPersonaRegistry_FallbackForUnknown(t *testing.T) {
	path := writePersonas(t, `
personas:
  secure:
    tone: "谨慎行事"
`)
	r, err := NewPersonaRegistry(path)
	require.NoError(t, err)

	p := r.Persona("moderate")
	assert.Equal(t, "moderate", p.Name)
	assert.Equal(t, 0.5, p.DefaultFraction)
	assert.NotEmpty(t, p.Tone)
}

func TestPersonaRegistry_SchemaRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing tone", "personas:\n  x:\n    default_fraction: 0.5\n"},
		{"fraction above one", "personas:\n  x:\n    tone: t\n    default_fraction: 1.5\n"},
		{"negative lookback", "personas:\n  x:\n    tone: t\n    lookback: -3\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePersonas(t, tc.content)
			_, err := NewPersonaRegistry(path)
			assert.Error(t, err)
		})
	}
}

func TestFallbackPersona(t *testing.T) {
	assert.Equal(t, 1.0, fallbackPersona("aggressive").DefaultFraction)
	assert.Equal(t, 0.3, fallbackPersona("secure").DefaultFraction)
	assert.Equal(t, 0.5, fallbackPersona("whatever").DefaultFraction)
	assert.Equal(t, "moderate", fallbackPersona("whatever").Name)
}
