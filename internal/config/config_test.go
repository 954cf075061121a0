package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  env: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "data/bars", cfg.Market.BarsDir)
	assert.Equal(t, 30, cfg.Market.RateLimitPerMin)
	assert.Equal(t, "https://api.polygon.io", cfg.Market.Polygon.BaseURL)
	assert.Equal(t, 90, cfg.Oracle.TimeoutSeconds)
	assert.Equal(t, 10000.0, cfg.Sim.InitialCash)
	assert.Equal(t, "open", cfg.Sim.ExecPrice)
	assert.Equal(t, 10, cfg.Sim.DecisionInterval)
	assert.Equal(t, "moderate", cfg.Sim.Strategy)
	assert.Equal(t, "configs/personas.yaml", cfg.Personas.Path)
}

func TestLoad_ExplicitZeroRespected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
sim:
  decision_interval: 1
  fee: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Sim.DecisionInterval)
	assert.Equal(t, 0.0, cfg.Sim.Fee)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  http_addr: ":9980"
sim:
  decision_interval: 5
`)
	t.Setenv("STOCKSIM_APP__HTTP_ADDR", ":7777")
	t.Setenv("STOCKSIM_SIM__DECISION_INTERVAL", "3")
	t.Setenv("STOCKSIM_SIM__FEE", "1.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	// 环境变量压过文件，也压过缺省回填
	assert.Equal(t, ":7777", cfg.App.HTTPAddr)
	assert.Equal(t, 3, cfg.Sim.DecisionInterval)
	assert.Equal(t, 1.5, cfg.Sim.Fee)
	// 没被覆盖的键照常走缺省
	assert.Equal(t, "info", cfg.App.LogLevel)
}

func TestLoad_Providers(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
oracle:
  providers:
    - id: deepseek
      model: deepseek-chat
    - id: gem
      kind: gemini
      model: gemini-2.0-flash
      timeout_seconds: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// default_provider 缺省取第一个
	assert.Equal(t, "deepseek", cfg.Oracle.DefaultProvider)

	p, ok := cfg.Oracle.Provider("deepseek")
	require.True(t, ok)
	assert.Equal(t, "openai", p.Kind)
	assert.Equal(t, 90, p.TimeoutSeconds)

	p, ok = cfg.Oracle.Provider("gem")
	require.True(t, ok)
	assert.Equal(t, "gemini", p.Kind)
	assert.Equal(t, 30, p.TimeoutSeconds)

	// 空 id 回落到默认 provider
	p, ok = cfg.Oracle.Provider("")
	require.True(t, ok)
	assert.Equal(t, "deepseek", p.ID)

	_, ok = cfg.Oracle.Provider("nope")
	assert.False(t, ok)
}

func TestLoad_Include(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
sim:
  initial_cash: 5000
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
sim:
  initial_cash: 20000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	// 主文件后合并，覆盖 include
	assert.Equal(t, 20000.0, cfg.Sim.InitialCash)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"bad log level", "app:\n  log_level: verbose\n", "log_level"},
		{"bad exec price", "sim:\n  exec_price: vwap\n", "exec_price"},
		{"bad strategy", "sim:\n  strategy: yolo\n", "strategy"},
		{"bad source", "sim:\n  source: yahoo\n", "source"},
		{"negative fee", "sim:\n  fee: -1\n", "fee"},
		{"provider missing model", "oracle:\n  providers:\n    - id: x\n", "model"},
		{"provider bad kind", "oracle:\n  providers:\n    - id: x\n      kind: grpc\n      model: m\n", "kind"},
		{"duplicate provider", "oracle:\n  providers:\n    - id: x\n      model: m\n    - id: X\n      model: m\n", "duplicate"},
		{"unknown default provider", "oracle:\n  default_provider: ghost\n", "default_provider"},
		{"telegram incomplete", "notify:\n  telegram:\n    enabled: true\n", "telegram"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", tc.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
