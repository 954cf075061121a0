package config

import "strings"

// Config 是 stocksim 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Oracle    OracleConfig    `toml:"oracle"`
	Sim       SimConfig       `toml:"sim"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Notify    NotifyConfig    `toml:"notify"`
	Personas  PersonasConfig  `toml:"personas"`
	Visual    VisualConfig    `toml:"visual"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	HTTPAddr      string `toml:"http_addr"`
	LogPath       string `toml:"log_path"`
	OracleLogPath string `toml:"oracle_log_path"`
	OracleDump    bool   `toml:"oracle_dump_payload"`
	DataDir       string `toml:"data_dir"`
}

type MarketConfig struct {
	BarsDir         string  `toml:"bars_dir"`
	RateLimitPerMin int     `toml:"rate_limit_per_min"`
	MaxConcurrent   int     `toml:"max_concurrent_fetch"`
	CacheTTLSeconds int     `toml:"cache_ttl_seconds"`
	Polygon         APIConf `toml:"polygon"`
	Binance         APIConf `toml:"binance"`
	Quote           APIConf `toml:"quote"`
	News            APIConf `toml:"news"`
}

// APIConf 单个外部行情/资讯端点。
type APIConf struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

type OracleConfig struct {
	DefaultProvider string           `toml:"default_provider"`
	TimeoutSeconds  int              `toml:"timeout_seconds"`
	Providers       []ProviderConfig `toml:"providers"`
}

type ProviderConfig struct {
	ID             string `toml:"id"`
	Kind           string `toml:"kind"` // openai|gemini
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// Provider 按 id 查找模型配置，找不到时回落到 default_provider。
func (o OracleConfig) Provider(id string) (ProviderConfig, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = o.DefaultProvider
	}
	for _, p := range o.Providers {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

type SimConfig struct {
	ResultsDir       string  `toml:"results_dir"`
	InitialCash      float64 `toml:"initial_cash"`
	ExecPrice        string  `toml:"exec_price"`
	DecisionInterval int     `toml:"decision_interval"`
	Fee              float64 `toml:"fee"`
	Source           string  `toml:"source"`
	Strategy         string  `toml:"strategy"`
	MaxConcurrent    int     `toml:"max_concurrent"`
}

type PortfolioConfig struct {
	DBPath      string  `toml:"db_path"`
	InitialCash float64 `toml:"initial_cash"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type PersonasConfig struct {
	Path string `toml:"path"`
}

type VisualConfig struct {
	OutputDir       string `toml:"output_dir"`
	SnapshotEnabled bool   `toml:"snapshot_enabled"`
	ChromePath      string `toml:"chrome_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
