package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9980"
	defaultAppLogPath       = "data/logs/stocksim.log"
	defaultAppOracleLogPath = "data/logs/stocksim-oracle.log"
	defaultAppDataDir       = "data"
	defaultBarsDir          = "data/bars"
	defaultRateLimitPerMin  = 30
	defaultMaxFetch         = 2
	defaultCacheTTLSeconds  = 60
	defaultPolygonBase      = "https://api.polygon.io"
	defaultBinanceBase      = "https://api.binance.com"
	defaultOracleTimeout    = 90
	defaultResultsDir       = "data/sim"
	defaultInitialCash      = 10000
	defaultExecPrice        = "open"
	defaultDecisionInterval = 10
	defaultSimSource        = "polygon"
	defaultSimStrategy      = "moderate"
	defaultSimConcurrent    = 1
	defaultPortfolioDB      = "data/portfolio/portfolio.db"
	defaultPersonasPath     = "configs/personas.yaml"
	defaultVisualDir        = "data/charts"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Oracle.applyDefaults(keys)
	c.Sim.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Personas.applyDefaults(keys)
	c.Visual.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.oracle_log_path", &a.OracleLogPath, defaultAppOracleLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.bars_dir", &m.BarsDir, defaultBarsDir),
		intFieldDefault("market.rate_limit_per_min", &m.RateLimitPerMin, defaultRateLimitPerMin),
		intFieldDefault("market.max_concurrent_fetch", &m.MaxConcurrent, defaultMaxFetch),
		intFieldDefault("market.cache_ttl_seconds", &m.CacheTTLSeconds, defaultCacheTTLSeconds),
		stringFieldDefault("market.polygon.base_url", &m.Polygon.BaseURL, defaultPolygonBase),
		stringFieldDefault("market.binance.base_url", &m.Binance.BaseURL, defaultBinanceBase),
	)
}

func (o *OracleConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("oracle.timeout_seconds", &o.TimeoutSeconds, defaultOracleTimeout),
	)
	if strings.TrimSpace(o.DefaultProvider) == "" && len(o.Providers) > 0 {
		o.DefaultProvider = o.Providers[0].ID
	}
	for i := range o.Providers {
		p := &o.Providers[i]
		if strings.TrimSpace(p.Kind) == "" {
			p.Kind = "openai"
		}
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = o.TimeoutSeconds
		}
	}
}

func (s *SimConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sim.results_dir", &s.ResultsDir, defaultResultsDir),
		fieldDefault{
			key:   "sim.initial_cash",
			need:  func() bool { return s.InitialCash <= 0 },
			apply: func() { s.InitialCash = defaultInitialCash },
		},
		stringFieldDefault("sim.exec_price", &s.ExecPrice, defaultExecPrice),
		intFieldDefault("sim.decision_interval", &s.DecisionInterval, defaultDecisionInterval),
		stringFieldDefault("sim.source", &s.Source, defaultSimSource),
		stringFieldDefault("sim.strategy", &s.Strategy, defaultSimStrategy),
		intFieldDefault("sim.max_concurrent", &s.MaxConcurrent, defaultSimConcurrent),
	)
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("portfolio.db_path", &p.DBPath, defaultPortfolioDB),
		fieldDefault{
			key:   "portfolio.initial_cash",
			need:  func() bool { return p.InitialCash <= 0 },
			apply: func() { p.InitialCash = defaultInitialCash },
		},
	)
}

func (p *PersonasConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("personas.path", &p.Path, defaultPersonasPath),
	)
}

func (v *VisualConfig) applyDefaults(keys keySet) {
	if v == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("visual.output_dir", &v.OutputDir, defaultVisualDir),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
