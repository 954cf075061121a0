package app

import (
	"context"
	"fmt"
	"os"
	"time"

	simcfg "stocksim/internal/config"
	"stocksim/internal/logger"
	"stocksim/internal/market"
	"stocksim/internal/notify"
	"stocksim/internal/oracle"
	"stocksim/internal/portfolio"
	"stocksim/internal/sim"
	simhttp "stocksim/internal/transport/http"
)

// AppBuilder 负责把配置装配成可运行的 App。
type AppBuilder struct {
	cfg *simcfg.Config

	notifierFn func(simcfg.TelegramConfig) sim.Notifier
	personasFn func(string) (*simcfg.PersonaRegistry, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *simcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		notifierFn: buildNotifier,
		personasFn: loadPersonaRegistry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func loadPersonaRegistry(path string) (*simcfg.PersonaRegistry, error) {
	if _, err := os.Stat(path); err != nil {
		// persona 文件缺失不是致命问题，engine 有内置兜底档位
		logger.Warnf("[app] persona 配置 %s 不可用: %v，使用内置档位", path, err)
		return nil, nil
	}
	return simcfg.NewPersonaRegistry(path)
}

func buildNotifier(tg simcfg.TelegramConfig) sim.Notifier {
	if !tg.Enabled {
		return nil
	}
	return notify.NewTelegram(tg.BotToken, tg.ChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	barStore, err := market.NewStore(cfg.Market.BarsDir)
	if err != nil {
		return nil, fmt.Errorf("初始化行情存储失败: %w", err)
	}
	fetchSvc, err := market.NewService(market.ServiceConfig{
		Store: barStore,
		Sources: map[string]market.BarSource{
			"polygon": market.NewPolygonSource(cfg.Market.Polygon.BaseURL, cfg.Market.Polygon.APIKey),
			"binance": market.NewBinanceSource(cfg.Market.Binance.BaseURL),
		},
		DefaultSource:   cfg.Sim.Source,
		RateLimitPerMin: cfg.Market.RateLimitPerMin,
		MaxConcurrent:   cfg.Market.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化行情服务失败: %w", err)
	}
	loader := market.NewSeriesLoader(barStore, fetchSvc)
	proxy := market.NewProxy(
		market.ProxyEndpoint{BaseURL: cfg.Market.Quote.BaseURL, APIKey: cfg.Market.Quote.APIKey},
		market.ProxyEndpoint{BaseURL: cfg.Market.News.BaseURL, APIKey: cfg.Market.News.APIKey},
		time.Duration(cfg.Market.CacheTTLSeconds)*time.Second,
	)

	results, err := sim.NewResultStore(cfg.Sim.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	personas, err := b.personasFn(cfg.Personas.Path)
	if err != nil {
		results.Close()
		barStore.Close()
		return nil, fmt.Errorf("加载 persona 失败: %w", err)
	}
	factory := buildDeciderFactory(cfg.Oracle, personas)

	simulator, err := sim.NewSimulator(sim.SimulatorConfig{
		Loader:   loader,
		Results:  results,
		Factory:  factory,
		Tuning:   buildStrategyTuning(personas),
		Notifier: b.notifierFn(cfg.Notify.Telegram),
		Defaults: sim.Defaults{
			InitialCash:      cfg.Sim.InitialCash,
			ExecPrice:        cfg.Sim.ExecPrice,
			DecisionInterval: cfg.Sim.DecisionInterval,
			Fee:              cfg.Sim.Fee,
			Source:           cfg.Sim.Source,
			Strategy:         cfg.Sim.Strategy,
		},
		MaxConcurrent: cfg.Sim.MaxConcurrent,
	})
	if err != nil {
		results.Close()
		barStore.Close()
		return nil, fmt.Errorf("初始化模拟器失败: %w", err)
	}

	pfStore, err := portfolio.NewStore(cfg.Portfolio.DBPath)
	if err != nil {
		results.Close()
		barStore.Close()
		return nil, fmt.Errorf("初始化组合存储失败: %w", err)
	}
	pfSvc := portfolio.NewService(pfStore)

	server, err := simhttp.NewServer(simhttp.ServerConfig{
		Addr:          cfg.App.HTTPAddr,
		Market:        fetchSvc,
		Proxy:         proxy,
		Simulator:     simulator,
		Results:       results,
		Portfolio:     pfSvc,
		PortfolioCash: cfg.Portfolio.InitialCash,
		ChartDir:      cfg.Visual.OutputDir,
		ChartSnapshot: cfg.Visual.SnapshotEnabled,
	})
	if err != nil {
		results.Close()
		barStore.Close()
		pfStore.Close()
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	logger.Infof("✓ 依赖装配完成（http=%s，bars=%s，results=%s）",
		cfg.App.HTTPAddr, cfg.Market.BarsDir, cfg.Sim.ResultsDir)
	return &App{
		cfg:       cfg,
		server:    server,
		fetchSvc:  fetchSvc,
		simulator: simulator,
		results:   results,
		barStore:  barStore,
		pfStore:   pfStore,
		personas:  personas,
	}, nil
}

// buildStrategyTuning 把 persona 的回看窗口与问询间隔倍数接入模拟器。
func buildStrategyTuning(personas *simcfg.PersonaRegistry) sim.TuningFunc {
	if personas == nil {
		return nil
	}
	return func(strategy string) sim.StrategyTuning {
		p := personas.Persona(strategy)
		return sim.StrategyTuning{
			Lookback:                 p.Lookback,
			DecisionIntervalMultiple: p.DecisionIntervalMultiple,
		}
	}
}

// buildDeciderFactory 把 provider 配置与 persona 档位组合成决策器工厂。
func buildDeciderFactory(oc simcfg.OracleConfig, personas *simcfg.PersonaRegistry) sim.DeciderFactory {
	return func(strategy, providerID string) (sim.Oracle, error) {
		pc, ok := oc.Provider(providerID)
		if !ok {
			return nil, fmt.Errorf("未配置任何可用的 oracle provider (id=%q)", providerID)
		}
		timeout := time.Duration(pc.TimeoutSeconds) * time.Second
		var client oracle.Provider
		switch pc.Kind {
		case "gemini":
			client = &oracle.GeminiClient{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Model:   pc.Model,
				Timeout: timeout,
			}
		default:
			client = &oracle.OpenAIChatClient{
				ProviderID: pc.ID,
				BaseURL:    pc.BaseURL,
				APIKey:     pc.APIKey,
				Model:      pc.Model,
				Timeout:    timeout,
				MaxRetries: pc.MaxRetries,
			}
		}
		opts := []oracle.EngineOption{
			oracle.WithPersona(strategy),
			oracle.WithCallTimeout(timeout),
		}
		if personas != nil {
			p := personas.Persona(strategy)
			opts = append(opts, oracle.WithTone(p.Tone), oracle.WithDefaultFraction(p.DefaultFraction))
		}
		return oracle.NewEngine(client, opts...), nil
	}
}
