package app

import (
	"context"
	"fmt"

	simcfg "stocksim/internal/config"
	"stocksim/internal/logger"
	"stocksim/internal/market"
	"stocksim/internal/portfolio"
	"stocksim/internal/sim"
	simhttp "stocksim/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg       *simcfg.Config
	server    *simhttp.Server
	fetchSvc  *market.Service
	simulator *sim.Simulator
	results   *sim.ResultStore
	barStore  *market.Store
	pfStore   *portfolio.Store
	personas  *simcfg.PersonaRegistry
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *simcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务并阻塞，直到 ctx 结束或服务失败。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.fetchSvc.SetContext(ctx)
	a.simulator.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.barStore != nil {
		_ = a.barStore.Close()
	}
	if a.pfStore != nil {
		_ = a.pfStore.Close()
	}
}

// Simulator 暴露底层模拟器（供测试/回放使用）。
func (a *App) Simulator() *sim.Simulator {
	if a == nil {
		return nil
	}
	return a.simulator
}
