package sim

import (
	"context"
	"fmt"
	"strings"

	"stocksim/internal/logger"
	"stocksim/internal/market"

	"github.com/google/uuid"
)

// Notifier 用于运行完成后的推送（Telegram 等）。
type Notifier interface {
	SendText(text string) error
}

// DeciderFactory 按策略档位与模型标识构造一个决策器，每个 run 独享实例。
type DeciderFactory func(strategy, provider string) (Oracle, error)

// StrategyTuning 是策略档位对单次 run 的修正：回看窗口与问询间隔倍数。
type StrategyTuning struct {
	Lookback                 int
	DecisionIntervalMultiple int
}

// TuningFunc 按策略档位给出修正，通常由 persona 配置驱动。
type TuningFunc func(strategy string) StrategyTuning

// Defaults 提交请求缺省字段的回填值，来自配置。
type Defaults struct {
	InitialCash      float64
	ExecPrice        string
	DecisionInterval int
	Fee              float64
	Source           string
	Strategy         string
}

type SimulatorConfig struct {
	Loader        *market.SeriesLoader
	Results       *ResultStore
	Factory       DeciderFactory
	Tuning        TuningFunc
	Notifier      Notifier
	Defaults      Defaults
	MaxConcurrent int
}

// Simulator 管理模拟任务的提交与后台执行。
// 单个 run 严格串行；run 之间用信号量限并发，互不共享账本与流水。
type Simulator struct {
	loader   *market.SeriesLoader
	results  *ResultStore
	factory  DeciderFactory
	tuning   TuningFunc
	notifier Notifier
	defaults Defaults

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("series loader 不能为空")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("decider factory 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	d := cfg.Defaults
	if d.InitialCash <= 0 {
		d.InitialCash = 10000
	}
	if d.ExecPrice == "" {
		d.ExecPrice = ExecPriceOpen
	}
	if d.DecisionInterval < 1 {
		d.DecisionInterval = 10
	}
	if d.Source == "" {
		d.Source = "polygon"
	}
	if d.Strategy == "" {
		d.Strategy = "moderate"
	}
	return &Simulator{
		loader:   cfg.Loader,
		results:  cfg.Results,
		factory:  cfg.Factory,
		tuning:   cfg.Tuning,
		notifier: cfg.Notifier,
		defaults: d,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// StartRun 创建模拟任务并立即返回，回测过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	cfg, err := s.buildConfig(req)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:          uuid.NewString(),
		Symbol:      cfg.Symbol,
		Strategy:    cfg.Strategy,
		Status:      RunStatusPending,
		StartTS:     cfg.StartTS,
		EndTS:       cfg.EndTS,
		InitialCash: cfg.InitialCash,
		FinalValue:  cfg.InitialCash,
		Config:      cfg,
		Stats:       RunStats{FinalValue: cfg.InitialCash, EquityPeak: cfg.InitialCash, EquityValley: cfg.InitialCash},
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) buildConfig(req RunRequest) (RunConfig, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return RunConfig{}, fmt.Errorf("symbol 不能为空")
	}
	start, end := market.AlignDay(req.StartTS), market.AlignDay(req.EndTS)
	if start <= 0 || end <= 0 || end < start {
		return RunConfig{}, fmt.Errorf("start/end 非法")
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.defaults.Strategy
	}
	switch strategy {
	case "secure", "moderate", "aggressive":
	default:
		return RunConfig{}, fmt.Errorf("未知 strategy: %s", strategy)
	}
	execPrice := req.ExecPrice
	if execPrice == "" {
		execPrice = s.defaults.ExecPrice
	}
	if execPrice != ExecPriceOpen && execPrice != ExecPriceClose {
		return RunConfig{}, fmt.Errorf("exec_price 只支持 open/close")
	}
	initialCash := req.InitialCash
	if initialCash == 0 {
		initialCash = s.defaults.InitialCash
	}
	if initialCash <= 0 {
		return RunConfig{}, fmt.Errorf("initial_cash 必须为正")
	}
	interval := req.DecisionInterval
	if interval == 0 {
		interval = s.defaults.DecisionInterval
	}
	if interval < 1 {
		return RunConfig{}, fmt.Errorf("decision_interval 必须 >= 1")
	}
	// persona 档位修正：激进档看得短、问得勤，保守档反之
	lookback := 0
	if s.tuning != nil {
		tn := s.tuning(strategy)
		if tn.Lookback > 0 {
			lookback = tn.Lookback
		}
		if tn.DecisionIntervalMultiple > 1 {
			interval *= tn.DecisionIntervalMultiple
		}
	}
	fee := req.Fee
	if fee == 0 {
		fee = s.defaults.Fee
	}
	if fee < 0 {
		return RunConfig{}, fmt.Errorf("fee 不能为负")
	}
	source := req.Source
	if source == "" {
		source = s.defaults.Source
	}
	return RunConfig{
		Symbol:           strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Strategy:         strategy,
		StartTS:          start,
		EndTS:            end,
		InitialCash:      initialCash,
		ExecPrice:        execPrice,
		DecisionInterval: interval,
		Lookback:         lookback,
		Fee:              fee,
		Source:           source,
		Provider:         req.Provider,
	}, nil
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[sim] run %s 等待可用 worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "加载行情数据…")
	if err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("[sim] run %s 失败: %v", runID, err)
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

// execute 是致命错误的唯一出口：进入日循环前的数据问题直接判负，
// 循环内部从不致命（oracle 失败全部降级为 HOLD）。
func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) error {
	bars, err := s.loader.LoadSeries(ctx, cfg.Source, cfg.Symbol, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return err
	}
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning,
		fmt.Sprintf("共 %d 个交易日，开始推演…", len(bars)))

	orc, err := s.factory(cfg.Strategy, cfg.Provider)
	if err != nil {
		return fmt.Errorf("构造决策器失败: %w", err)
	}

	stepper := NewStepper(cfg, orc)
	progressStep := len(bars) / 20
	if progressStep < 10 {
		progressStep = 10
	}
	stepper.OnRow(func(row LogRow) {
		if _, err := s.results.InsertRow(ctx, row); err != nil {
			logger.Warnf("[sim] run %s 写流水失败: %v", runID, err)
		}
		if row.Day > 0 && row.Day%progressStep == 0 {
			_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning,
				fmt.Sprintf("已推演 %d/%d 日，当前净值 %.2f", row.Day+1, len(bars), row.PortfolioValue))
		}
	})

	_, transcripts, stats, err := stepper.Run(ctx, runID, bars)
	if err != nil {
		return err
	}
	for _, tr := range transcripts {
		if _, err := s.results.InsertTranscript(ctx, tr); err != nil {
			logger.Warnf("[sim] run %s 写决策记录失败: %v", runID, err)
		}
	}

	summary := Summary(cfg, stats)
	if err := s.results.UpdateRunSummary(ctx, runID, RunStatusDone, stats, summary); err != nil {
		return err
	}
	logger.Infof("[sim] run %s 完成: %s %s 收益 %.2f (%.2f%%)",
		runID, cfg.Symbol, cfg.Strategy, stats.Profit, stats.ReturnPct)
	if s.notifier != nil {
		if err := s.notifier.SendText(summary); err != nil {
			logger.Warnf("[sim] run %s 推送失败: %v", runID, err)
		}
	}
	return nil
}
