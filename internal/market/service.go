package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stocksim/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// FetchParams 描述一次日线同步请求。
type FetchParams struct {
	Source string `json:"source"`
	Symbol string `json:"symbol"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
}

// FetchJob 跟踪一次同步任务的进度。
type FetchJob struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Params    FetchParams `json:"params"`
	Total     int64       `json:"total"`
	Completed int64       `json:"completed"`
	Message   string      `json:"message,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (j *FetchJob) copy() FetchJob {
	out := *j
	out.Warnings = append([]string(nil), j.Warnings...)
	return out
}

// IntegrityReport 估算区间内应有/已有的日线条数。
// 股票按交易日历估算，加密标的按自然日估算；允许少量停牌缺口。
type IntegrityReport struct {
	Expected int64 `json:"expected"`
	Present  int64 `json:"present"`
}

func (r IntegrityReport) Complete() bool {
	if r.Expected <= 0 {
		return r.Present > 0
	}
	return r.Present >= r.Expected
}

// ServiceConfig 配置 FetchService。
type ServiceConfig struct {
	Store           *Store
	Sources         map[string]BarSource
	DefaultSource   string
	RateLimitPerMin int
	MaxConcurrent   int
}

// Service 负责管理同步任务、协调拉取与写库。
type Service struct {
	store         *Store
	sources       map[string]BarSource
	defaultSource string

	limiter *rate.Limiter
	sem     chan struct{}

	mu   sync.RWMutex
	jobs map[string]*FetchJob

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 4
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	svc := &Service{
		store:         cfg.Store,
		sources:       make(map[string]BarSource),
		defaultSource: strings.ToLower(cfg.DefaultSource),
		limiter:       rate.NewLimiter(ratePerSec, 4),
		sem:           make(chan struct{}, maxConcurrent),
		jobs:          make(map[string]*FetchJob),
		baseCtx:       context.Background(),
	}
	for k, v := range cfg.Sources {
		svc.sources[strings.ToLower(k)] = v
	}
	if svc.defaultSource == "" {
		for k := range svc.sources {
			svc.defaultSource = k
			break
		}
	}
	return svc, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// CheckIntegrity 估算区间覆盖情况。
func (s *Service) CheckIntegrity(ctx context.Context, source, symbol string, start, end int64) (IntegrityReport, error) {
	present, err := s.store.CountBars(ctx, symbol, start, end)
	if err != nil {
		return IntegrityReport{}, err
	}
	var expected int64
	if strings.EqualFold(source, "binance") {
		expected = (end-start)/(24*time.Hour.Milliseconds()) + 1
	} else {
		expected = int64(CountTradingDays(time.UnixMilli(start).UTC(), time.UnixMilli(end).UTC()))
	}
	return IntegrityReport{Expected: expected, Present: present}, nil
}

// SubmitFetch 提交同步任务；若区间已完整则直接返回 done。
func (s *Service) SubmitFetch(params FetchParams) (FetchJob, error) {
	if params.Symbol == "" {
		return FetchJob{}, fmt.Errorf("symbol 不能为空")
	}
	source := strings.ToLower(params.Source)
	if source == "" {
		source = s.defaultSource
	}
	src := s.sources[source]
	if src == nil {
		return FetchJob{}, fmt.Errorf("未知数据源: %s", params.Source)
	}
	params.Source = source
	params.Start = AlignDay(params.Start)
	params.End = AlignDay(params.End)
	if params.Start <= 0 || params.End <= 0 || params.End < params.Start {
		return FetchJob{}, fmt.Errorf("start/end 非法")
	}
	params.Symbol = strings.ToUpper(params.Symbol)

	report, err := s.CheckIntegrity(s.ctx(), source, params.Symbol, params.Start, params.End)
	if err != nil {
		return FetchJob{}, err
	}
	job := &FetchJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    params,
		Total:     report.Expected,
		Completed: report.Present,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	logger.Infof("[market] 任务 %s 提交：%s %s [%d,%d] 预计=%d 已有=%d",
		job.ID, source, params.Symbol, params.Start, params.End, report.Expected, report.Present)

	if report.Complete() {
		s.setJobStatus(job.ID, JobStatusDone, "数据已完整，无需重新拉取")
		return job.copy(), nil
	}

	go s.runJob(job.ID, src)
	return job.copy(), nil
}

func (s *Service) runJob(jobID string, source BarSource) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.setJobStatus(jobID, JobStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	job := s.getJob(jobID)
	if job == nil {
		return
	}
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = JobStatusRunning
		j.Message = ""
	})

	params := job.Params
	ctx := s.ctx()
	if err := s.limiter.Wait(ctx); err != nil {
		s.setJobStatus(jobID, JobStatusFailed, err.Error())
		return
	}
	bars, err := source.Fetch(ctx, FetchRequest{
		Symbol: params.Symbol,
		Start:  params.Start,
		End:    params.End,
	})
	if err != nil {
		s.setJobStatus(jobID, JobStatusFailed, fmt.Sprintf("%s 拉取失败: %v", source.Name(), err))
		return
	}
	inserted, err := s.store.InsertBars(ctx, params.Symbol, bars)
	if err != nil {
		s.setJobStatus(jobID, JobStatusFailed, fmt.Sprintf("写入失败: %v", err))
		return
	}

	report, err := s.CheckIntegrity(ctx, params.Source, params.Symbol, params.Start, params.End)
	status := JobStatusDone
	message := "拉取完成"
	if err != nil {
		status = JobStatusFailed
		message = "完整性检查失败: " + err.Error()
	} else if !report.Complete() {
		status = JobStatusPartial
		message = fmt.Sprintf("已完成，但覆盖不足（%d/%d）", report.Present, report.Expected)
	}
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = status
		j.Message = message
		// 进度以落库后的实际覆盖为准，重复拉取的行不能重复计数
		if err == nil {
			j.Completed = report.Present
		}
		j.UpdatedAt = time.Now()
	})
	logger.Infof("[market] 任务 %s 完成，状态=%s，写入=%d", jobID, status, inserted)
}

func (s *Service) setJobStatus(jobID, status, message string) {
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = status
		j.Message = message
		j.UpdatedAt = time.Now()
	})
}

func (s *Service) getJob(id string) *FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func (s *Service) updateJob(id string, fn func(*FetchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && fn != nil {
		fn(job)
	}
}

// JobSnapshot 返回任务副本。
func (s *Service) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return FetchJob{}, false
	}
	return job.copy(), true
}

// JobsSnapshot 返回所有任务的拷贝列表。
func (s *Service) JobsSnapshot() []FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FetchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.copy())
	}
	return out
}

// ManifestInfo 读取本地 manifest。
func (s *Service) ManifestInfo(ctx context.Context, symbol string) (Manifest, error) {
	if symbol == "" {
		return Manifest{}, errors.New("symbol 不能为空")
	}
	return s.store.Manifest(ctx, symbol)
}

// RangeBars 读取区间日线。
func (s *Service) RangeBars(ctx context.Context, symbol string, start, end int64) ([]Bar, error) {
	if symbol == "" {
		return nil, errors.New("symbol 不能为空")
	}
	return s.store.RangeBars(ctx, symbol, start, end)
}
