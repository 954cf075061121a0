package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stocksim/internal/logger"
)

// Engine：决策引擎。组装提示词、调用 Provider、解析并校验输出。
// 任何失败都包一层 ErrOracle，由上层（模拟器）决定降级策略。
type Engine struct {
	provider Provider
	persona  string
	tone     string
	fraction float64
	timeout  time.Duration

	mu   sync.Mutex
	last *Transcript
}

type EngineOption func(*Engine)

func WithPersona(p string) EngineOption {
	return func(e *Engine) { e.persona = p }
}

// WithTone 覆盖 persona 的内置语气（来自热更新的 persona registry）。
func WithTone(tone string) EngineOption {
	return func(e *Engine) { e.tone = tone }
}

// WithDefaultFraction 覆盖缺省仓位比例。
func WithDefaultFraction(f float64) EngineOption {
	return func(e *Engine) { e.fraction = f }
}

func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

func NewEngine(p Provider, opts ...EngineOption) *Engine {
	e := &Engine{provider: p, persona: "moderate", timeout: 90 * time.Second}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Persona() string { return e.persona }

// Decide 产出一次交易决策。解析顺序：JSON 优先，失败后回退关键词解析。
func (e *Engine) Decide(ctx context.Context, st State) (Decision, error) {
	tone := e.tone
	if tone == "" {
		tone = ToneFor(e.persona)
	}
	user := BuildUserPrompt(st, tone)

	tr := Transcript{
		ProviderID:   e.provider.ID(),
		SystemPrompt: systemPrompt,
		UserPrompt:   user,
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	raw, err := e.provider.Call(cctx, systemPrompt, user)
	if err != nil {
		tr.Error = err.Error()
		e.record(tr)
		return Decision{}, fmt.Errorf("%w: provider %s: %v", ErrOracle, e.provider.ID(), err)
	}
	tr.RawOutput = raw

	d, perr := e.parse(raw, &tr)
	if perr != nil {
		tr.Error = perr.Error()
		e.record(tr)
		return Decision{}, fmt.Errorf("%w: %v", ErrOracle, perr)
	}

	frac := e.fraction
	if frac <= 0 {
		frac = defaultFractionFor(e.persona)
	}
	ApplyDefaultSizing(&d, frac)
	tr.Decision = d
	e.record(tr)
	logger.Debugf("[oracle] %s decision=%s qty=%.4f frac=%.2f amount=%.2f conf=%d",
		st.Symbol, d.Action, d.Quantity, d.Fraction, d.AmountUSD, d.Confidence)
	return d, nil
}

func (e *Engine) parse(raw string, tr *Transcript) (Decision, error) {
	if js, cerr := CoerceDecisionJSON(raw); cerr == nil {
		var d Decision
		if err := json.Unmarshal([]byte(js), &d); err == nil {
			if serr := Sanitize(&d); serr == nil {
				tr.RawJSON = js
				return d, nil
			}
		}
	}
	// JSON 解析失败：回退到关键词扫描（中英日词表）
	d := ParseKeywords(raw)
	if err := Sanitize(&d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (e *Engine) record(tr Transcript) {
	e.mu.Lock()
	cp := tr
	e.last = &cp
	e.mu.Unlock()
}

func (e *Engine) LastTranscript() (Transcript, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Transcript{}, false
	}
	return *e.last, true
}

// defaultFractionFor：未给出任何仓位表达时的默认比例（激进人格满仓，其余半仓）。
func defaultFractionFor(persona string) float64 {
	if persona == "aggressive" {
		return 1.0
	}
	return 0.5
}
