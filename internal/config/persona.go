package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"stocksim/internal/logger"
)

// Persona 描述一个策略档位：提示词语气与默认仓位习惯。
type Persona struct {
	Name                     string  `mapstructure:"-" yaml:"-"`
	Tone                     string  `mapstructure:"tone" yaml:"tone"`
	DefaultFraction          float64 `mapstructure:"default_fraction" yaml:"default_fraction"`
	Lookback                 int     `mapstructure:"lookback" yaml:"lookback"`
	DecisionIntervalMultiple int     `mapstructure:"decision_interval_multiple" yaml:"decision_interval_multiple"`
}

type personaFile struct {
	Personas map[string]Persona `mapstructure:"personas" yaml:"personas"`
}

// PersonaSnapshot 对外暴露的只读快照。
type PersonaSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Personas map[string]Persona
}

// PersonaListener 在配置变更时被调用。
type PersonaListener func(PersonaSnapshot)

// personaSchema 内嵌的 JSON Schema，重载时逐个 persona 校验，
// 防止热更新把非法配置推进运行中的进程。
const personaSchema = `
type: object
properties:
  tone:
    type: string
    minLength: 1
  default_fraction:
    type: number
    minimum: 0
    maximum: 1
  lookback:
    type: integer
    minimum: 1
  decision_interval_multiple:
    type: integer
    minimum: 1
required: [tone]
additionalProperties: false
`

// PersonaRegistry 从 YAML 加载策略档位并监听热更新。
type PersonaRegistry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  PersonaSnapshot
	listeners []PersonaListener
}

// NewPersonaRegistry 读取配置文件并开始监听 FS 事件。
func NewPersonaRegistry(path string) (*PersonaRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("persona registry requires path")
	}
	schema, err := compilePersonaSchema()
	if err != nil {
		return nil, fmt.Errorf("compile persona schema failed: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read persona config failed: %w", err)
	}
	r := &PersonaRegistry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("persona reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notify()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前快照（深拷贝）。
func (r *PersonaRegistry) Snapshot() PersonaSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePersonaSnapshot(r.snapshot)
}

// Persona 按名称查找；未配置的档位返回内置兜底。
func (r *PersonaRegistry) Persona(name string) Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.snapshot.Personas[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return fallbackPersona(name)
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (r *PersonaRegistry) Subscribe(fn PersonaListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	snap := clonePersonaSnapshot(r.snapshot)
	r.mu.Unlock()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("persona listener panic: %v", rec)
			}
		}()
		fn(snap)
	}()
}

func (r *PersonaRegistry) notify() {
	r.mu.RLock()
	snap := clonePersonaSnapshot(r.snapshot)
	listeners := append([]PersonaListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb PersonaListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("persona listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (r *PersonaRegistry) reload() error {
	var file personaFile
	if err := r.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse persona config failed: %w", err)
	}
	normalized := make(map[string]Persona, len(file.Personas))
	for name, p := range file.Personas {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if err := r.validatePersona(key, p); err != nil {
			return err
		}
		p.Name = key
		if p.DefaultFraction == 0 {
			p.DefaultFraction = fallbackPersona(key).DefaultFraction
		}
		if p.Lookback <= 0 {
			p.Lookback = 60
		}
		if p.DecisionIntervalMultiple <= 0 {
			p.DecisionIntervalMultiple = 1
		}
		normalized[key] = p
	}
	r.mu.Lock()
	r.snapshot = PersonaSnapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Personas: normalized,
	}
	r.mu.Unlock()
	logger.Infof("persona registry reloaded %d personas from %s", len(normalized), filepath.Base(r.path))
	return nil
}

func (r *PersonaRegistry) validatePersona(name string, p Persona) error {
	doc := map[string]any{"tone": p.Tone}
	if p.DefaultFraction != 0 {
		doc["default_fraction"] = p.DefaultFraction
	}
	if p.Lookback != 0 {
		doc["lookback"] = p.Lookback
	}
	if p.DecisionIntervalMultiple != 0 {
		doc["decision_interval_multiple"] = p.DecisionIntervalMultiple
	}
	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("persona %s invalid: %w", name, err)
	}
	return nil
}

func compilePersonaSchema() (*jsonschema.Schema, error) {
	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader([]byte(personaSchema)))
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("persona.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("persona.json")
}

func clonePersonaSnapshot(in PersonaSnapshot) PersonaSnapshot {
	out := PersonaSnapshot{Version: in.Version, LoadedAt: in.LoadedAt}
	if len(in.Personas) > 0 {
		out.Personas = make(map[string]Persona, len(in.Personas))
		for k, v := range in.Personas {
			out.Personas[k] = v
		}
	}
	return out
}

func fallbackPersona(name string) Persona {
	key := strings.ToLower(strings.TrimSpace(name))
	p := Persona{Name: key, DefaultFraction: 0.5, Lookback: 60, DecisionIntervalMultiple: 1}
	switch key {
	case "aggressive":
		p.Tone = "你是一个激进的交易员，追求收益，敢于重仓。"
		p.DefaultFraction = 1.0
	case "secure":
		p.Tone = "你是一个保守的交易员，优先保住本金，轻仓慢行。"
		p.DefaultFraction = 0.3
	default:
		p.Name = "moderate"
		p.Tone = "你是一个稳健的交易员，平衡收益与风险。"
	}
	return p
}
