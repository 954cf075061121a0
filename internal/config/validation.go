package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Oracle.validate(); err != nil {
		return err
	}
	if err := c.Sim.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error")
	}
	return nil
}

func (o *OracleConfig) validate() error {
	seen := make(map[string]bool, len(o.Providers))
	for _, p := range o.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("oracle.providers contains entry without id")
		}
		if seen[strings.ToLower(id)] {
			return fmt.Errorf("oracle.providers duplicate id: %s", id)
		}
		seen[strings.ToLower(id)] = true
		switch p.Kind {
		case "openai", "gemini":
		default:
			return fmt.Errorf("oracle.providers.%s kind must be openai or gemini", id)
		}
		if strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("oracle.providers.%s missing model", id)
		}
	}
	if o.DefaultProvider != "" {
		if _, ok := o.Provider(o.DefaultProvider); !ok {
			return fmt.Errorf("oracle.default_provider references unknown id: %s", o.DefaultProvider)
		}
	}
	return nil
}

func (s *SimConfig) validate() error {
	if s.ExecPrice != "open" && s.ExecPrice != "close" {
		return fmt.Errorf("sim.exec_price must be open or close")
	}
	switch s.Strategy {
	case "secure", "moderate", "aggressive":
	default:
		return fmt.Errorf("sim.strategy must be secure/moderate/aggressive")
	}
	if s.DecisionInterval < 1 {
		return fmt.Errorf("sim.decision_interval must be >= 1")
	}
	if s.Fee < 0 {
		return fmt.Errorf("sim.fee must be >= 0")
	}
	if s.Source != "polygon" && s.Source != "binance" {
		return fmt.Errorf("sim.source must be polygon or binance")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	t := n.Telegram
	if t.Enabled {
		if strings.TrimSpace(t.BotToken) == "" || strings.TrimSpace(t.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
