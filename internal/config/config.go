package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Telegram struct {
		Enabled     bool
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Engine struct {
		Strategies map[string]StrategyConfig `mapstructure:"strategies"`
		Watch      struct {
			Interval    time.Duration `mapstructure:"interval"`
			HorizonDays int           `mapstructure:"horizon_days"`
		} `mapstructure:"watch"`
	} `mapstructure:"engine"`
}

type StrategyConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	BatchSize int           `mapstructure:"batch_size"`
	// Suggestions is a pointer so an absent key keeps the strategy default.
	Suggestions *bool `mapstructure:"suggestions"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// EngineStrategies overlays configured values on the engine defaults, so a
// config file only has to name the knobs it changes.
func (c Config) EngineStrategies() map[string]engine.Strategy {
	out := engine.DefaultStrategies()
	for name, sc := range c.Engine.Strategies {
		s, ok := out[name]
		if !ok {
			s = engine.Strategy{Name: name}
		}
		if sc.TTL > 0 {
			s.TTL = sc.TTL
		}
		if sc.BatchSize > 0 {
			s.BatchSize = sc.BatchSize
		}
		if sc.Suggestions != nil {
			s.Suggestions = *sc.Suggestions
		}
		out[name] = s
	}
	return out
}
