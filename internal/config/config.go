// Package config загружает настройки agentflow.
//
// Источники по возрастанию приоритета: значения по умолчанию,
// файл конфигурации (YAML/JSON/TOML), переменные окружения AGENTFLOW_*.
// Ключ engine.max_parallel читается из AGENTFLOW_ENGINE_MAX_PARALLEL.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaiso/agentflow/internal/domain"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "AGENTFLOW"

// ErrInvalidConfig — некорректное значение настройки.
var ErrInvalidConfig = errors.New("invalid config")

// Config — настройки процесса.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	LLM     LLMConfig     `mapstructure:"llm"`
	DB      DBConfig      `mapstructure:"db"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// EngineConfig — настройки выполнения.
type EngineConfig struct {
	// Mode — "blocking" или "cooperative".
	Mode        string `mapstructure:"mode"`
	MaxParallel int    `mapstructure:"max_parallel"`

	// StrictTools — отсутствующий инструмент является ошибкой валидации.
	StrictTools bool `mapstructure:"strict_tools"`

	// RetryBackoff — "none", "fixed" или "exponential".
	RetryBackoff string        `mapstructure:"retry_backoff"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	RetryMax     time.Duration `mapstructure:"retry_max_delay"`
}

// LLMConfig — настройки модели.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// DBConfig — архив отчётов в PostgreSQL. Пустой URL отключает архив.
type DBConfig struct {
	URL string `mapstructure:"url"`
}

// AMQPConfig — публикация событий в RabbitMQ. Пустой URL отключает публикацию.
type AMQPConfig struct {
	URL string `mapstructure:"url"`
}

// ServerConfig — HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig — endpoint /metrics. Пустой адрес — метрики отдаются API сервером.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults задаёт значения по умолчанию.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.mode", "blocking")
	v.SetDefault("engine.max_parallel", 4)
	v.SetDefault("engine.strict_tools", true)
	v.SetDefault("engine.retry_backoff", "none")
	v.SetDefault("engine.retry_delay", 200*time.Millisecond)
	v.SetDefault("engine.retry_max_delay", 30*time.Second)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("db.url", "")
	v.SetDefault("amqp.url", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
}

// New создаёт viper с префиксом окружения и значениями по умолчанию.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load читает конфигурацию. path может быть пустым.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper разбирает и проверяет настройки.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения.
func (c *Config) Validate() error {
	switch c.Engine.Mode {
	case "blocking", "cooperative":
	default:
		return fmt.Errorf("%w: engine.mode %q", ErrInvalidConfig, c.Engine.Mode)
	}
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("%w: engine.max_parallel must be positive", ErrInvalidConfig)
	}
	switch c.Engine.RetryBackoff {
	case "", "none", "fixed", "exponential":
	default:
		return fmt.Errorf("%w: engine.retry_backoff %q", ErrInvalidConfig, c.Engine.RetryBackoff)
	}
	return nil
}

// RetryPolicy возвращает задержку между попытками для engine.
func (e EngineConfig) RetryPolicy() *domain.RetryPolicy {
	if e.RetryBackoff == "" || e.RetryBackoff == "none" {
		return nil
	}
	return &domain.RetryPolicy{
		Backoff:        e.RetryBackoff,
		InitialDelayMs: int(e.RetryDelay / time.Millisecond),
		MaxDelayMs:     int(e.RetryMax / time.Millisecond),
	}
}
