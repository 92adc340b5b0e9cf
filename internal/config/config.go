// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string          `yaml:"env" env:"ENV" env-default:"local" validate:"oneof=local dev prod test"`
	StorageConnectionString string          `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" validate:"required"`
	MigrationsPath          string          `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	Clock                   Clock           `yaml:"clock"`
	Redis                   RedisConnection `yaml:"redis_connection"`
	RabbitMQ                RabbitMQ        `yaml:"rabbitmq"`
	HTTPServer              HTTPServer      `yaml:"http_server"`
	Telegram                Telegram        `yaml:"telegram"`
	OpenAI                  OpenAI          `yaml:"openai"`
	OCR                     OCR             `yaml:"ocr"`
	Plan                    Plan            `yaml:"plan"`
	RateLimit               RateLimit       `yaml:"rate_limit"`
	Scheduler               Scheduler       `yaml:"scheduler"`
}

// Clock опорная временная зона, в которой моменты времени переводятся в даты.
type Clock struct {
	Location string `yaml:"location" env:"CLOCK_LOCATION" env-default:"Europe/Moscow" validate:"required"`
}

// HTTPServer структура для настройки служебного сервера (health, metrics).
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" validate:"required"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	TTL          time.Duration `yaml:"ttl" env-default:"10m"`
}

// RabbitMQ настройки подключения к брокеру.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL" validate:"required"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// Telegram настройки чат-транспорта и платёжного провайдера.
type Telegram struct {
	Token          string        `yaml:"token" env:"TELEGRAM_TOKEN" validate:"required"`
	ProviderToken  string        `yaml:"provider_token" env:"PROVIDER_TOKEN"`
	PollTimeout    int           `yaml:"poll_timeout" env-default:"60"`
	Workers        int           `yaml:"workers" env-default:"10" validate:"gt=0"`
	MaxImageBytes  int64         `yaml:"max_image_bytes" env-default:"10485760"`
	RequestTimeout time.Duration `yaml:"request_timeout" env-default:"90s"`
	Debug          bool          `yaml:"debug"`
}

// OpenAI настройки LLM-сервиса.
type OpenAI struct {
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY" validate:"required"`
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model   string        `yaml:"model" env-default:"gpt-3.5-turbo"`
	Timeout time.Duration `yaml:"timeout" env-default:"60s"`
}

// OCR настройки сервиса распознавания текста.
type OCR struct {
	URL       string        `yaml:"url" env:"OCR_URL" validate:"required"`
	Languages []string      `yaml:"languages" env-default:"rus,eng"`
	MaxWidth  int           `yaml:"max_width" env-default:"2000"`
	Timeout   time.Duration `yaml:"timeout" env-default:"30s"`
}

// Plan параметры пробного и платного периодов.
type Plan struct {
	TrialDays   int    `yaml:"trial_days" env-default:"3" validate:"gt=0"`
	PaidDays    int    `yaml:"paid_days" env-default:"30" validate:"gt=0"`
	Price       int    `yaml:"price" env-default:"50000" validate:"gt=0"`
	Currency    string `yaml:"currency" env-default:"RUB" validate:"len=3"`
	Title       string `yaml:"title" env-default:"Подписка на цифрового учителя"`
	Description string `yaml:"description" env-default:"Месячная подписка на все функции бота"`
	Payload     string `yaml:"payload" env-default:"monthly_subscription"`
}

// RateLimit ограничение частоты действий одного пользователя.
type RateLimit struct {
	PerSecond float64       `yaml:"per_second" env-default:"1" validate:"gt=0"`
	Burst     int           `yaml:"burst" env-default:"3" validate:"gt=0"`
	IdleTTL   time.Duration `yaml:"idle_ttl" env-default:"10m" validate:"gt=0"`
}

// Scheduler настройки планировщика напоминаний об окончании доступа.
type Scheduler struct {
	Interval time.Duration `yaml:"interval" env-default:"24h" validate:"gt=0"`
}

// Loc возвращает опорную временную зону.
func (c Clock) Loc() (*time.Location, error) {
	return time.LoadLocation(c.Location)
}

// Load читает конфиг из файла path, переменных окружения и файла .env.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: failed to load .env: %w", op, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	if _, err := cfg.Clock.Loc(); err != nil {
		return nil, fmt.Errorf("%s: invalid clock location: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
// CONFIG_PATH может быть задан и в файле .env.
func MustLoad() *Config {
	_ = godotenv.Load()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %s", err)
	}
	return cfg
}
