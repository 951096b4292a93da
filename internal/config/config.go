package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid configuration")

// DefaultQueue — очередь по умолчанию.
const DefaultQueue = "rpc"

// Config — вся конфигурация conveyor.
type Config struct {
	AMQP      AMQPConfig      `yaml:"amqp"`
	Worker    WorkerConfig    `yaml:"worker"`
	Publisher PublisherConfig `yaml:"publisher"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
}

// AMQPConfig — подключение к брокеру и топология.
type AMQPConfig struct {
	URL            string        `yaml:"url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Queue          string        `yaml:"queue"`
	Declare        string        `yaml:"declare"`
	DeadsDisabled  bool          `yaml:"deads_disabled"`
	ReconnectTries int           `yaml:"reconnect_tries"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// WorkerConfig — параметры потребителя.
type WorkerConfig struct {
	Prefetch       int           `yaml:"prefetch_count"`
	MaxSleep       time.Duration `yaml:"max_sleep"`
	TerminateGrace time.Duration `yaml:"terminate_grace"`
	Reconnect      bool          `yaml:"reconnect"`
	StatsEvery     string        `yaml:"stats_every"`
}

// PublisherConfig — параметры отправки.
type PublisherConfig struct {
	Exchange      string `yaml:"exchange"`
	RoutingKey    string `yaml:"routing_key"`
	Priority      int    `yaml:"priority"`
	ContentType   string `yaml:"content_type"`
	DisableResend bool   `yaml:"disable_resend"`
}

// LogConfig — параметры логирования.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig — HTTP-сервер /healthz и /metrics. Пустой адрес отключает сервер.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig — журнал результатов обработки.
type JournalConfig struct {
	DSN          string `yaml:"dsn"`
	Redis        string `yaml:"redis"`
	MaxConns     int32  `yaml:"max_conns"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		AMQP: AMQPConfig{
			URL:     mq.DefaultURL(),
			Queue:   DefaultQueue,
			Declare: string(mq.DeclareNo),
		},
		Worker: WorkerConfig{
			Prefetch:       1,
			MaxSleep:       16 * time.Second,
			TerminateGrace: 3 * time.Second,
		},
		Publisher: PublisherConfig{
			Priority:    1,
			ContentType: mq.ContentTypeJSON,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "json",
		},
		Journal: JournalConfig{
			MaxConns:     4,
			StreamMaxLen: 10000,
		},
	}
}

// Load читает YAML-файл поверх значений по умолчанию.
// Пустое имя — только значения по умолчанию.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile загружает переменные из .env-файла.
// Уже заданные переменные окружения не перезаписываются.
func LoadEnvFile(filename string) error {
	if filename == "" {
		return nil
	}
	if err := godotenv.Load(filename); err != nil {
		return fmt.Errorf("load env file %s: %w", filename, err)
	}
	return nil
}

// ApplyEnv применяет переменные окружения.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AMQP_URL":      &c.AMQP.URL,
		"AMQP_QUEUE":    &c.AMQP.Queue,
		"AMQP_USER":     &c.AMQP.Username,
		"AMQP_PASSWORD": &c.AMQP.Password,
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FORMAT":    &c.Log.Format,
		"JOURNAL_DSN":   &c.Journal.DSN,
		"JOURNAL_REDIS": &c.Journal.Redis,
		"METRICS_ADDR":  &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("AMQP_PREFETCH_COUNT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AMQP_PREFETCH_COUNT: %v", ErrInvalid, err)
		}
		c.Worker.Prefetch = n
	}

	return nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if c.AMQP.Queue == "" {
		return fmt.Errorf("%w: amqp.queue cannot be empty", ErrInvalid)
	}
	if _, err := mq.ParseDeclareMode(c.AMQP.Declare); err != nil {
		return fmt.Errorf("%w: amqp.declare: %v", ErrInvalid, err)
	}
	if _, err := c.AMQP.ConnectionURL(); err != nil {
		return fmt.Errorf("%w: amqp.url: %v", ErrInvalid, err)
	}
	if c.AMQP.ReconnectTries < -1 {
		return fmt.Errorf("%w: amqp.reconnect_tries must be -1 or greater", ErrInvalid)
	}
	if c.AMQP.ReconnectDelay < 0 {
		return fmt.Errorf("%w: amqp.reconnect_delay cannot be negative", ErrInvalid)
	}

	if c.Worker.Prefetch < 0 {
		return fmt.Errorf("%w: worker.prefetch_count cannot be negative", ErrInvalid)
	}
	if c.Worker.MaxSleep < 0 {
		return fmt.Errorf("%w: worker.max_sleep cannot be negative", ErrInvalid)
	}
	if c.Worker.TerminateGrace < 0 {
		return fmt.Errorf("%w: worker.terminate_grace cannot be negative", ErrInvalid)
	}
	if c.Worker.StatsEvery != "" {
		if err := scheduler.ValidateSpec(c.Worker.StatsEvery); err != nil {
			return fmt.Errorf("%w: worker.stats_every: %v", ErrInvalid, err)
		}
	}

	if c.Publisher.Priority < 0 || c.Publisher.Priority > mq.MaxPriority {
		return fmt.Errorf("%w: publisher.priority must be between 0 and %d", ErrInvalid, mq.MaxPriority)
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text", ErrInvalid)
	}

	if c.Journal.DSN != "" && c.Journal.Redis != "" {
		return fmt.Errorf("%w: journal.dsn and journal.redis are mutually exclusive", ErrInvalid)
	}

	return nil
}

// DeclareMode возвращает разобранный режим объявления.
func (c AMQPConfig) DeclareMode() mq.DeclareMode {
	mode, err := mq.ParseDeclareMode(c.Declare)
	if err != nil {
		return mq.DeclareNo
	}
	return mode
}

// ConnectionURL возвращает URL брокера с учётом Username/Password.
func (c AMQPConfig) ConnectionURL() (string, error) {
	uri, err := amqp.ParseURI(c.URL)
	if err != nil {
		return "", err
	}
	if c.Username != "" {
		uri.Username = c.Username
	}
	if c.Password != "" {
		uri.Password = c.Password
	}
	return uri.String(), nil
}

// Redacted возвращает URL без пароля, для логов.
func (c AMQPConfig) Redacted() string {
	uri, err := amqp.ParseURI(c.URL)
	if err != nil {
		return "<invalid url>"
	}
	if c.Username != "" {
		uri.Username = c.Username
	}
	uri.Password = ""
	return fmt.Sprintf("%s://%s@%s:%d/%s", uri.Scheme, uri.Username, uri.Host, uri.Port, strings.TrimPrefix(uri.Vhost, "/"))
}
