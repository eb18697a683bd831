package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvDiscordToken = "ANTITRIGGER_DISCORD_TOKEN"

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Syslog        SyslogConfig    `json:"syslog" yaml:"syslog"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	NATS          NATSConfig      `json:"nats" yaml:"nats"`
	Discord       DiscordConfig   `json:"discord" yaml:"discord"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type SyslogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	UDPAddr string `json:"udp_addr" yaml:"udp_addr"`
	TCPAddr string `json:"tcp_addr" yaml:"tcp_addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
	Queue   string `json:"queue" yaml:"queue"`
}

// DiscordConfig is shared by the gateway source and the channel notifier.
type DiscordConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Token     string `json:"token" yaml:"token"`
	ChannelID string `json:"channel_id" yaml:"channel_id"`
}

// ParserConfig controls how stream transports cut text into events. Framing
// "line" treats every line as one event; "block" joins lines up to a blank
// line so multi-line logs can be streamed as written.
type ParserConfig struct {
	Timezone      string `json:"timezone" yaml:"timezone"`
	Framing       string `json:"framing" yaml:"framing"`
	MaxBlockLines int    `json:"max_block_lines" yaml:"max_block_lines"`
}

type DetectionConfig struct {
	Burst          BurstConfig   `json:"burst" yaml:"burst"`
	Chain          ChainConfig   `json:"chain" yaml:"chain"`
	Retention      time.Duration `json:"retention" yaml:"retention"`
	CounterBucket  time.Duration `json:"counter_bucket" yaml:"counter_bucket"`
	DedupeWindow   time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	MaxClockSkew   time.Duration `json:"max_clock_skew" yaml:"max_clock_skew"`
	MaxFutureSkew  time.Duration `json:"max_future_skew" yaml:"max_future_skew"`
	SalaryAmounts  []int64       `json:"salary_amounts" yaml:"salary_amounts"`
	LegitReasons   []string      `json:"legit_reasons" yaml:"legit_reasons"`
	RetentionCache int           `json:"retention_cache" yaml:"retention_cache"`
	IgnoreActors   []string      `json:"ignore_actors" yaml:"ignore_actors"`
}

type BurstConfig struct {
	Window       time.Duration `json:"window" yaml:"window"`
	Threshold    int           `json:"threshold" yaml:"threshold"`
	MemoDuration time.Duration `json:"memo_duration" yaml:"memo_duration"`
}

type ChainConfig struct {
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`
	MaxInterval time.Duration `json:"max_interval" yaml:"max_interval"`
}

type NotifyConfig struct {
	MentionEveryone bool                `json:"mention_everyone" yaml:"mention_everyone"`
	Workers         int                 `json:"workers" yaml:"workers"`
	QueueSize       int                 `json:"queue_size" yaml:"queue_size"`
	SendTimeout     time.Duration       `json:"send_timeout" yaml:"send_timeout"`
	RateLimit       time.Duration       `json:"rate_limit" yaml:"rate_limit"`
	Breaker         BreakerConfig       `json:"breaker" yaml:"breaker"`
	Destinations    []DestinationConfig `json:"destinations" yaml:"destinations"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `json:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// DestinationConfig names a notifier ("discord" or "webhook") and the opaque
// target it delivers to (a channel id or a webhook URL).
type DestinationConfig struct {
	Notifier string `json:"notifier" yaml:"notifier"`
	Target   string `json:"target" yaml:"target"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Driver   string `json:"driver" yaml:"driver"`
	DSN      string `json:"dsn" yaml:"dsn"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type MetricsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultSalaryAmounts() []int64 {
	return []int64{50, 100, 150, 200, 250, 300, 350, 400, 500, 750, 1000}
}

func DefaultLegitReasons() []string {
	return []string{"paycheck", "salary", "job payment"}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Syslog:        SyslogConfig{Enabled: false, UDPAddr: ":5514", TCPAddr: ":5514"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			NATS:          NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222", Subject: "antitrigger.events"},
			Discord:       DiscordConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", Framing: "line", MaxBlockLines: 32},
		},
		Detection: DetectionConfig{
			Burst: BurstConfig{
				Window:       120 * time.Second,
				Threshold:    2,
				MemoDuration: 2 * time.Second,
			},
			Chain: ChainConfig{
				MinInterval: 25 * time.Minute,
				MaxInterval: 35 * time.Minute,
			},
			Retention:      6 * time.Hour,
			CounterBucket:  time.Hour,
			DedupeWindow:   10 * time.Minute,
			MaxClockSkew:   0,
			MaxFutureSkew:  5 * time.Minute,
			SalaryAmounts:  DefaultSalaryAmounts(),
			LegitReasons:   DefaultLegitReasons(),
			RetentionCache: 4096,
		},
		Notify: NotifyConfig{
			MentionEveryone: true,
			Workers:         2,
			QueueSize:       256,
			SendTimeout:     10 * time.Second,
			RateLimit:       time.Second,
			Breaker:         BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: true, Driver: "sqlite", DSN: "file:antitrigger.db?_pragma=busy_timeout(5000)"},
		Metrics: MetricsConfig{StoreLimit: 5000},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

// applyEnv lets the bot token stay out of the config file.
func applyEnv(cfg *Config) {
	if token, ok := os.LookupEnv(EnvDiscordToken); ok && strings.TrimSpace(token) != "" {
		cfg.Ingest.Discord.Token = strings.TrimSpace(token)
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Detection.Burst.Window <= 0 {
		cfg.Detection.Burst.Window = def.Detection.Burst.Window
	}
	if cfg.Detection.Burst.Threshold <= 0 {
		cfg.Detection.Burst.Threshold = def.Detection.Burst.Threshold
	}
	if cfg.Detection.Chain.MinInterval <= 0 {
		cfg.Detection.Chain.MinInterval = def.Detection.Chain.MinInterval
	}
	if cfg.Detection.Chain.MaxInterval <= 0 {
		cfg.Detection.Chain.MaxInterval = def.Detection.Chain.MaxInterval
	}
	if cfg.Detection.Retention <= 0 {
		cfg.Detection.Retention = def.Detection.Retention
	}
	if cfg.Detection.CounterBucket <= 0 {
		cfg.Detection.CounterBucket = def.Detection.CounterBucket
	}
	if cfg.Detection.RetentionCache <= 0 {
		cfg.Detection.RetentionCache = def.Detection.RetentionCache
	}
	if len(cfg.Detection.SalaryAmounts) == 0 {
		cfg.Detection.SalaryAmounts = DefaultSalaryAmounts()
	}
	if len(cfg.Detection.LegitReasons) == 0 {
		cfg.Detection.LegitReasons = DefaultLegitReasons()
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = def.Notify.Workers
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = def.Notify.QueueSize
	}
	if cfg.Notify.SendTimeout <= 0 {
		cfg.Notify.SendTimeout = def.Notify.SendTimeout
	}
	if cfg.Notify.Breaker.FailureThreshold == 0 {
		cfg.Notify.Breaker.FailureThreshold = def.Notify.Breaker.FailureThreshold
	}
	if cfg.Notify.Breaker.OpenTimeout <= 0 {
		cfg.Notify.Breaker.OpenTimeout = def.Notify.Breaker.OpenTimeout
	}
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = 5000
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.Framing == "" {
		cfg.Ingest.Parser.Framing = def.Ingest.Parser.Framing
	}
	if cfg.Ingest.Parser.MaxBlockLines <= 0 {
		cfg.Ingest.Parser.MaxBlockLines = def.Ingest.Parser.MaxBlockLines
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Syslog.Enabled && cfg.Ingest.Syslog.UDPAddr == "" && cfg.Ingest.Syslog.TCPAddr == "" {
		return errors.New("ingest.syslog.udp_addr or tcp_addr required when ingest.syslog.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.NATS.Enabled && (cfg.Ingest.NATS.URL == "" || cfg.Ingest.NATS.Subject == "") {
		return errors.New("ingest.nats requires url and subject")
	}
	if cfg.Ingest.Discord.Enabled && (cfg.Ingest.Discord.Token == "" || cfg.Ingest.Discord.ChannelID == "") {
		return fmt.Errorf("ingest.discord requires token (or %s) and channel_id", EnvDiscordToken)
	}
	switch strings.ToLower(cfg.Ingest.Parser.Framing) {
	case "", "line", "block":
	default:
		return fmt.Errorf("ingest.parser.framing must be line or block, got %q", cfg.Ingest.Parser.Framing)
	}
	if cfg.Detection.Chain.MinInterval > cfg.Detection.Chain.MaxInterval {
		return fmt.Errorf("detection.chain.min_interval %s exceeds max_interval %s",
			cfg.Detection.Chain.MinInterval, cfg.Detection.Chain.MaxInterval)
	}
	if cfg.Detection.Retention < cfg.Detection.Chain.MaxInterval {
		return errors.New("detection.retention must be at least detection.chain.max_interval")
	}
	for _, d := range cfg.Notify.Destinations {
		switch strings.ToLower(d.Notifier) {
		case "discord":
			if !cfg.Ingest.Discord.Enabled && cfg.Ingest.Discord.Token == "" {
				return errors.New("notify destination uses discord but no discord token is configured")
			}
		case "webhook":
		default:
			return fmt.Errorf("notify destination has unsupported notifier %q", d.Notifier)
		}
		if strings.TrimSpace(d.Target) == "" {
			return errors.New("notify destination target is empty")
		}
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", "sqlite", "postgres", "postgresql", "badger", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
