// Package config provides functionality for managing configuration options
// for the station client and the inventory backend using command-line flags,
// environment variables, an optional .env file and an optional JSON or YAML
// config file.
//
// Precedence, lowest first: built-in defaults, config file, environment
// (including values loaded from .env), explicitly set flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ClientOptions holds the station client configuration.
type ClientOptions struct {
	// BaseURL is the RequestChannel root (reader, capture and CRUD endpoints).
	BaseURL string
	// EventsURL is the websocket event stream; derived from BaseURL when empty.
	EventsURL string

	// CertFile, KeyFile and CAFile enable mutual TLS when all are set.
	CertFile string
	KeyFile  string
	CAFile   string

	// PollInterval is the scan-poll period.
	PollInterval time.Duration
	// CountdownTick is one countdown step of the capture trigger.
	CountdownTick time.Duration
	// BlockedAfter is the number of consecutive failed acquire attempts
	// after which the reader is reported as blocked.
	BlockedAfter int
	// MaxAttempts bounds the acquire loop; zero retries forever.
	MaxAttempts int
	// RequestTimeout bounds every RequestChannel call.
	RequestTimeout time.Duration

	// PendingFile stores log entries whose submission failed.
	PendingFile string
	// LogLevel is the zap level name.
	LogLevel string
	// Config is the path to the config file.
	Config string
}

// ServerOptions holds the inventory backend configuration.
type ServerOptions struct {
	// Addr is the listening address (ip:port).
	Addr string
	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN string

	// TLSCert and TLSKey enable HTTPS; ClientCA additionally verifies
	// station certificates.
	TLSCert  string
	TLSKey   string
	ClientCA string

	// RabbitURL enables log-created notifications when set.
	RabbitURL string
	// LogQueue is the queue log-created messages are published to.
	LogQueue string

	// CleanupInterval and Retention drive the soft-deleted box purge.
	CleanupInterval time.Duration
	Retention       time.Duration

	// LogLevel is the zap level name.
	LogLevel string
	// Config is the path to the config file.
	Config string
}

// clientFile mirrors ClientOptions as it appears in a config file.
type clientFile struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	EventsURL      string `json:"events_url" yaml:"events_url"`
	CertFile       string `json:"cert_file" yaml:"cert_file"`
	KeyFile        string `json:"key_file" yaml:"key_file"`
	CAFile         string `json:"ca_file" yaml:"ca_file"`
	PollInterval   string `json:"poll_interval" yaml:"poll_interval"`
	CountdownTick  string `json:"countdown_tick" yaml:"countdown_tick"`
	BlockedAfter   int    `json:"blocked_after" yaml:"blocked_after"`
	MaxAttempts    int    `json:"max_attempts" yaml:"max_attempts"`
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout"`
	PendingFile    string `json:"pending_file" yaml:"pending_file"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
}

// serverFile mirrors ServerOptions as it appears in a config file.
type serverFile struct {
	Addr            string `json:"addr" yaml:"addr"`
	DatabaseDSN     string `json:"database_dsn" yaml:"database_dsn"`
	TLSCert         string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey          string `json:"tls_key" yaml:"tls_key"`
	ClientCA        string `json:"client_ca" yaml:"client_ca"`
	RabbitURL       string `json:"rabbit_url" yaml:"rabbit_url"`
	LogQueue        string `json:"log_queue" yaml:"log_queue"`
	CleanupInterval string `json:"cleanup_interval" yaml:"cleanup_interval"`
	Retention       string `json:"retention" yaml:"retention"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
}

// ParseClient builds ClientOptions from args (without the program name).
func ParseClient(args []string) (*ClientOptions, error) {
	opts := &ClientOptions{
		BaseURL:        "http://localhost:8000",
		PollInterval:   3 * time.Second,
		CountdownTick:  time.Second,
		BlockedAfter:   5,
		RequestTimeout: 10 * time.Second,
		PendingFile:    "pending_logs.json",
		LogLevel:       "info",
		Config:         "station.yaml",
	}

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags := *opts
	fs.StringVarP(&flags.BaseURL, "url", "u", opts.BaseURL, "backend base URL")
	fs.StringVar(&flags.EventsURL, "events", "", "event stream URL (default: <url>/ws)")
	fs.StringVar(&flags.CertFile, "cert", "", "path to station client cert")
	fs.StringVar(&flags.KeyFile, "key", "", "path to station client key")
	fs.StringVar(&flags.CAFile, "ca", "", "path to CA cert")
	fs.DurationVar(&flags.PollInterval, "poll", opts.PollInterval, "scan poll interval")
	fs.DurationVar(&flags.CountdownTick, "countdown-tick", opts.CountdownTick, "capture countdown step")
	fs.IntVar(&flags.BlockedAfter, "blocked-after", opts.BlockedAfter, "failed acquire attempts before the reader is reported blocked")
	fs.IntVar(&flags.MaxAttempts, "max-attempts", 0, "give up acquiring the reader after this many attempts (0 = never)")
	fs.DurationVar(&flags.RequestTimeout, "timeout", opts.RequestTimeout, "request timeout")
	fs.StringVar(&flags.PendingFile, "pending", opts.PendingFile, "file holding unsent logs")
	fs.StringVarP(&flags.LogLevel, "log-level", "l", opts.LogLevel, "log level")
	fs.StringVarP(&flags.Config, "config", "c", opts.Config, "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.Config = pick(fs, "config", flags.Config, os.Getenv("CONFIG"), opts.Config)

	var file clientFile
	if err := readFile(opts.Config, &file); err != nil {
		return nil, err
	}
	if err := file.apply(opts); err != nil {
		return nil, err
	}

	loadDotEnv()
	if err := clientEnv(opts); err != nil {
		return nil, err
	}

	setIfChanged(fs, "url", &opts.BaseURL, flags.BaseURL)
	setIfChanged(fs, "events", &opts.EventsURL, flags.EventsURL)
	setIfChanged(fs, "cert", &opts.CertFile, flags.CertFile)
	setIfChanged(fs, "key", &opts.KeyFile, flags.KeyFile)
	setIfChanged(fs, "ca", &opts.CAFile, flags.CAFile)
	setIfChanged(fs, "poll", &opts.PollInterval, flags.PollInterval)
	setIfChanged(fs, "countdown-tick", &opts.CountdownTick, flags.CountdownTick)
	setIfChanged(fs, "blocked-after", &opts.BlockedAfter, flags.BlockedAfter)
	setIfChanged(fs, "max-attempts", &opts.MaxAttempts, flags.MaxAttempts)
	setIfChanged(fs, "timeout", &opts.RequestTimeout, flags.RequestTimeout)
	setIfChanged(fs, "pending", &opts.PendingFile, flags.PendingFile)
	setIfChanged(fs, "log-level", &opts.LogLevel, flags.LogLevel)

	if opts.EventsURL == "" {
		opts.EventsURL = eventsURL(opts.BaseURL)
	}
	if opts.PollInterval <= 0 || opts.CountdownTick <= 0 {
		return nil, fmt.Errorf("poll interval and countdown tick must be positive")
	}
	return opts, nil
}

// ParseServer builds ServerOptions from args (without the program name).
func ParseServer(args []string) (*ServerOptions, error) {
	opts := &ServerOptions{
		Addr:            "localhost:8000",
		LogQueue:        "inventory.log.created",
		CleanupInterval: time.Hour,
		Retention:       30 * 24 * time.Hour,
		LogLevel:        "info",
		Config:          "config.json",
	}

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags := *opts
	fs.StringVarP(&flags.Addr, "addr", "a", opts.Addr, "run on ip:port server")
	fs.StringVarP(&flags.DatabaseDSN, "dsn", "d", "", "db address")
	fs.StringVar(&flags.TLSCert, "tls-cert", "", "server certificate")
	fs.StringVar(&flags.TLSKey, "tls-key", "", "server key")
	fs.StringVar(&flags.ClientCA, "client-ca", "", "CA used to verify station certificates")
	fs.StringVar(&flags.RabbitURL, "rabbit", "", "RabbitMQ URL for log notifications")
	fs.StringVar(&flags.LogQueue, "log-queue", opts.LogQueue, "queue for log notifications")
	fs.DurationVar(&flags.CleanupInterval, "cleanup-interval", opts.CleanupInterval, "deleted box purge interval")
	fs.DurationVar(&flags.Retention, "retention", opts.Retention, "how long deleted boxes are kept")
	fs.StringVarP(&flags.LogLevel, "log-level", "l", opts.LogLevel, "log level")
	fs.StringVarP(&flags.Config, "config", "c", opts.Config, "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.Config = pick(fs, "config", flags.Config, os.Getenv("CONFIG"), opts.Config)

	var file serverFile
	if err := readFile(opts.Config, &file); err != nil {
		return nil, err
	}
	if err := file.apply(opts); err != nil {
		return nil, err
	}

	loadDotEnv()
	if err := serverEnv(opts); err != nil {
		return nil, err
	}

	setIfChanged(fs, "addr", &opts.Addr, flags.Addr)
	setIfChanged(fs, "dsn", &opts.DatabaseDSN, flags.DatabaseDSN)
	setIfChanged(fs, "tls-cert", &opts.TLSCert, flags.TLSCert)
	setIfChanged(fs, "tls-key", &opts.TLSKey, flags.TLSKey)
	setIfChanged(fs, "client-ca", &opts.ClientCA, flags.ClientCA)
	setIfChanged(fs, "rabbit", &opts.RabbitURL, flags.RabbitURL)
	setIfChanged(fs, "log-queue", &opts.LogQueue, flags.LogQueue)
	setIfChanged(fs, "cleanup-interval", &opts.CleanupInterval, flags.CleanupInterval)
	setIfChanged(fs, "retention", &opts.Retention, flags.Retention)
	setIfChanged(fs, "log-level", &opts.LogLevel, flags.LogLevel)

	return opts, nil
}

func (f clientFile) apply(o *ClientOptions) error {
	setString(&o.BaseURL, f.BaseURL)
	setString(&o.EventsURL, f.EventsURL)
	setString(&o.CertFile, f.CertFile)
	setString(&o.KeyFile, f.KeyFile)
	setString(&o.CAFile, f.CAFile)
	setString(&o.PendingFile, f.PendingFile)
	setString(&o.LogLevel, f.LogLevel)
	if f.BlockedAfter > 0 {
		o.BlockedAfter = f.BlockedAfter
	}
	if f.MaxAttempts > 0 {
		o.MaxAttempts = f.MaxAttempts
	}
	for _, d := range []struct {
		dst *time.Duration
		raw string
	}{
		{&o.PollInterval, f.PollInterval},
		{&o.CountdownTick, f.CountdownTick},
		{&o.RequestTimeout, f.RequestTimeout},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func (f serverFile) apply(o *ServerOptions) error {
	setString(&o.Addr, f.Addr)
	setString(&o.DatabaseDSN, f.DatabaseDSN)
	setString(&o.TLSCert, f.TLSCert)
	setString(&o.TLSKey, f.TLSKey)
	setString(&o.ClientCA, f.ClientCA)
	setString(&o.RabbitURL, f.RabbitURL)
	setString(&o.LogQueue, f.LogQueue)
	setString(&o.LogLevel, f.LogLevel)
	if err := setDuration(&o.CleanupInterval, f.CleanupInterval); err != nil {
		return err
	}
	return setDuration(&o.Retention, f.Retention)
}

func clientEnv(o *ClientOptions) error {
	setString(&o.BaseURL, os.Getenv("BACKEND_URL"))
	setString(&o.EventsURL, os.Getenv("EVENTS_URL"))
	setString(&o.PendingFile, os.Getenv("PENDING_FILE"))
	setString(&o.LogLevel, os.Getenv("LOG_LEVEL"))
	if err := setDuration(&o.PollInterval, os.Getenv("POLL_INTERVAL")); err != nil {
		return err
	}
	return setInt(&o.MaxAttempts, os.Getenv("ACQUIRE_MAX_ATTEMPTS"))
}

func serverEnv(o *ServerOptions) error {
	setString(&o.Addr, os.Getenv("SERVER_ADDRESS"))
	setString(&o.DatabaseDSN, os.Getenv("DATABASE_DSN"))
	setString(&o.RabbitURL, os.Getenv("RABBITMQ_URL"))
	setString(&o.LogLevel, os.Getenv("LOG_LEVEL"))
	return setDuration(&o.Retention, os.Getenv("BOX_RETENTION"))
}

// readFile decodes path into v by extension. A missing file is not an error.
func readFile(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

// loadDotEnv fills the environment from ./.env without overriding
// variables that are already set.
func loadDotEnv() {
	_ = godotenv.Load()
}

func eventsURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func pick(fs *pflag.FlagSet, name, flagVal, envVal, def string) string {
	if fs.Changed(name) {
		return flagVal
	}
	if envVal != "" {
		return envVal
	}
	return def
}

func setIfChanged[T any](fs *pflag.FlagSet, name string, dst *T, v T) {
	if fs.Changed(name) {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, raw string) error {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", raw, err)
	}
	*dst = n
	return nil
}
