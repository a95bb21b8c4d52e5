package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 例如 CROSSKEY_SERVER_HTTP_ADDRESS
const EnvPrefix = "CROSSKEY"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Room     RoomConfig     `mapstructure:"room"`
	Puzzle   PuzzleConfig   `mapstructure:"puzzle"`
	Database DatabaseConfig `mapstructure:"database"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Verbose  bool           `mapstructure:"verbose"`
}

type ServerConfig struct {
	HTTPAddress  string        `mapstructure:"http_address"`
	RPCAddress   string        `mapstructure:"rpc_address"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	Prefix       string        `mapstructure:"prefix"`
	Profile      bool          `mapstructure:"profile"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	PublicURL    string        `mapstructure:"public_url"`
}

// Paired notification policies.
const (
	PairedAlways   = "always"
	PairedCrossing = "crossing"
)

type RoomConfig struct {
	PairedNotify string `mapstructure:"paired_notify"`
}

type PuzzleConfig struct {
	AudioThreshold   float64       `mapstructure:"audio_threshold"`
	ShakeThreshold   float64       `mapstructure:"shake_threshold"`
	ShakeMinInterval time.Duration `mapstructure:"shake_min_interval"`
	ShakeRequired    int           `mapstructure:"shake_required"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type MonitorConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddress:  "0.0.0.0:3001",
			AllowOrigins: []string{},
			Heartbeat:    25 * time.Second,
		},
		Room: RoomConfig{PairedNotify: PairedAlways},
		Puzzle: PuzzleConfig{
			AudioThreshold:   0.35,
			ShakeThreshold:   18,
			ShakeMinInterval: 280 * time.Millisecond,
			ShakeRequired:    8,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, DBName: "crosskey"},
		},
		Monitor: MonitorConfig{Namespace: "crosskey"},
	}
}

// New returns a viper instance wired to the environment with every default set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("server.http_address", d.Server.HTTPAddress)
	v.SetDefault("server.rpc_address", d.Server.RPCAddress)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)
	v.SetDefault("server.prefix", d.Server.Prefix)
	v.SetDefault("server.profile", d.Server.Profile)
	v.SetDefault("server.heartbeat", d.Server.Heartbeat)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("room.paired_notify", d.Room.PairedNotify)
	v.SetDefault("puzzle.audio_threshold", d.Puzzle.AudioThreshold)
	v.SetDefault("puzzle.shake_threshold", d.Puzzle.ShakeThreshold)
	v.SetDefault("puzzle.shake_min_interval", d.Puzzle.ShakeMinInterval)
	v.SetDefault("puzzle.shake_required", d.Puzzle.ShakeRequired)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.postgres.host", d.Database.Postgres.Host)
	v.SetDefault("database.postgres.port", d.Database.Postgres.Port)
	v.SetDefault("database.postgres.user", d.Database.Postgres.User)
	v.SetDefault("database.postgres.password", d.Database.Postgres.Password)
	v.SetDefault("database.postgres.dbname", d.Database.Postgres.DBName)
	v.SetDefault("monitor.namespace", d.Monitor.Namespace)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("verbose", d.Verbose)
	return v
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"http-address":     "server.http_address",
	"rpc-address":      "server.rpc_address",
	"allow-origins":    "server.allow_origins",
	"prefix":           "server.prefix",
	"profile":          "server.profile",
	"heartbeat":        "server.heartbeat",
	"public-url":       "server.public_url",
	"paired-notify":    "room.paired_notify",
	"database-driver":  "database.driver",
	"database-dsn":     "database.dsn",
	"tracing-endpoint": "tracing.endpoint",
	"verbose":          "verbose",
}

// BindFlags defines the command line flags on fs and binds them to v.
// A flag only overrides env and file values when it is set explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	d := Default()
	fs.String("http-address", d.Server.HTTPAddress, "address the HTTP and websocket listener binds to (env: CROSSKEY_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-address", d.Server.RPCAddress, "address for the gRPC health endpoint, empty disables it (env: CROSSKEY_SERVER_RPC_ADDRESS)")
	fs.StringSlice("allow-origins", d.Server.AllowOrigins, "origins allowed to open websockets, empty allows all (env: CROSSKEY_SERVER_ALLOW_ORIGINS)")
	fs.String("prefix", d.Server.Prefix, "path to prepend to all URLs, for use behind reverse proxy (env: CROSSKEY_SERVER_PREFIX)")
	fs.Bool("profile", d.Server.Profile, "register net/http/pprof handlers (env: CROSSKEY_SERVER_PROFILE)")
	fs.Duration("heartbeat", d.Server.Heartbeat, "websocket ping interval (env: CROSSKEY_SERVER_HEARTBEAT)")
	fs.String("public-url", d.Server.PublicURL, "base URL encoded in pairing QR codes (env: CROSSKEY_SERVER_PUBLIC_URL)")
	fs.String("paired-notify", d.Room.PairedNotify, "when to emit paired: always or crossing (env: CROSSKEY_ROOM_PAIRED_NOTIFY)")
	fs.String("database-driver", d.Database.Driver, "audit store: gorm, postgres, sqlite or empty to disable (env: CROSSKEY_DATABASE_DRIVER)")
	fs.String("database-dsn", d.Database.DSN, "audit store DSN (env: CROSSKEY_DATABASE_DSN)")
	fs.String("tracing-endpoint", d.Tracing.Endpoint, "OTLP/HTTP endpoint, empty disables tracing (env: CROSSKEY_TRACING_ENDPOINT)")
	fs.BoolP("verbose", "v", d.Verbose, "display additional output (env: CROSSKEY_VERBOSE)")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads config.yaml from dir when present, then unmarshals and validates.
func Load(v *viper.Viper, dir string) (*Config, error) {
	if dir != "" {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Prefix = strings.TrimSuffix(c.Server.Prefix, "/")
	if c.Server.Prefix != "" && !strings.HasPrefix(c.Server.Prefix, "/") {
		c.Server.Prefix = "/" + c.Server.Prefix
	}
	c.Server.PublicURL = strings.TrimSuffix(c.Server.PublicURL, "/")
	c.Room.PairedNotify = strings.ToLower(strings.TrimSpace(c.Room.PairedNotify))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))

	origins := c.Server.AllowOrigins[:0]
	for _, o := range c.Server.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.AllowOrigins = origins
}

func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return errors.New("server.http_address must not be empty")
	}
	if c.Server.Heartbeat <= 0 {
		return fmt.Errorf("server.heartbeat must be positive: %s", c.Server.Heartbeat)
	}
	switch c.Room.PairedNotify {
	case PairedAlways, PairedCrossing:
	default:
		return fmt.Errorf("room.paired_notify must be %q or %q: %q", PairedAlways, PairedCrossing, c.Room.PairedNotify)
	}
	if c.Puzzle.AudioThreshold <= 0 || c.Puzzle.AudioThreshold > 1 {
		return fmt.Errorf("puzzle.audio_threshold must be in (0, 1]: %v", c.Puzzle.AudioThreshold)
	}
	if c.Puzzle.ShakeThreshold <= 0 {
		return fmt.Errorf("puzzle.shake_threshold must be positive: %v", c.Puzzle.ShakeThreshold)
	}
	if c.Puzzle.ShakeMinInterval < 0 {
		return fmt.Errorf("puzzle.shake_min_interval must not be negative: %s", c.Puzzle.ShakeMinInterval)
	}
	if c.Puzzle.ShakeRequired < 1 {
		return fmt.Errorf("puzzle.shake_required must be at least 1: %d", c.Puzzle.ShakeRequired)
	}
	switch c.Database.Driver {
	case "", "gorm", "postgres":
	case "sqlite":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Monitor.Namespace == "" {
		return errors.New("monitor.namespace must not be empty")
	}
	return nil
}
