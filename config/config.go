package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 黑手党投票策略
const (
	VotePolicyFirst  = "first"
	VotePolicyLatest = "latest"
)

var ErrInvalidVotePolicy = errors.New("invalid mafia vote policy")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Rooms    RoomsConfig    `mapstructure:"rooms"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	GRPCAddress    string        `mapstructure:"grpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	PublicURL      string        `mapstructure:"public_url"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// GameConfig 游戏节奏与规则开关
type GameConfig struct {
	SleepDelay            time.Duration `mapstructure:"sleep_delay"`
	ActionDelay           time.Duration `mapstructure:"action_delay"`
	WakeDelay             time.Duration `mapstructure:"wake_delay"`
	DiscussionDelay       time.Duration `mapstructure:"discussion_delay"`
	KickDelay             time.Duration `mapstructure:"kick_delay"`
	AbsentRoleDelay       time.Duration `mapstructure:"absent_role_delay"`
	MafiaVotePolicy       string        `mapstructure:"mafia_vote_policy"`
	AllowNameRecovery     bool          `mapstructure:"allow_name_recovery"`
	MinPlayers            int           `mapstructure:"min_players"`
	RevealRolesOnGameOver bool          `mapstructure:"reveal_roles_on_game_over"`
}

type RoomsConfig struct {
	CodeLength   int           `mapstructure:"code_length"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	FinishedTTL  time.Duration `mapstructure:"finished_ttl"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr  string `mapstructure:"addr"`
	DB    int    `mapstructure:"db"`
	Queue string `mapstructure:"queue"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.grpc_address", ":9091")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.public_url", "http://localhost:5173")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.read_limit", 4096)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("game.sleep_delay", 4500*time.Millisecond)
	v.SetDefault("game.action_delay", 2*time.Second)
	v.SetDefault("game.wake_delay", 4500*time.Millisecond)
	v.SetDefault("game.discussion_delay", 5*time.Second)
	v.SetDefault("game.kick_delay", 3*time.Second)
	v.SetDefault("game.absent_role_delay", 5*time.Second)
	v.SetDefault("game.mafia_vote_policy", VotePolicyFirst)
	v.SetDefault("game.allow_name_recovery", true)
	v.SetDefault("game.min_players", 0)
	v.SetDefault("game.reveal_roles_on_game_over", true)

	v.SetDefault("rooms.code_length", 4)
	v.SetDefault("rooms.idle_ttl", 30*time.Minute)
	v.SetDefault("rooms.finished_ttl", 10*time.Minute)
	v.SetDefault("rooms.reap_interval", time.Minute)

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "mafia")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "mafia")
	v.SetDefault("database.sqlite.path", "data/mafia.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "mafia_events")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and MAFIA_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("mafia")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes enumerated settings and rejects values nothing handles.
func (c *Config) Validate() error {
	policy := strings.ToLower(strings.TrimSpace(c.Game.MafiaVotePolicy))
	switch policy {
	case VotePolicyFirst, VotePolicyLatest:
		c.Game.MafiaVotePolicy = policy
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidVotePolicy,
			c.Game.MafiaVotePolicy, VotePolicyFirst, VotePolicyLatest)
	}
	return nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
