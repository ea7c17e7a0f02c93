package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	GRPCAddress    string        `mapstructure:"grpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	PublicURL      string        `mapstructure:"public_url"`
	StateCodec     string        `mapstructure:"state_codec"` // json or msgpack
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	SendQueueSize  int           `mapstructure:"send_queue_size"`
}

type GameConfig struct {
	TickRate        int           `mapstructure:"tick_rate"`
	BroadcastEvery  int           `mapstructure:"broadcast_every"`
	MaxPlayers      int           `mapstructure:"max_players"`
	Width           float64       `mapstructure:"width"`
	Height          float64       `mapstructure:"height"`
	MatchDuration   time.Duration `mapstructure:"match_duration"`
	GoalPause       time.Duration `mapstructure:"goal_pause"`
	IdleRoomTimeout time.Duration `mapstructure:"idle_room_timeout"`
	MirrorInterval  time.Duration `mapstructure:"mirror_interval"`
	Physics         PhysicsConfig `mapstructure:"physics"`
}

type PhysicsConfig struct {
	PlayerRadius    float64 `mapstructure:"player_radius"`
	BallRadius      float64 `mapstructure:"ball_radius"`
	PlayerSpeed     float64 `mapstructure:"player_speed"`
	Friction        float64 `mapstructure:"friction"`
	StopEpsilon     float64 `mapstructure:"stop_epsilon"`
	GoalMouthHeight float64 `mapstructure:"goal_mouth_height"`
	KickStrength    float64 `mapstructure:"kick_strength"`
	KickBoost       float64 `mapstructure:"kick_boost"`
	WallRestitution float64 `mapstructure:"wall_restitution"`
	CornerSize      float64 `mapstructure:"corner_size"`
	PlayerMass      float64 `mapstructure:"player_mass"`
	BallMass        float64 `mapstructure:"ball_mass"`
	MaxBallSpeed    float64 `mapstructure:"max_ball_speed"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, postgres, gorm, sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.grpc_address", ":8082")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.state_codec", "json")
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.send_queue_size", 64)

	v.SetDefault("game.tick_rate", 60)
	v.SetDefault("game.broadcast_every", 1)
	v.SetDefault("game.max_players", 6)
	v.SetDefault("game.width", 800.0)
	v.SetDefault("game.height", 600.0)
	v.SetDefault("game.match_duration", 60*time.Second)
	v.SetDefault("game.goal_pause", 1500*time.Millisecond)
	v.SetDefault("game.idle_room_timeout", 30*time.Second)
	v.SetDefault("game.mirror_interval", 5*time.Second)

	v.SetDefault("game.physics.player_radius", 20.0)
	v.SetDefault("game.physics.ball_radius", 10.0)
	v.SetDefault("game.physics.player_speed", 150.0)
	v.SetDefault("game.physics.friction", 0.98)
	v.SetDefault("game.physics.stop_epsilon", 2.0)
	v.SetDefault("game.physics.goal_mouth_height", 200.0)
	v.SetDefault("game.physics.kick_strength", 360.0)
	v.SetDefault("game.physics.kick_boost", 1.8)
	v.SetDefault("game.physics.wall_restitution", 0.7)
	v.SetDefault("game.physics.corner_size", 80.0)
	v.SetDefault("game.physics.player_mass", 4.0)
	v.SetDefault("game.physics.ball_mass", 1.0)
	v.SetDefault("game.physics.max_ball_speed", 900.0)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "postgres")
	v.SetDefault("database.postgres.dbname", "football_db")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.sqlite.path", "soccer.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "soccer.rooms")

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and SOCCER_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("soccer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	return &cfg, nil
}
