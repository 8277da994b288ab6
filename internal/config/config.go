package config

import (
	"fmt"
	"time"

	"github.com/turtacn/authcore/pkg/constants"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Keys      KeysConfig      `mapstructure:"keys"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Environment     string        `mapstructure:"environment"`
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PprofEnabled    bool          `mapstructure:"pprof_enabled"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// IsProduction reports whether ephemeral key material must be refused.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
	SecretKey  string `mapstructure:"secret_key"`
}

type KeysConfig struct {
	// MasterKey is the base64 MEK, normally supplied as AUTHCORE_KEYS_MASTER_KEY.
	MasterKey            string        `mapstructure:"master_key"`
	RSAKeyBits           int           `mapstructure:"rsa_key_bits"`
	RotationInterval     time.Duration `mapstructure:"rotation_interval"`
	RotationCheckPeriod  time.Duration `mapstructure:"rotation_check_period"`
	Persist              bool          `mapstructure:"persist"`
	DebugLogEphemeralKey bool          `mapstructure:"debug_log_ephemeral_key"`
}

type JWTConfig struct {
	Issuer               string        `mapstructure:"issuer"`
	UserTokenTTL         time.Duration `mapstructure:"user_token_ttl"`
	AdminTokenTTL        time.Duration `mapstructure:"admin_token_ttl"`
	AdminTokenMaxTTL     time.Duration `mapstructure:"admin_token_max_ttl"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	ClientCredentialsTTL time.Duration `mapstructure:"client_credentials_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	// SessionRefreshWindow is how long after expiry a user session token may be renewed.
	SessionRefreshWindow time.Duration `mapstructure:"session_refresh_window"`
}

// MaxTokenTTL is the longest lifetime any signed token can have. Retired signing keys
// are retained at least this long.
func (c JWTConfig) MaxTokenTTL() time.Duration {
	max := c.UserTokenTTL
	for _, ttl := range []time.Duration{c.AdminTokenTTL, c.AdminTokenMaxTTL, c.AccessTokenTTL, c.ClientCredentialsTTL} {
		if ttl > max {
			max = ttl
		}
	}
	return max
}

type OAuthConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	ClientSecretTTL time.Duration `mapstructure:"client_secret_ttl"`
	DefaultScope    string        `mapstructure:"default_scope"`
	SupportedScopes []string      `mapstructure:"supported_scopes"`
	CodeStore       string        `mapstructure:"code_store"` // database | redis
	Argon2          Argon2Config  `mapstructure:"argon2"`
}

type Argon2Config struct {
	Time      uint32 `mapstructure:"time"`
	MemoryKiB uint32 `mapstructure:"memory_kib"`
	Threads   uint8  `mapstructure:"threads"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	LocalFallback     bool `mapstructure:"local_fallback"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// RevocationFanout makes every instance consume token_revoked audit events and
	// mirror them into its local revocation store. Needed only without Redis.
	RevocationFanout bool   `mapstructure:"revocation_fanout"`
	ConsumerGroup    string `mapstructure:"consumer_group"`
}

type AuditConfig struct {
	Sink string `mapstructure:"sink"` // kafka | database | log
}

type AdminConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Keys.RSAKeyBits < constants.MinRSAKeyBits {
		return fmt.Errorf("keys.rsa_key_bits must be at least %d, got %d", constants.MinRSAKeyBits, c.Keys.RSAKeyBits)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.OAuth.CodeStore {
	case "database":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("oauth.code_store=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("oauth.code_store must be database or redis, got %q", c.OAuth.CodeStore)
	}
	switch c.Audit.Sink {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("audit.sink=kafka requires kafka.brokers")
		}
	case "database", "log":
	default:
		return fmt.Errorf("audit.sink must be kafka, database or log, got %q", c.Audit.Sink)
	}
	if c.Kafka.RevocationFanout && c.Audit.Sink != "kafka" {
		return fmt.Errorf("kafka.revocation_fanout requires audit.sink=kafka")
	}

	ttls := map[string]time.Duration{
		"jwt.user_token_ttl":         c.JWT.UserTokenTTL,
		"jwt.admin_token_ttl":        c.JWT.AdminTokenTTL,
		"jwt.admin_token_max_ttl":    c.JWT.AdminTokenMaxTTL,
		"jwt.access_token_ttl":       c.JWT.AccessTokenTTL,
		"jwt.client_credentials_ttl": c.JWT.ClientCredentialsTTL,
		"jwt.refresh_token_ttl":      c.JWT.RefreshTokenTTL,
		"oauth.code_ttl":             c.OAuth.CodeTTL,
		"oauth.client_secret_ttl":    c.OAuth.ClientSecretTTL,
		"keys.rotation_interval":     c.Keys.RotationInterval,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL {
		return fmt.Errorf("jwt.refresh_token_ttl must not be shorter than jwt.access_token_ttl")
	}
	if c.JWT.SessionRefreshWindow < 0 {
		return fmt.Errorf("jwt.session_refresh_window must not be negative")
	}
	if c.JWT.AdminTokenTTL > c.JWT.AdminTokenMaxTTL {
		return fmt.Errorf("jwt.admin_token_ttl exceeds jwt.admin_token_max_ttl")
	}
	if c.OAuth.Argon2.Time == 0 || c.OAuth.Argon2.MemoryKiB == 0 || c.OAuth.Argon2.Threads == 0 {
		return fmt.Errorf("oauth.argon2 parameters must be positive")
	}
	if c.Vault.Enabled && (c.Vault.Address == "" || c.Vault.SecretPath == "") {
		return fmt.Errorf("vault.enabled requires vault.address and vault.secret_path")
	}
	return nil
}
