package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/authcore/pkg/constants"
)

// EnvPrefix is prepended to every environment override, e.g. AUTHCORE_KEYS_MASTER_KEY.
const EnvPrefix = "AUTHCORE"

// Loader reads configuration from file and environment and can watch the file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. configFile may be empty, in which case config.yaml is looked
// up in /etc/authcore/ and the working directory.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/authcore/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads the configuration, tolerating a missing config file.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.decode()
}

// Watch re-decodes the configuration whenever the config file changes. Invalid
// configurations are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig is a convenience wrapper around NewLoader(configFile).Load().
func LoadConfig(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8081)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.pprof_enabled", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "authcore")
	v.SetDefault("database.database", "authcore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "authcore.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "authcore/master-key")
	v.SetDefault("vault.secret_key", "master_encryption_key")

	v.SetDefault("keys.master_key", "")
	v.SetDefault("keys.rsa_key_bits", constants.DefaultRSAKeyBits)
	v.SetDefault("keys.rotation_interval", constants.KeyRotationInterval)
	v.SetDefault("keys.rotation_check_period", time.Hour)
	v.SetDefault("keys.persist", true)
	v.SetDefault("keys.debug_log_ephemeral_key", false)

	v.SetDefault("jwt.issuer", "authcore")
	v.SetDefault("jwt.user_token_ttl", constants.UserTokenTTL)
	v.SetDefault("jwt.admin_token_ttl", constants.AdminTokenTTL)
	v.SetDefault("jwt.admin_token_max_ttl", constants.AdminTokenTTL)
	v.SetDefault("jwt.access_token_ttl", constants.OAuthAccessTokenTTL)
	v.SetDefault("jwt.client_credentials_ttl", constants.ClientCredentialsTokenTTL)
	v.SetDefault("jwt.refresh_token_ttl", constants.RefreshTokenTTL)
	v.SetDefault("jwt.session_refresh_window", constants.SessionRefreshWindow)

	v.SetDefault("oauth.base_url", "http://localhost:8081")
	v.SetDefault("oauth.code_ttl", constants.AuthorizationCodeTTL)
	v.SetDefault("oauth.client_secret_ttl", constants.ClientSecretTTL)
	v.SetDefault("oauth.default_scope", "fitness:read activities:read profile:read")
	v.SetDefault("oauth.supported_scopes", []string{"fitness:read", "fitness:write", "activities:read", "profile:read"})
	v.SetDefault("oauth.code_store", "database")
	v.SetDefault("oauth.argon2.time", 1)
	v.SetDefault("oauth.argon2.memory_kib", 64*1024)
	v.SetDefault("oauth.argon2.threads", 4)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.local_fallback", true)

	v.SetDefault("kafka.audit_topic", "authcore.audit")
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.required_acks", 1)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", time.Second)
	v.SetDefault("kafka.consumer_group", "authcore-revocations")

	v.SetDefault("audit.sink", "log")
	v.SetDefault("admin.cache_ttl", constants.AdminTokenCacheTTL)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "authcore")
	v.SetDefault("tracing.sampling_rate", 0.1)
}
