// Package config loads a coordinator's TOML configuration with
// spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/onceguard/internal/auth"
	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/logger"
	"github.com/loykin/onceguard/internal/store"
)

// FileConfig is the top-level TOML structure for a onceguard deployment.
type FileConfig struct {
	ProcessorID       string        `toml:"processor_id" mapstructure:"processor_id"`
	TableName         string        `toml:"table_name" mapstructure:"table_name"`
	MaxProcessingTime time.Duration `toml:"max_processing_time" mapstructure:"max_processing_time"`
	TTL               time.Duration `toml:"ttl" mapstructure:"ttl"`
	Poll              PollConfig    `toml:"poll" mapstructure:"poll"`
	Store             StoreConfig   `toml:"store" mapstructure:"store"`
	Audit             AuditConfig   `toml:"audit" mapstructure:"audit"`
	Log               LogConfig     `toml:"log" mapstructure:"log"`
	Server            ServerConfig  `toml:"server" mapstructure:"server"`
	Auth              AuthConfig    `toml:"auth" mapstructure:"auth"`
	Sweep             SweepConfig   `toml:"sweep" mapstructure:"sweep"`
}

// SweepConfig configures the periodic reclaim of expired completed
// records for backends with no native TTL eviction.
type SweepConfig struct {
	Schedule string `toml:"schedule" mapstructure:"schedule"` // "@every <duration>" only, e.g. "@every 1h"
}

type PollConfig struct {
	InitialDelay      time.Duration `toml:"initial_delay" mapstructure:"initial_delay"`
	MaxPollDuration   time.Duration `toml:"max_poll_duration" mapstructure:"max_poll_duration"`
	MaxDelay          time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	BackoffMultiplier float64       `toml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// StoreConfig configures the backing dedup.Store. Type is "sqlite" or
// "postgres", matching the registry key in internal/store.
type StoreConfig struct {
	Type      string `toml:"type" mapstructure:"type"`
	DSN       string `toml:"dsn" mapstructure:"dsn"`
	TableName string `toml:"table_name" mapstructure:"table_name"`
}

// AuditConfig configures an optional audit sink. DSN scheme selects the
// backend exactly like internal/audit/factory.NewSinkFromDSN: empty means
// no audit trail.
type AuditConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
}

type ServerConfig struct {
	Bind          string     `toml:"bind" mapstructure:"bind"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig configures how internal/tls terminates the HTTP API.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS configures a self-signed certificate internal/tls generates
// when no certificate exists yet in TLSConfig.Dir.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type AuthConfig struct {
	AdminUsername     string        `toml:"admin_username" mapstructure:"admin_username"`
	AdminPasswordHash string        `toml:"admin_password_hash" mapstructure:"admin_password_hash"`
	JWTSecret         string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
	APIKeys           []string      `toml:"api_keys" mapstructure:"api_keys"`
}

// Load reads path as TOML, then applies ONCEGUARD_* environment overrides
// on top of it via viper's built-in AutomaticEnv.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("ONCEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	fc.applyDefaults()
	return &fc, nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.TableName == "" {
		fc.TableName = "dedup_process"
	}
	if fc.MaxProcessingTime == 0 {
		fc.MaxProcessingTime = 5 * time.Minute
	}
	if fc.TTL == 0 {
		fc.TTL = 24 * time.Hour
	}
	if fc.Poll.InitialDelay == 0 {
		fc.Poll.InitialDelay = 50 * time.Millisecond
	}
	if fc.Poll.MaxPollDuration == 0 {
		fc.Poll.MaxPollDuration = 30 * time.Second
	}
	if fc.Poll.MaxDelay == 0 {
		fc.Poll.MaxDelay = 2 * time.Second
	}
	if fc.Poll.BackoffMultiplier == 0 {
		fc.Poll.BackoffMultiplier = 1.5
	}
	if fc.Store.Type == "" {
		fc.Store.Type = "sqlite"
	}
	if fc.Store.TableName == "" {
		fc.Store.TableName = fc.TableName
	}
	if fc.Server.Bind == "" {
		fc.Server.Bind = ":8080"
	}
	if fc.Auth.TokenTTL == 0 {
		fc.Auth.TokenTTL = time.Hour
	}
	if fc.Sweep.Schedule == "" {
		fc.Sweep.Schedule = "@every 1h"
	}
}

// DedupConfig builds a dedup.Config from the parsed poll and timing
// settings.
func (fc *FileConfig) DedupConfig() dedup.Config[dedup.StringKey] {
	return dedup.Config[dedup.StringKey]{
		ProcessorID:       dedup.StringKey(fc.ProcessorID),
		MaxProcessingTime: fc.MaxProcessingTime,
		TTL:               fc.TTL,
		Poll: dedup.ExponentialBackoff(
			fc.Poll.InitialDelay,
			fc.Poll.MaxPollDuration,
			fc.Poll.MaxDelay,
			fc.Poll.BackoffMultiplier,
		),
	}
}

// StoreBuilderConfig converts the parsed store section into an
// internal/store.Config.
func (fc *FileConfig) StoreBuilderConfig() store.Config {
	return store.Config{
		Type:      fc.Store.Type,
		DSN:       fc.Store.DSN,
		TableName: fc.Store.TableName,
	}
}

// LoggerConfig converts the parsed log section into an internal/logger.Config.
func (fc *FileConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Dir:        fc.Log.Dir,
		Path:       fc.Log.Path,
		MaxSizeMB:  fc.Log.MaxSizeMB,
		MaxBackups: fc.Log.MaxBackups,
		MaxAgeDays: fc.Log.MaxAgeDays,
		Compress:   fc.Log.Compress,
		Level:      fc.Log.Level,
		Color:      fc.Log.Color,
	}
}

// AuthServiceConfig converts the parsed auth section into an
// internal/auth.Config.
func (fc *FileConfig) AuthServiceConfig() auth.Config {
	return auth.Config{
		AdminUsername:     fc.Auth.AdminUsername,
		AdminPasswordHash: fc.Auth.AdminPasswordHash,
		JWTSecret:         fc.Auth.JWTSecret,
		TokenTTL:          fc.Auth.TokenTTL,
		APIKeys:           fc.Auth.APIKeys,
	}
}
