package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed remediation.yaml
var remediationYAML []byte

type Config struct {
	Environment string // APP_ENV, e.g. "production"
	Web         WebConfig
	Database    DatabaseConfig
	AssetStore  AssetStoreConfig
	Matching    MatchingConfig
	Remediation RemediationConfig
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // in addition to localhost
	AuthTokens     []string // bearer tokens accepted on mutating routes
}

type DatabaseConfig struct {
	Driver       string // memory, postgres, mariadb or sqlite
	URL          string // connection URL or DSN for the driver
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type AssetStoreConfig struct {
	Endpoint  string // S3-compatible endpoint host[:port]
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL for public object links; defaults to endpoint/bucket
	Mock      bool   // in-memory placeholder store, refused in production
}

// Configured reports whether every credential needed for uploads is present.
func (c *AssetStoreConfig) Configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type MatchingConfig struct {
	Threshold    float64       // minimum confidence for a match (exclusive)
	Interval     time.Duration // sampling cadence of a capture session
	MaxFrameSize int           // frames are scaled down to fit this many pixels per side
}

// RemediationConfig maps camera error kinds to user-facing guidance.
type RemediationConfig struct {
	Errors map[string]Remediation `yaml:"errors"`
}

type Remediation struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// For returns the remediation text for an error kind, or an empty string.
func (c RemediationConfig) For(kind string) string {
	r, ok := c.Errors[kind]
	if !ok {
		return ""
	}
	if r.Title == "" {
		return r.Message
	}
	return r.Title + ": " + r.Message
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a float in (0, 1]. Returns the default if unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// LoadRemediation parses the embedded remediation catalogue.
func LoadRemediation() RemediationConfig {
	var r RemediationConfig
	if err := yaml.Unmarshal(remediationYAML, &r); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded remediation.yaml: " + err.Error())
	}
	return r
}

func Load() *Config {
	return &Config{
		Environment: os.Getenv("APP_ENV"),
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			AuthTokens:     envList("AUTH_TOKENS"),
		},
		Database: DatabaseConfig{
			Driver:       envString("DATABASE_DRIVER", "memory"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		AssetStore: AssetStoreConfig{
			Endpoint:  os.Getenv("ASSETSTORE_ENDPOINT"),
			Region:    envString("ASSETSTORE_REGION", "us-east-1"),
			AccessKey: os.Getenv("ASSETSTORE_ACCESS_KEY"),
			SecretKey: os.Getenv("ASSETSTORE_SECRET_KEY"),
			Bucket:    os.Getenv("ASSETSTORE_BUCKET"),
			UseSSL:    envBool("ASSETSTORE_USE_SSL"),
			PublicURL: strings.TrimSuffix(os.Getenv("ASSETSTORE_PUBLIC_URL"), "/"),
			Mock:      envBool("ASSETSTORE_MOCK"),
		},
		Matching: MatchingConfig{
			Threshold:    envFloat("MATCH_THRESHOLD", 0.7),
			Interval:     time.Duration(envInt("MATCH_INTERVAL_MS", 1000)) * time.Millisecond,
			MaxFrameSize: envInt("MATCH_MAX_FRAME_SIZE", 640),
		},
		Remediation: LoadRemediation(),
	}
}
