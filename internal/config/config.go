package config

import "time"

// DefaultListenAddr is the default address the server listens on.
const DefaultListenAddr = ":8080"

// Default values applied to missing fields.
const (
	DefaultMediaMTXAPIURL     = "http://localhost:9997"
	DefaultMediaMTXMetricsURL = "http://localhost:9998/metrics"
	DefaultMediaMTXTimeout    = 10 * time.Second
	DefaultRefreshInterval    = 5 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// MinRefreshInterval is the shortest allowed refresh interval.
const MinRefreshInterval = time.Second

// MediaMTX holds the configuration for the MediaMTX instance.
type MediaMTX struct {
	APIURL     string        `yaml:"apiURL"`
	MetricsURL string        `yaml:"metricsURL"`
	Username   string        `yaml:"username,omitempty"`
	Password   string        `yaml:"password,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Database holds the configuration for the local store.
type Database struct {
	Path string `yaml:"path,omitempty"`
}

// Refresh holds the configuration for the background refresher.
type Refresh struct {
	Interval time.Duration `yaml:"interval"`
}

// CORS holds the CORS configuration for browser clients.
type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// TLS holds the TLS configuration. If both paths are empty and SelfSigned is
// false, the server listens in cleartext.
type TLS struct {
	CertPath   string `yaml:"certPath,omitempty"`
	KeyPath    string `yaml:"keyPath,omitempty"`
	SelfSigned bool   `yaml:"selfSigned,omitempty"`
}

// Enabled returns true if the server should serve TLS.
func (t TLS) Enabled() bool {
	return t.SelfSigned || t.CertPath != ""
}

// LogFile holds the configuration for the log file.
type LogFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Config holds the configuration for the application.
type Config struct {
	ListenAddr string   `yaml:"listenAddr"`
	MediaMTX   MediaMTX `yaml:"mediamtx"`
	Database   Database `yaml:"database"`
	Refresh    Refresh  `yaml:"refresh"`
	CORS       CORS     `yaml:"cors"`
	TLS        TLS      `yaml:"tls,omitempty"`
	LogFile    LogFile  `yaml:"logFile"`
	LogLevel   string   `yaml:"logLevel"`
	LogFormat  string   `yaml:"logFormat"`
}
