package config

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/xdg"
	"gopkg.in/yaml.v3"
)

// Service provides configuration services.
type Service struct {
	userConfigDir string
	appConfigDir  string
	appStateDir   string
}

// ConfigDirFunc is a function that returns the user configuration directory.
type ConfigDirFunc func() (string, error)

// NewDefaultService creates a new service with the default configuration file
// location.
func NewDefaultService() (*Service, error) {
	return NewService(os.UserConfigDir)
}

// NewService creates a new service with provided ConfigDirFunc.
//
// The app data directories (config and state) are created if they do not
// exist.
func NewService(configDirFunc ConfigDirFunc) (*Service, error) {
	configDir, err := configDirFunc()
	if err != nil {
		return nil, fmt.Errorf("user config dir: %w", err)
	}

	appConfigDir, err := createAppConfigDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("app config dir: %w", err)
	}

	appStateDir, err := xdg.CreateAppStateDir()
	if err != nil {
		return nil, fmt.Errorf("app state dir: %w", err)
	}

	return &Service{
		userConfigDir: configDir,
		appConfigDir:  appConfigDir,
		appStateDir:   appStateDir,
	}, nil
}

// Overrides holds values from command line flags or environment variables,
// which take precedence over the config file. Empty values are ignored.
type Overrides struct {
	ListenAddr     string
	MediaMTXAPIURL string
	DatabasePath   string
	LogLevel       string
}

// Load reads or creates the configuration file, applies the overrides and
// validates the result.
func (s *Service) Load(overrides Overrides) (Config, error) {
	cfg, err := s.ReadOrCreateConfig()
	if err != nil {
		return cfg, err
	}

	cfg.ListenAddr = cmp.Or(overrides.ListenAddr, cfg.ListenAddr)
	cfg.MediaMTX.APIURL = cmp.Or(overrides.MediaMTXAPIURL, cfg.MediaMTX.APIURL)
	cfg.Database.Path = cmp.Or(overrides.DatabasePath, cfg.Database.Path)
	cfg.LogLevel = cmp.Or(overrides.LogLevel, cfg.LogLevel)

	if err = Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ReadOrCreateConfig reads the configuration from the file at the given path or
// creates it with default values.
func (s *Service) ReadOrCreateConfig() (cfg Config, _ error) {
	if _, err := os.Stat(s.Path()); os.IsNotExist(err) {
		return s.createConfig()
	} else if err != nil {
		return cfg, fmt.Errorf("stat: %w", err)
	}

	return s.readConfig()
}

func (s *Service) readConfig() (cfg Config, _ error) {
	contents, err := os.ReadFile(s.Path())
	if err != nil {
		return cfg, fmt.Errorf("read file: %w", err)
	}

	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal: %w", err)
	}

	s.setDefaults(&cfg)

	if err = Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (s *Service) createConfig() (cfg Config, _ error) {
	if err := os.MkdirAll(s.appConfigDir, 0744); err != nil {
		return cfg, fmt.Errorf("mkdir: %w", err)
	}

	s.setDefaults(&cfg)

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("marshal: %w", err)
	}

	if err = os.WriteFile(s.Path(), yamlBytes, 0644); err != nil {
		return cfg, fmt.Errorf("write file: %w", err)
	}

	return cfg, nil
}

// Path returns the path of the config file.
func (s *Service) Path() string {
	return filepath.Join(s.appConfigDir, "config.yaml")
}

func (s *Service) setDefaults(cfg *Config) {
	cfg.ListenAddr = cmp.Or(cfg.ListenAddr, DefaultListenAddr)
	cfg.MediaMTX.APIURL = cmp.Or(cfg.MediaMTX.APIURL, DefaultMediaMTXAPIURL)
	cfg.MediaMTX.MetricsURL = cmp.Or(cfg.MediaMTX.MetricsURL, DefaultMediaMTXMetricsURL)
	cfg.MediaMTX.Timeout = cmp.Or(cfg.MediaMTX.Timeout, DefaultMediaMTXTimeout)
	cfg.Database.Path = cmp.Or(cfg.Database.Path, filepath.Join(s.appStateDir, domain.AppName+".db"))
	cfg.Refresh.Interval = cmp.Or(cfg.Refresh.Interval, DefaultRefreshInterval)
	cfg.LogLevel = cmp.Or(cfg.LogLevel, DefaultLogLevel)
	cfg.LogFormat = cmp.Or(cfg.LogFormat, DefaultLogFormat)

	if cfg.LogFile.Enabled && cfg.LogFile.Path == "" {
		cfg.LogFile.Path = filepath.Join(s.appStateDir, domain.AppName+".log")
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the config, returning all problems found joined into a
// single error.
func Validate(cfg Config) error {
	var err error

	if urlErr := validateHTTPURL(cfg.MediaMTX.APIURL); urlErr != nil {
		err = errors.Join(err, fmt.Errorf("mediamtx.apiURL: %w", urlErr))
	}

	if cfg.MediaMTX.MetricsURL != "" {
		if urlErr := validateHTTPURL(cfg.MediaMTX.MetricsURL); urlErr != nil {
			err = errors.Join(err, fmt.Errorf("mediamtx.metricsURL: %w", urlErr))
		}
	}

	if cfg.MediaMTX.Timeout < 0 {
		err = errors.Join(err, errors.New("mediamtx.timeout must not be negative"))
	}

	if cfg.Refresh.Interval < MinRefreshInterval {
		err = errors.Join(err, fmt.Errorf("refresh.interval must be at least %s", MinRefreshInterval))
	}

	if (cfg.TLS.CertPath == "") != (cfg.TLS.KeyPath == "") {
		err = errors.Join(err, errors.New("tls.certPath and tls.keyPath must be set together"))
	}

	if cfg.TLS.SelfSigned && cfg.TLS.CertPath != "" {
		err = errors.Join(err, errors.New("tls.selfSigned cannot be combined with tls.certPath"))
	}

	if !slices.Contains(logLevels, cfg.LogLevel) {
		err = errors.Join(err, fmt.Errorf("logLevel must be one of %v", logLevels))
	}

	if !slices.Contains(logFormats, cfg.LogFormat) {
		err = errors.Join(err, fmt.Errorf("logFormat must be one of %v", logFormats))
	}

	return err
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}

	if u.Host == "" {
		return errors.New("no hostname found")
	}

	return nil
}
