package mediaserver

import (
	"fmt"
	"net"
	"net/url"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config is the subset of the MediaMTX configuration file which the dashboard
// depends on.
type Config struct {
	LogLevel          string          `yaml:"logLevel,omitempty"`
	AuthMethod        string          `yaml:"authMethod,omitempty"`
	AuthInternalUsers []User          `yaml:"authInternalUsers,omitempty"`
	API               bool            `yaml:"api"`
	APIAddress        string          `yaml:"apiAddress,omitempty"`
	Metrics           bool            `yaml:"metrics"`
	MetricsAddress    string          `yaml:"metricsAddress,omitempty"`
	RTMP              bool            `yaml:"rtmp"`
	HLS               bool            `yaml:"hls"`
	RTSP              bool            `yaml:"rtsp"`
	WebRTC            bool            `yaml:"webrtc"`
	SRT               bool            `yaml:"srt"`
	Paths             map[string]Path `yaml:"paths,omitempty"`
}

// Path is a path entry in the MediaMTX configuration file.
type Path struct {
	Source string `yaml:"source,omitempty"`
}

// UserPermission is a permission granted to a MediaMTX user.
type UserPermission struct {
	Action string `yaml:"action,omitempty"`
}

// User is an internal MediaMTX user.
type User struct {
	User        string           `yaml:"user,omitempty"`
	Pass        string           `yaml:"pass,omitempty"`
	IPs         []string         `yaml:"ips,omitempty"`
	Permissions []UserPermission `yaml:"permissions,omitempty"`
}

// NewConfigParams contains the parameters for building a MediaMTX
// configuration.
type NewConfigParams struct {
	APIURL     string
	MetricsURL string
	Username   string
	Password   string
}

// NewConfig builds a MediaMTX configuration which exposes the control API
// and the metrics endpoint on the ports of the given URLs. If a username is
// set, it is granted access to both along with publishing and reading.
//
// The catch-all path is included so that publishers can push to any path.
func NewConfig(params NewConfigParams) (Config, error) {
	apiAddr, err := listenAddr(params.APIURL)
	if err != nil {
		return Config{}, fmt.Errorf("API URL: %w", err)
	}

	cfg := Config{
		LogLevel:   "info",
		API:        true,
		APIAddress: apiAddr,
		RTMP:       true,
		HLS:        true,
		RTSP:       true,
		WebRTC:     true,
		SRT:        true,
		Paths:      map[string]Path{domain.CatchAllPathName: {}},
	}

	if params.MetricsURL != "" {
		metricsAddr, err := listenAddr(params.MetricsURL)
		if err != nil {
			return Config{}, fmt.Errorf("metrics URL: %w", err)
		}
		cfg.Metrics = true
		cfg.MetricsAddress = metricsAddr
	}

	anyone := User{
		User: "any",
		IPs:  []string{},
		Permissions: []UserPermission{
			{Action: "publish"},
			{Action: "read"},
			{Action: "playback"},
		},
	}
	if params.Username == "" {
		anyone.Permissions = append(anyone.Permissions, UserPermission{Action: "api"}, UserPermission{Action: "metrics"})
		cfg.AuthMethod = "internal"
		cfg.AuthInternalUsers = []User{anyone}
		return cfg, nil
	}

	cfg.AuthMethod = "internal"
	cfg.AuthInternalUsers = []User{
		anyone,
		{
			User: params.Username,
			Pass: params.Password,
			IPs:  []string{},
			Permissions: []UserPermission{
				{Action: "api"},
				{Action: "metrics"},
			},
		},
	}

	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	return b, nil
}

// listenAddr returns a MediaMTX listen address for the port of a URL.
func listenAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}

	port := u.Port()
	if port == "" {
		return "", fmt.Errorf("no port found in %q", rawURL)
	}

	return net.JoinHostPort("", port), nil
}
