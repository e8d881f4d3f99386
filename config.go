// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConnectTimeout is the connect timeout used when none is configured.
const DefaultConnectTimeout = 5000 * time.Millisecond

// DefaultPort is the port on which unbound listens for remote control.
const DefaultPort = 8953

// ResponseMode selects how [*Client.Send] decides that a reply is complete.
type ResponseMode string

const (
	// ResponseModeShortRead stops at the first read shorter than [ResponseChunkSize]
	// or at end of stream. This is the default and what the server expects.
	ResponseModeShortRead ResponseMode = "short-read"

	// ResponseModeUntilClose reads until the server closes the stream.
	//
	// Use it when replies may be an exact multiple of [ResponseChunkSize].
	ResponseModeUntilClose ResponseMode = "until-close"
)

// ConfigParams contains the raw settings for [NewConfig].
type ConfigParams struct {
	// Host is the MANDATORY host name or IP address of the control socket.
	Host string `yaml:"host"`

	// Port is the MANDATORY control port in 1..65535.
	Port int `yaml:"port"`

	// UseTLS enables mutually authenticated TLS with certificate pinning.
	UseTLS bool `yaml:"use_tls"`

	// ServerCertFile is the PEM certificate the server must present.
	//
	// MANDATORY when UseTLS is true.
	ServerCertFile string `yaml:"server_cert_file"`

	// ControlCertFile is the PEM client certificate.
	//
	// MANDATORY when UseTLS is true.
	ControlCertFile string `yaml:"control_cert_file"`

	// ControlKeyFile is the PEM private key of ControlCertFile.
	//
	// MANDATORY when UseTLS is true.
	ControlKeyFile string `yaml:"control_key_file"`

	// ConnectTimeout is the OPTIONAL connect timeout. Zero means [DefaultConnectTimeout].
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ResponseMode is OPTIONAL. Empty means [ResponseModeShortRead].
	ResponseMode ResponseMode `yaml:"response_mode"`
}

// Config is a validated and immutable connection configuration.
//
// Construct using [NewConfig] or [LoadConfigFile]. With TLS enabled, the
// PEM files are loaded once by [NewConfig] and reused by every connection.
type Config struct {
	host            string
	port            int
	useTLS          bool
	serverCertFile  string
	controlCertFile string
	controlKeyFile  string
	connectTimeout  time.Duration
	responseMode    ResponseMode
	identity        tls.Certificate
	pin             *PinnedCertificate
}

// NewConfig validates params and returns a new [*Config].
//
// Validation errors are [*Error] values with [KindConfiguration]. When
// UseTLS is set, the certificate and key files are read here, so a missing
// file yields [ErrFileNotFound] and an unusable one [ErrMalformedCertificate].
func NewConfig(params ConfigParams) (*Config, error) {
	if strings.TrimSpace(params.Host) == "" {
		return nil, configError("host cannot be empty")
	}
	if params.Port <= 0 || params.Port > 65535 {
		return nil, configError("port must be between 1 and 65535")
	}
	timeout := params.ConnectTimeout
	switch {
	case timeout == 0:
		timeout = DefaultConnectTimeout
	case timeout < 0:
		return nil, configError("connect timeout must be positive")
	}
	mode := params.ResponseMode
	switch mode {
	case "":
		mode = ResponseModeShortRead
	case ResponseModeShortRead, ResponseModeUntilClose:
	default:
		return nil, configError(fmt.Sprintf("unknown response mode %q", mode))
	}
	if params.UseTLS {
		if params.ServerCertFile == "" {
			return nil, configError("server certificate file is required when TLS is enabled")
		}
		if params.ControlCertFile == "" {
			return nil, configError("control certificate file is required when TLS is enabled")
		}
		if params.ControlKeyFile == "" {
			return nil, configError("control key file is required when TLS is enabled")
		}
	}
	config := &Config{
		host:            params.Host,
		port:            params.Port,
		useTLS:          params.UseTLS,
		serverCertFile:  params.ServerCertFile,
		controlCertFile: params.ControlCertFile,
		controlKeyFile:  params.ControlKeyFile,
		connectTimeout:  timeout,
		responseMode:    mode,
	}
	if params.UseTLS {
		identity, err := LoadClientIdentity(params.ControlCertFile, params.ControlKeyFile)
		if err != nil {
			return nil, err
		}
		pin, err := LoadPinnedCertificate(params.ServerCertFile)
		if err != nil {
			return nil, err
		}
		config.identity, config.pin = identity, pin
	}
	return config, nil
}

func configError(msg string) error {
	return newError(KindConfiguration, errors.New(msg))
}

// Host returns the control socket host.
func (c *Config) Host() string { return c.host }

// Port returns the control socket port.
func (c *Config) Port() int { return c.port }

// Address returns the host:port of the control socket.
func (c *Config) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// UseTLS reports whether the connection uses TLS.
func (c *Config) UseTLS() bool { return c.useTLS }

// ServerCertFile returns the path of the pinned server certificate.
func (c *Config) ServerCertFile() string { return c.serverCertFile }

// ControlCertFile returns the path of the client certificate.
func (c *Config) ControlCertFile() string { return c.controlCertFile }

// ControlKeyFile returns the path of the client private key.
func (c *Config) ControlKeyFile() string { return c.controlKeyFile }

// PinnedCertificate returns the pinned server certificate or nil without TLS.
func (c *Config) PinnedCertificate() *PinnedCertificate { return c.pin }

// ConnectTimeout returns the connect timeout.
func (c *Config) ConnectTimeout() time.Duration { return c.connectTimeout }

// ResponseMode returns the configured [ResponseMode].
func (c *Config) ResponseMode() ResponseMode { return c.responseMode }

// Params returns a copy of the settings used to build c.
func (c *Config) Params() ConfigParams {
	return ConfigParams{
		Host:            c.host,
		Port:            c.port,
		UseTLS:          c.useTLS,
		ServerCertFile:  c.serverCertFile,
		ControlCertFile: c.controlCertFile,
		ControlKeyFile:  c.controlKeyFile,
		ConnectTimeout:  c.connectTimeout,
		ResponseMode:    c.responseMode,
	}
}

// Key returns a string identifying the endpoint and credentials of c.
//
// Two configs with the same key can share pooled connections.
func (c *Config) Key() string {
	return strings.Join([]string{
		c.Address(),
		strconv.FormatBool(c.useTLS),
		c.serverCertFile,
		c.controlCertFile,
		c.controlKeyFile,
	}, "|")
}

// configFile is the on-disk layout read by [LoadConfigFromReader].
type configFile struct {
	Unbound ConfigParams `yaml:"unbound"`
}

// LoadConfigFile reads a YAML configuration file and returns a validated [*Config].
func LoadConfigFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(KindConfiguration, fmt.Errorf("config file not found: %s", path))
		}
		return nil, newError(KindConfiguration, fmt.Errorf("failed to open config file %s: %w", path, err))
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader parses YAML from r and returns a validated [*Config].
//
// The settings live under the top-level "unbound" key. A missing port
// defaults to [DefaultPort].
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(KindConfiguration, fmt.Errorf("failed to read config: %w", err))
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, newError(KindConfiguration, fmt.Errorf("failed to parse YAML: %w", err))
	}
	if file.Unbound.Port == 0 {
		file.Unbound.Port = DefaultPort
	}

	cfg, err := NewConfig(file.Unbound)
	if err != nil {
		return nil, newError(KindConfiguration, fmt.Errorf("config validation failed: %w", err))
	}
	return cfg, nil
}
