// Package config describes the server/client configuration surface listed
// in spec.md §6. Loading configuration is an external collaborator's
// concern per spec.md §1, but the shape of that collaborator and its
// defaults are specified here, mirroring original_source/src/config.hpp.
package config

import (
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Config holds everything the acceptor and sessions need, threaded
// explicitly to their constructors rather than read from a process-wide
// singleton (see spec.md §9 "Global-ish config").
type Config struct {
	UseTLS        bool   `json:"useTLS"`
	ListenAddress uint32 `json:"listenAddress"` // IPv4, host byte order; 0 == INADDR_ANY
	ListenPort    uint16 `json:"listenPort"`
	ListenBacklog int    `json:"listenBacklog"`
	AccessLog     bool   `json:"accessLog"`
	DebugLogging  bool   `json:"debugLogging"`

	IoQueueSize       int `json:"ioQueueSize"` // power of two, submission queue depth
	FullReadTimeoutMs int `json:"fullReadTimeoutMs"`

	MaxURLLength         int `json:"maxURLLength"`
	MaxRequestHeaderSize int `json:"maxRequestHeaderSize"`
	MaxRequestBodySize   int `json:"maxRequestBodySize"`

	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
}

// Default mirrors the hardcoded defaults of original_source/src/config.hpp.
func Default() Config {
	return Config{
		UseTLS:               false,
		ListenAddress:        0,
		ListenPort:           6969,
		ListenBacklog:        1024,
		AccessLog:            true,
		DebugLogging:         false,
		IoQueueSize:          2048,
		FullReadTimeoutMs:    1000,
		MaxURLLength:         512,
		MaxRequestHeaderSize: 1024,
		MaxRequestBodySize:   1024,
	}
}

// Load reads a JSON config file (if path is non-empty) over the defaults,
// then applies a handful of HTCPP_-prefixed environment overrides. It is
// intentionally forgiving: a missing file is not an error, since the
// acceptor is always handed a valid Config either way.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		if err == nil {
			if err := jsoniter.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTCPP_LISTEN_PORT"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.ListenPort = uint16(p)
		}
	}
	if v := os.Getenv("HTCPP_ACCESS_LOG"); v != "" {
		cfg.AccessLog = v == "1" || v == "true"
	}
	if v := os.Getenv("HTCPP_DEBUG_LOGGING"); v != "" {
		cfg.DebugLogging = v == "1" || v == "true"
	}
}
