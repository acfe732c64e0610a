package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/lightseekorg/smg/internal/common/fsutil"
	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/pkg/types"
)

// Config holds serve parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults.
type Config struct {
	Backend        string `json:"backend" yaml:"backend" toml:"backend"`
	Model          string `json:"model" yaml:"model" toml:"model"`
	ModelID        string `json:"model_id" yaml:"model_id" toml:"model_id"`
	ConnectionMode string `json:"connection_mode" yaml:"connection_mode" toml:"connection_mode"`

	TPSize             int    `json:"tp_size" yaml:"tp_size" toml:"tp_size"`
	TensorParallelSize int    `json:"tensor_parallel_size" yaml:"tensor_parallel_size" toml:"tensor_parallel_size"`
	BackendConfig      string `json:"backend_config" yaml:"backend_config" toml:"backend_config"`
	DPSize             int    `json:"dp_size" yaml:"dp_size" toml:"dp_size"`

	WorkerHost            string `json:"worker_host" yaml:"worker_host" toml:"worker_host"`
	WorkerBasePort        int    `json:"worker_base_port" yaml:"worker_base_port" toml:"worker_base_port"`
	WorkerStartupTimeoutS int    `json:"worker_startup_timeout" yaml:"worker_startup_timeout" toml:"worker_startup_timeout"`

	Policy        string   `json:"policy" yaml:"policy" toml:"policy"`
	RouterCommand []string `json:"router_command" yaml:"router_command" toml:"router_command"`
	Host          string   `json:"host" yaml:"host" toml:"host"`
	Port          int      `json:"port" yaml:"port" toml:"port"`

	AdminAddr string `json:"admin_addr" yaml:"admin_addr" toml:"admin_addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errdefs.ErrConfig("empty config path", nil)
	}
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, errdefs.ErrConfig("expand config path", err)
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return cfg, errdefs.ErrConfig("read config", err)
	}
	switch ext := strings.ToLower(filepath.Ext(expanded)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errdefs.ErrConfig("parse yaml config", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, errdefs.ErrConfig("parse json config", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, errdefs.ErrConfig("parse toml config", err)
		}
	default:
		return cfg, errdefs.ErrConfig(fmt.Sprintf("unsupported config extension: %s", ext), nil)
	}
	return cfg, nil
}

// ApplyDefaults fills unspecified fields in place.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = string(types.BackendSglang)
	}
	if c.ConnectionMode == "" {
		c.ConnectionMode = string(types.ModeHTTP)
	}
	if c.DPSize == 0 {
		c.DPSize = 1
	}
	if c.WorkerHost == "" {
		c.WorkerHost = "127.0.0.1"
	}
	if c.WorkerBasePort == 0 {
		c.WorkerBasePort = 31000
	}
	if c.WorkerStartupTimeoutS == 0 {
		c.WorkerStartupTimeoutS = 300
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 30000
	}
	if c.ModelID == "" {
		c.ModelID = c.Model
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the config after defaults are applied.
func (c *Config) Validate() error {
	if _, err := types.ParseBackend(c.Backend); err != nil {
		return errdefs.ErrConfig("backend", err)
	}
	if _, err := types.ParseConnectionMode(c.ConnectionMode); err != nil {
		return errdefs.ErrConfig("connection mode", err)
	}
	if c.Model == "" {
		return errdefs.ErrConfig("model is required", nil)
	}
	if c.DPSize < 1 {
		return errdefs.ErrConfig(fmt.Sprintf("dp_size must be >= 1, got %d", c.DPSize), nil)
	}
	if c.WorkerBasePort < 1 || c.WorkerBasePort > 65535 {
		return errdefs.ErrConfig(fmt.Sprintf("worker_base_port out of range: %d", c.WorkerBasePort), nil)
	}
	if c.BackendConfig != "" {
		p, err := fsutil.ExpandHome(c.BackendConfig)
		if err != nil {
			return errdefs.ErrConfig("expand backend config path", err)
		}
		if !fsutil.PathExists(p) {
			return errdefs.ErrConfig(fmt.Sprintf("backend config not found: %s", p), nil)
		}
	}
	return nil
}

// WorkerSpec translates the config into the launch description.
func (c *Config) WorkerSpec() types.WorkerSpec {
	modelPath := c.Model
	if p, err := fsutil.ExpandHome(modelPath); err == nil {
		modelPath = p
	}
	return types.WorkerSpec{
		Backend:            types.Backend(c.Backend),
		ModelID:            c.ModelID,
		ModelPath:          modelPath,
		Mode:               types.ConnectionMode(c.ConnectionMode),
		TPSize:             c.TPSize,
		TensorParallelSize: c.TensorParallelSize,
		ConfigPath:         c.BackendConfig,
		DataParallelSize:   c.DPSize,
		Host:               c.WorkerHost,
		BasePort:           c.WorkerBasePort,
		StartupTimeout:     time.Duration(c.WorkerStartupTimeoutS) * time.Second,
	}
}
