package launcher

import (
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/lightseekorg/smg/internal/errdefs"
	"github.com/lightseekorg/smg/pkg/types"
)

// trtllmLauncher runs workers via tensorrt_llm.commands.serve. The backend
// has no HTTP serving mode, only gRPC.
type trtllmLauncher struct {
	log zerolog.Logger
}

func (trtllmLauncher) Backend() types.Backend { return types.BackendTrtllm }

// trtllmConfig is the slice of the backend YAML config this launcher cares
// about.
type trtllmConfig struct {
	TensorParallelSize int `yaml:"tensor_parallel_size"`
	TPSize             int `yaml:"tp_size"`
}

// TPSize resolves the tensor-parallel size with the chain explicit tp-size
// → tensor-parallel-size → config file → 1. A config file that is present
// but unreadable or malformed is a hard failure: silently running at tp=1
// against a multi-GPU config would corrupt GPU assignment.
func (l trtllmLauncher) TPSize(spec types.WorkerSpec) (int, error) {
	if spec.TPSize > 0 {
		return spec.TPSize, nil
	}
	if spec.TensorParallelSize > 0 {
		return spec.TensorParallelSize, nil
	}
	if spec.ConfigPath != "" {
		b, err := os.ReadFile(spec.ConfigPath)
		if err != nil {
			return 0, errdefs.ErrConfig("read trtllm config "+spec.ConfigPath, err)
		}
		var cfg trtllmConfig
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return 0, errdefs.ErrConfig("parse trtllm config "+spec.ConfigPath, err)
		}
		if cfg.TensorParallelSize > 0 {
			return cfg.TensorParallelSize, nil
		}
		if cfg.TPSize > 0 {
			return cfg.TPSize, nil
		}
		l.log.Warn().Str("config", spec.ConfigPath).Msg("config has no tensor_parallel_size or tp_size, defaulting to 1")
	}
	return 1, nil
}

func (trtllmLauncher) BuildCommand(spec types.WorkerSpec, backendArgs []string, host string, port int) ([]string, error) {
	if spec.Mode != types.ModeGRPC {
		return nil, errdefs.ErrConfig("tensorrt-llm backend only supports grpc connection mode", nil)
	}
	cmd := []string{
		"python3", "-m", "tensorrt_llm.commands.serve",
		spec.ModelPath,
		"--grpc",
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	cmd = append(cmd, filterBackendArgs(backendArgs, []string{"--model", "--host", "--port"})...)
	return cmd, nil
}
