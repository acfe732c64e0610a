package launcher

import (
	"strconv"

	"github.com/lightseekorg/smg/pkg/types"
)

// vllmLauncher runs workers via vLLM's OpenAI-compatible or gRPC
// entrypoints depending on connection mode.
type vllmLauncher struct{}

func (vllmLauncher) Backend() types.Backend { return types.BackendVllm }

func (vllmLauncher) TPSize(spec types.WorkerSpec) (int, error) {
	// vLLM names this tensor_parallel_size.
	if spec.TensorParallelSize > 0 {
		return spec.TensorParallelSize, nil
	}
	return 1, nil
}

func (vllmLauncher) BuildCommand(spec types.WorkerSpec, backendArgs []string, host string, port int) ([]string, error) {
	entrypoint := "vllm.entrypoints.openai.api_server"
	if spec.Mode == types.ModeGRPC {
		entrypoint = "vllm.entrypoints.grpc_server"
	}
	cmd := []string{
		"python3", "-m", entrypoint,
		"--model", spec.ModelPath,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	cmd = append(cmd, filterBackendArgs(backendArgs, []string{"--model", "--host", "--port"})...)
	return cmd, nil
}
