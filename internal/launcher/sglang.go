package launcher

import (
	"strconv"

	"github.com/lightseekorg/smg/pkg/types"
)

// sglangLauncher runs workers via sglang.launch_server.
type sglangLauncher struct{}

func (sglangLauncher) Backend() types.Backend { return types.BackendSglang }

func (sglangLauncher) TPSize(spec types.WorkerSpec) (int, error) {
	if spec.TPSize > 0 {
		return spec.TPSize, nil
	}
	return 1, nil
}

func (sglangLauncher) BuildCommand(spec types.WorkerSpec, backendArgs []string, host string, port int) ([]string, error) {
	cmd := []string{
		"python3", "-m", "sglang.launch_server",
		"--model-path", spec.ModelPath,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	if spec.Mode == types.ModeGRPC {
		cmd = append(cmd, "--grpc-mode")
	}
	cmd = append(cmd, filterBackendArgs(backendArgs, []string{"--model-path", "--host", "--port"})...)
	return cmd, nil
}
