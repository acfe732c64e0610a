package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lightseekorg/smg/internal/config"
	"github.com/lightseekorg/smg/internal/httpapi"
	"github.com/lightseekorg/smg/internal/serve"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cfg := config.Config{}

	cmd := &cobra.Command{
		Use:   "serve [flags] [-- backend args...]",
		Short: "Launch a worker fleet and the router in front of it",
		Example: `  smg serve --model meta-llama/Llama-3.1-8B --backend sglang --dp-size 2
  smg serve --config serve.yaml -- --mem-fraction-static 0.8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Everything after -- goes to the worker command lines verbatim.
			var backendArgs []string
			if at := cmd.ArgsLenAtDash(); at >= 0 {
				backendArgs = args[at:]
			}
			return runServe(cmd, cfgPath, cfg, backendArgs)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "Config file (.yaml/.json/.toml); flags override file values")
	f.StringVar(&cfg.Backend, "backend", "", "Inference backend: sglang|vllm|trtllm (default sglang)")
	f.StringVar(&cfg.Model, "model", "", "Model path or HuggingFace id")
	f.StringVar(&cfg.ModelID, "model-id", "", "Stable model identifier (defaults to --model)")
	f.StringVar(&cfg.ConnectionMode, "connection-mode", "", "Worker wire protocol: http|grpc (default http)")
	f.IntVar(&cfg.TPSize, "tp-size", 0, "Tensor-parallel size (GPUs per worker)")
	f.IntVar(&cfg.TensorParallelSize, "tensor-parallel-size", 0, "Alias for --tp-size honored by vllm/trtllm")
	f.StringVar(&cfg.BackendConfig, "backend-config", "", "Backend config file (trtllm)")
	f.IntVar(&cfg.DPSize, "dp-size", 0, "Number of worker replicas (default 1)")
	f.StringVar(&cfg.WorkerHost, "worker-host", "", "Host workers bind to (default 127.0.0.1)")
	f.IntVar(&cfg.WorkerBasePort, "worker-base-port", 0, "First candidate worker port (default 31000)")
	f.IntVar(&cfg.WorkerStartupTimeoutS, "worker-startup-timeout", 0, "Per-worker startup timeout in seconds (default 300)")
	f.StringVar(&cfg.Policy, "policy", "", "Router load-balancing policy")
	f.StringSliceVar(&cfg.RouterCommand, "router-cmd", nil, "Router executable plus fixed leading args")
	f.StringVar(&cfg.Host, "host", "", "Router listen host (default 127.0.0.1)")
	f.IntVar(&cfg.Port, "port", 0, "Router listen port (default 30000)")
	f.StringVar(&cfg.AdminAddr, "admin-addr", "", "Admin HTTP listen address (empty disables)")
	f.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug|info|warn|error")

	return cmd
}

// mergeFlags overlays explicitly-set flag values on top of file config.
func mergeFlags(cmd *cobra.Command, file config.Config, flags config.Config) config.Config {
	out := file
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("backend") {
		out.Backend = flags.Backend
	}
	if set("model") {
		out.Model = flags.Model
	}
	if set("model-id") {
		out.ModelID = flags.ModelID
	}
	if set("connection-mode") {
		out.ConnectionMode = flags.ConnectionMode
	}
	if set("tp-size") {
		out.TPSize = flags.TPSize
	}
	if set("tensor-parallel-size") {
		out.TensorParallelSize = flags.TensorParallelSize
	}
	if set("backend-config") {
		out.BackendConfig = flags.BackendConfig
	}
	if set("dp-size") {
		out.DPSize = flags.DPSize
	}
	if set("worker-host") {
		out.WorkerHost = flags.WorkerHost
	}
	if set("worker-base-port") {
		out.WorkerBasePort = flags.WorkerBasePort
	}
	if set("worker-startup-timeout") {
		out.WorkerStartupTimeoutS = flags.WorkerStartupTimeoutS
	}
	if set("policy") {
		out.Policy = flags.Policy
	}
	if set("router-cmd") {
		out.RouterCommand = flags.RouterCommand
	}
	if set("host") {
		out.Host = flags.Host
	}
	if set("port") {
		out.Port = flags.Port
	}
	if set("admin-addr") {
		out.AdminAddr = flags.AdminAddr
	}
	if set("log-level") {
		out.LogLevel = flags.LogLevel
	}
	return out
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, cfgPath string, flags config.Config, backendArgs []string) error {
	var cfg config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = mergeFlags(cmd, cfg, flags)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	spec := cfg.WorkerSpec()

	routerCmd := cfg.RouterCommand
	if len(routerCmd) == 0 {
		routerCmd = []string{"sglang-router"}
	}
	router := serve.NewProcessRouter(routerCmd, cfg.Host, cfg.Port, log)

	orch, err := serve.New(spec, backendArgs, cfg.Policy, spec.StartupTimeout, router, log)
	if err != nil {
		return err
	}

	// Optional admin surface for probes, status and metrics.
	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{Addr: cfg.AdminAddr, Handler: httpapi.NewMux(orch)}
		go func() {
			log.Info().Str("addr", cfg.AdminAddr).Msg("admin API listening")
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin server error")
			}
		}()
	}

	runErr := orch.Run(cmd.Context())

	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("admin shutdown error")
		}
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("serve session failed")
	}
	return runErr
}
