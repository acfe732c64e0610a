package types

import "time"

// WorkerSpec is the declarative description of one worker fleet. It is
// treated as immutable once a launch begins; components receive it by
// value.
type WorkerSpec struct {
	// Inference backend to launch.
	Backend Backend `json:"backend"`
	// Stable model identifier used for pool matching.
	// example: llama-8b
	ModelID string `json:"model_id"`
	// Model path or HuggingFace id passed to the backend.
	ModelPath string `json:"model_path"`
	// Wire protocol workers expose (http or grpc).
	Mode ConnectionMode `json:"mode"`
	// Tensor-parallel size (GPUs per worker). 0 means unset.
	TPSize int `json:"tp_size,omitempty"`
	// vLLM-style fallback for TPSize (--tensor-parallel-size).
	TensorParallelSize int `json:"tensor_parallel_size,omitempty"`
	// Backend config file (trtllm); may carry tensor_parallel_size.
	ConfigPath string `json:"config_path,omitempty"`
	// Number of worker replicas.
	DataParallelSize int `json:"data_parallel_size"`
	// Host workers bind to.
	Host string `json:"host"`
	// First candidate port for worker bind addresses.
	BasePort int `json:"base_port"`
	// How long a single worker may take to become healthy.
	StartupTimeout time.Duration `json:"startup_timeout"`
}

// RouterConfig is the contract handed to the router collaborator once all
// workers are healthy. WorkerURLs preserve launch order, one per rank.
type RouterConfig struct {
	Policy     string        `json:"policy"`
	Timeout    time.Duration `json:"timeout"`
	WorkerURLs []string      `json:"worker_urls"`
	// PD disaggregation: separate prefill/decode fleets. Empty for
	// regular serving.
	PrefillURLs []string `json:"prefill_urls,omitempty"`
	DecodeURLs  []string `json:"decode_urls,omitempty"`
}

// WorkerStatus is a read-only projection of one worker for the status API.
type WorkerStatus struct {
	Identity WorkerIdentity `json:"identity"`
	URL      string         `json:"url"`
	Port     int            `json:"port"`
	PID      int            `json:"pid"`
	State    string         `json:"state"`
	Refs     int            `json:"refs"`
}

// FleetStatus is the aggregate snapshot served by /status.
type FleetStatus struct {
	Backend Backend        `json:"backend"`
	ModelID string         `json:"model_id"`
	State   string         `json:"state"`
	Workers []WorkerStatus `json:"workers"`
}
