package types

import "fmt"

// Backend identifies the inference engine a worker runs.
type Backend string

const (
	BackendSglang Backend = "sglang"
	BackendVllm   Backend = "vllm"
	BackendTrtllm Backend = "trtllm"
)

// ParseBackend validates a backend name from config or CLI input.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendSglang, BackendVllm, BackendTrtllm:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown backend %q (want sglang, vllm or trtllm)", s)
}

// ConnectionMode is the wire protocol a worker exposes to the router.
type ConnectionMode string

const (
	ModeHTTP ConnectionMode = "http"
	ModeGRPC ConnectionMode = "grpc"
)

// ParseConnectionMode validates a connection mode string.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch ConnectionMode(s) {
	case ModeHTTP, ModeGRPC:
		return ConnectionMode(s), nil
	}
	return "", fmt.Errorf("unknown connection mode %q (want http or grpc)", s)
}

// WorkerType is the specialization of a worker in a serving topology.
type WorkerType string

const (
	WorkerRegular WorkerType = "regular"
	WorkerPrefill WorkerType = "prefill"
	WorkerDecode  WorkerType = "decode"
)

// WorkerIdentity names a logical worker slot independent of its current
// process. Two identities are equal iff all four fields match, so the
// struct is usable directly as a map key.
type WorkerIdentity struct {
	ModelID string         `json:"model_id"`
	Mode    ConnectionMode `json:"mode"`
	Type    WorkerType     `json:"type"`
	Index   int            `json:"index"`
}

func (id WorkerIdentity) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", id.ModelID, id.Mode, id.Type, id.Index)
}
