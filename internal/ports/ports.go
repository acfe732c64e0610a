// Package ports finds free TCP ports for worker bind addresses.
package ports

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/lightseekorg/smg/internal/errdefs"
)

const maxPort = 65535

// Find returns count distinct available ports starting at basePort.
//
// Each candidate is probed with a loopback bind. On success the port is
// recorded and the cursor advances by a random 1-5 jump to reduce
// collisions with concurrent allocators on the same host; on failure it
// advances by 1. The bind-then-release probe is inherently racy: a
// returned port can still be stolen before the worker binds it, so
// callers must treat allocation as best-effort and surface the launch
// failure instead.
func Find(basePort, count int) ([]int, error) {
	ports := make([]int, 0, count)
	candidate := basePort
	for len(ports) < count {
		if candidate > maxPort {
			return nil, errdefs.ErrResourceExhausted(
				"could not find %d available ports starting from %d", count, basePort)
		}
		if available(candidate) {
			ports = append(ports, candidate)
			candidate += 1 + rand.Intn(5)
		} else {
			candidate++
		}
	}
	return ports, nil
}

// available reports whether port is free on localhost.
func available(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
