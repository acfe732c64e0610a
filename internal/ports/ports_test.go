package ports

import (
	"fmt"
	"net"
	"testing"

	"github.com/lightseekorg/smg/internal/errdefs"
)

func TestFindReturnsDistinctPortsInRange(t *testing.T) {
	const base, count = 31000, 4
	got, err := Find(base, count)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != count {
		t.Fatalf("expected %d ports got %d", count, len(got))
	}
	seen := map[int]bool{}
	for _, p := range got {
		if p < base || p > maxPort {
			t.Fatalf("port %d outside [%d, %d]", p, base, maxPort)
		}
		if seen[p] {
			t.Fatalf("duplicate port %d in %v", p, got)
		}
		seen[p] = true
		// Each port must still be bindable at call time.
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err != nil {
			t.Fatalf("port %d not bindable: %v", p, err)
		}
		_ = l.Close()
	}
}

func TestFindSkipsBusyPort(t *testing.T) {
	base, err := Find(32000, 1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	// Occupy the first candidate and ask again from the same base.
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", base[0]))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	got, err := Find(base[0], 1)
	if err != nil {
		t.Fatalf("Find with busy base: %v", err)
	}
	if got[0] == base[0] {
		t.Fatalf("Find returned busy port %d", base[0])
	}
}

func TestFindExhaustsAboveMaxPort(t *testing.T) {
	// Asking for more ports than can exist above the base must fail with
	// a resource exhaustion error rather than looping forever.
	_, err := Find(maxPort, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errdefs.IsResourceExhausted(err) {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
}
