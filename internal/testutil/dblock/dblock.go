// Package dblock serialises DB-backed test packages that share one Postgres
// database. go test runs packages in parallel; each package's TestMain holds
// the lock for its whole run so truncation in one package cannot race another.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process owns the lock and returns the release func.
// DBLOCK_ADDR overrides the loopback port used as the mutex.
func Acquire() func() {
	addr := os.Getenv("DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
