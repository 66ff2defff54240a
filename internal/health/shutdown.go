package health

import "sync/atomic"

// ready gates the readiness endpoint during startup and graceful shutdown.
var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate. Main sets it to false before draining
// in-flight requests so load balancers stop routing new traffic.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports the current gate state.
func IsReady() bool {
	return ready.Load()
}
