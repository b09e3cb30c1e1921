// Package guard keeps per-goroutine held-lock counts for the blackboard and
// notifier mutexes. The core queues and the tasks' private mutexes do not
// report to it, so they are not counted. The messaging layer asserts a zero
// count before every bus call: no I/O may happen while a shared mutex is owned.
package guard

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	uatomic "go.uber.org/atomic"
)

var (
	enabled uatomic.Bool

	mu   sync.Mutex
	held = map[uint64]int{}
)

// Enable turns the accounting on or off. Off by default in the binary;
// tests turn it on.
func Enable(on bool) {
	enabled.Store(on)
	if !on {
		mu.Lock()
		held = map[uint64]int{}
		mu.Unlock()
	}
}

// Enabled reports whether accounting is active.
func Enabled() bool { return enabled.Load() }

// Acquired records that the calling goroutine now owns one more shared mutex.
func Acquired() {
	if !enabled.Load() {
		return
	}
	id := gid()
	mu.Lock()
	held[id]++
	mu.Unlock()
}

// Released records that the calling goroutine released one shared mutex.
func Released() {
	if !enabled.Load() {
		return
	}
	id := gid()
	mu.Lock()
	if held[id] <= 1 {
		delete(held, id)
	} else {
		held[id]--
	}
	mu.Unlock()
}

// HeldByCaller returns how many shared mutexes the calling goroutine owns.
// Always zero when accounting is disabled.
func HeldByCaller() int {
	if !enabled.Load() {
		return 0
	}
	id := gid()
	mu.Lock()
	n := held[id]
	mu.Unlock()
	return n
}

// gid parses the goroutine id out of the stack header
// ("goroutine 123 [running]:"). Runtime does not expose it directly; the
// accounting is debug-only so the stack capture cost is acceptable.
func gid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
