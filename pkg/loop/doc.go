// Package loop implements the cooperative event loop that owns channel state.
//
// A channel, its publisher and every object without its own loop are driven by
// a single Loop. Transports and foreign goroutines never touch that state
// directly; they Post closures onto the loop instead.
//
// # Turns
//
// One "turn" is a ProcessEvents call: due timers run first, then queued tasks
// in FIFO order. Work posted during a turn runs in the same ProcessEvents call,
// after everything queued before it.
//
// # Time
//
// Timers are measured on a clock.Clock. Tests use a mock clock and advance it
// explicitly, then call ProcessEvents to run what became due.
package loop
