package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn on its own goroutine and converts a panic into a log
// line plus the optional onPanic callback, so a background sweep cannot
// take the process down.
func SafeGo(fn func(), onPanic func(interface{})) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			slog.Error("Recovered panic in background routine",
				"panic", r, "stack", string(debug.Stack()))
			if onPanic != nil {
				onPanic(r)
			}
		}()
		fn()
	}()
}
