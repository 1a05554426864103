package engine

import "log/slog"

// Stop waits for running steps to finish, then shuts the engine down.
// Queued steps that never ran are recovered by the next engine to start
func (e *Engine) Stop() error {
	e.steps.flush()
	e.cancel()
	slog.Info("Engine stopped")
	return nil
}

// Halt shuts the engine down without waiting for running steps, leaving
// the store as a crash would
func (e *Engine) Halt() {
	e.cancel()
	e.steps.halt()
	slog.Warn("Engine halted")
}
