package engine

import (
	"fmt"
	"log/slog"
)

// Start runs the timer scheduler and the step workers, then recovers any
// work a previous engine left unfinished
func (e *Engine) Start() error {
	slog.Info("Engine starting",
		slog.Int("workers", e.config.Workers))

	go e.scheduler.Run(e.ctx)
	e.steps.start()

	if _, err := e.RecoverAll(e.ctx); err != nil {
		e.steps.halt()
		e.cancel()
		return fmt.Errorf("%w: %w", ErrRecoverProcesses, err)
	}
	return nil
}
