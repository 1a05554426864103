// Package archive moves finished process trees out of the live store and
// into a blob bucket
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

type (
	// Archiver listens for finished root processes, writes each tree to
	// the bucket and then purges it from the store
	Archiver struct {
		source   Source
		hub      *events.Hub
		writer   *Writer
		consumer events.Subscription
		ctx      context.Context
		cancel   context.CancelFunc
		wg       sync.WaitGroup
	}

	// Source reads and removes process trees. The engine implements it
	Source interface {
		ProcessTree(context.Context, api.ProcessID) (
			[]*api.ProcessResponse, error,
		)
		PurgeProcess(context.Context, api.ProcessID) error
	}
)

var (
	ErrSourceRequired = errors.New("process source is required")
	ErrHubRequired    = errors.New("event hub is required")
	ErrWriterRequired = errors.New("archive writer is required")
	ErrOpenBucket     = errors.New("failed to open archive bucket")
	ErrNothingToStore = errors.New("process tree not found")
	ErrNotFinished    = errors.New("process is still running")
)

// NewArchiver creates an archiver. It subscribes to the hub immediately, so
// processes finishing before Start are not missed
func NewArchiver(src Source, hub *events.Hub, w *Writer) (*Archiver, error) {
	switch {
	case src == nil:
		return nil, ErrSourceRequired
	case hub == nil:
		return nil, ErrHubRequired
	case w == nil:
		return nil, ErrWriterRequired
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Archiver{
		source:   src,
		hub:      hub,
		writer:   w,
		consumer: hub.Subscribe(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins archiving in the background
func (a *Archiver) Start() {
	a.wg.Go(a.run)
}

// Stop ends archiving and waits for an in-flight archive to finish
func (a *Archiver) Stop() {
	a.cancel()
	a.consumer.Close()
	a.wg.Wait()
}

// Archive writes a finished root process and every process under it to
// the bucket, then removes them from the store
func (a *Archiver) Archive(ctx context.Context, root api.ProcessID) error {
	tree, err := a.source.ProcessTree(ctx, root)
	if err != nil {
		return err
	}
	rec := &Record{ProcessID: root, Processes: tree}
	for _, pr := range tree {
		if !pr.Process.State.IsFinal() {
			return fmt.Errorf("%w: %s", ErrNotFinished, pr.Process.ID)
		}
		if pr.Process.ID == root {
			rec.State = pr.Process.State
			rec.ArchivedAt = pr.Process.EndDate
		}
	}
	if rec.State == "" {
		return fmt.Errorf("%w: %s", ErrNothingToStore, root)
	}

	if err := a.writer.Write(ctx, rec); err != nil {
		return err
	}
	if err := a.source.PurgeProcess(ctx, root); err != nil {
		return err
	}

	a.hub.Publish(&api.Event{
		Type:         api.EventProcessArchived,
		ProcessID:    root,
		RootID:       root,
		ProcessState: rec.State,
	})
	slog.Info("Process archived",
		log.ProcessID(root),
		slog.Int("processes", len(tree)))
	return nil
}

// Load returns the archived record of a root process
func (a *Archiver) Load(
	ctx context.Context, root api.ProcessID,
) (*Record, error) {
	return a.writer.Read(ctx, root)
}

func (a *Archiver) run() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-a.consumer.Receive():
			if !ok {
				return
			}
			if !isRootFinished(ev) {
				continue
			}
			err := a.Archive(a.ctx, ev.ProcessID)
			switch {
			case err == nil:
			case errors.Is(err, ErrNothingToStore):
				slog.Debug("Process already archived",
					log.ProcessID(ev.ProcessID))
			default:
				slog.Warn("Failed to archive process",
					log.ProcessID(ev.ProcessID),
					log.Error(err))
			}
		}
	}
}

func isRootFinished(ev *api.Event) bool {
	return ev != nil && ev.Type == api.EventProcessFinished &&
		ev.ProcessID == ev.RootID
}
