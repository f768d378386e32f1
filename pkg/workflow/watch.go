package workflow

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/logger"
)

// Watch watches dir's workflow.yaml and agent markdown files for changes and
// invokes onChange (typically a re-Load) whenever one is written, renamed,
// or created. It runs until ctx is cancelled or the watcher errors fatally.
// Grounded in the "WorkflowService.update ... picks up external edits"
// supplemented feature (SPEC_FULL.md).
func Watch(ctx context.Context, dir string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create workflow file watcher")
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watch workflow directory %s", dir)
	}

	log := logger.G(ctx).WithField("workflow_dir", dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("event", ev.String()).Debug("workflow file changed, reloading")
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("workflow file watcher error")
		}
	}
}
