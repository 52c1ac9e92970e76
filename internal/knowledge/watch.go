package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

const watchDebounce = 250 * time.Millisecond

// Watch reloads the corpus file at path whenever it changes and hands each
// valid reload to onChange. Invalid edits are logged and skipped. The
// parent directory is watched so editors that replace the file on save are
// seen too. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Corpus), logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(watchDebounce)
			}

		case <-debounce:
			debounce = nil
			corpus, err := Load(abs)
			if err != nil {
				logger.Warn(ctx, "ignoring invalid corpus update", zap.String("path", abs), zap.Error(err))
				continue
			}
			logger.Info(ctx, "corpus file changed",
				zap.String("path", abs),
				zap.Int("usecases", len(corpus.UseCases)),
				zap.Int("frameworks", len(corpus.Frameworks)),
			)
			onChange(corpus)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "corpus watcher error", zap.Error(err))
		}
	}
}
