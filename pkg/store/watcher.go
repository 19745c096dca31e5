package store

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// LedgerWatcher calls onChange after writes to a ledger database settle.
// It watches the database directory and reacts to the database file and its
// WAL and journal companions.
type LedgerWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	base     string
	onChange func()
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	stopCh chan struct{}
	done   chan struct{}
}

// NewLedgerWatcher starts watching the ledger at dbPath.
func NewLedgerWatcher(dbPath string, debounce time.Duration, logger zerolog.Logger, onChange func()) (*LedgerWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	lw := &LedgerWatcher{
		watcher:  watcher,
		logger:   logger.With().Str("component", "ledger_watcher").Logger(),
		base:     filepath.Base(dbPath),
		onChange: onChange,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go lw.run()

	return lw, nil
}

// Stop stops the watcher and cancels a pending notification.
func (lw *LedgerWatcher) Stop() error {
	close(lw.stopCh)
	err := lw.watcher.Close()
	<-lw.done

	lw.mu.Lock()
	if lw.timer != nil {
		lw.timer.Stop()
	}
	lw.mu.Unlock()
	return err
}

func (lw *LedgerWatcher) run() {
	defer close(lw.done)
	for {
		select {
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if !lw.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				lw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Ledger change detected")
				lw.schedule()
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Error().Err(err).Msg("Ledger watcher error")

		case <-lw.stopCh:
			return
		}
	}
}

func (lw *LedgerWatcher) relevant(name string) bool {
	base := filepath.Base(name)
	return base == lw.base || strings.HasPrefix(base, lw.base+"-")
}

func (lw *LedgerWatcher) schedule() {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.timer != nil {
		lw.timer.Stop()
	}
	lw.timer = time.AfterFunc(lw.debounce, lw.onChange)
}
