package identify

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// CorpusWatcher watches the active set's corpus directory and triggers a
// manifest rebuild once the directory has been quiet for the debounce
// window. Rapid batches of file writes (an asset update dropping dozens of
// icons) collapse into a single rebuild.
type CorpusWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	rebuild  func(ctx context.Context) error

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCorpusWatcher creates a watcher over corpusDir/setTag.
func NewCorpusWatcher(corpusDir, setTag string, rebuild func(ctx context.Context) error) (*CorpusWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &CorpusWatcher{
		watcher:  w,
		dir:      filepath.Join(corpusDir, setTag),
		debounce: 2 * time.Second,
		rebuild:  rebuild,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs in a goroutine.
func (cw *CorpusWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := cw.watcher.Add(cw.dir); err != nil {
		// Directory may not exist yet; the first asset update creates it.
		logging.Get(logging.CategoryManifest).Warn("corpus watch failed (dir may not exist): %v", err)
	} else {
		logging.Manifest("watching corpus directory: %s", cw.dir)
	}

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (cw *CorpusWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stop)
	<-cw.done
	cw.watcher.Close()
}

func (cw *CorpusWatcher) run(ctx context.Context) {
	defer close(cw.done)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var rebuildAt time.Time
	pending := false

	for {
		select {
		case <-cw.stop:
			return
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !isCorpusImage(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			rebuildAt = time.Now().Add(cw.debounce)
			logging.Get(logging.CategoryManifest).Debug("corpus change: %s %s", event.Op, event.Name)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryManifest).Warn("corpus watcher error: %v", err)

		case <-ticker.C:
			if !pending || time.Now().Before(rebuildAt) {
				continue
			}
			pending = false
			if err := cw.rebuild(ctx); err != nil {
				// Previous manifest stays active; report and keep watching.
				logging.Get(logging.CategoryManifest).Error("corpus-triggered rebuild failed: %v", err)
			} else {
				logging.Manifest("manifest rebuilt after corpus change")
			}
		}
	}
}

func isCorpusImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}
