package identify

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// ErrReloadFailed marks an aborted manifest reload. The previously active
// manifest remains authoritative.
var ErrReloadFailed = errors.New("manifest reload failed")

// Entry maps one canonical entity to its reference fingerprints.
type Entry struct {
	EntityID     string        `json:"entity_id"`
	DisplayName  string        `json:"display_name"`
	SetTag       string        `json:"set_tag"`
	Fingerprints []Fingerprint `json:"fingerprints"`
}

// Manifest is an immutable fingerprint lookup table for one set version.
// It is replaced wholesale on reload, never mutated in place.
type Manifest struct {
	SetTag  string    `json:"set_tag"`
	BuiltAt time.Time `json:"built_at"`
	Entries []Entry   `json:"entries"` // sorted by EntityID
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// BuildManifest fingerprints every reference image under corpusDir/setTag.
// Images directly under the set directory name an entity by file stem;
// images in a subdirectory all belong to the entity named by that directory
// (multiple reference crops per entity).
func BuildManifest(ctx context.Context, corpusDir, setTag string) (*Manifest, error) {
	timer := logging.StartTimer(logging.CategoryManifest, "BuildManifest")
	defer timer.Stop()

	root := filepath.Join(corpusDir, setTag)

	type ref struct {
		entityID string
		path     string
	}
	var refs []ref
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !imageExts[ext] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entityID := strings.TrimSuffix(filepath.Base(path), ext)
		if dir := filepath.Dir(rel); dir != "." {
			// Nested reference crops share the directory's entity id.
			entityID = filepath.Base(dir)
		}
		refs = append(refs, ref{entityID: entityID, path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan corpus %s: %w", root, err)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no reference images under %s", root)
	}

	// WalkDir visits lexically, so refs is already deterministic; fingerprint
	// in parallel but keep results positionally aligned.
	fps := make([]Fingerprint, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, r := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(r.path)
			if err != nil {
				return fmt.Errorf("open %s: %w", r.path, err)
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", r.path, err)
			}
			fps[i] = Compute(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Entry)
	var order []string
	for i, r := range refs {
		e, ok := byID[r.entityID]
		if !ok {
			e = &Entry{
				EntityID:    r.entityID,
				DisplayName: strings.ReplaceAll(r.entityID, "_", " "),
				SetTag:      setTag,
			}
			byID[r.entityID] = e
			order = append(order, r.entityID)
		}
		e.Fingerprints = append(e.Fingerprints, fps[i])
	}

	sort.Strings(order)
	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, *byID[id])
	}

	m := &Manifest{SetTag: setTag, BuiltAt: time.Now(), Entries: entries}
	logging.Manifest("built manifest %s: %d entities from %d reference images", setTag, len(entries), len(refs))
	return m, nil
}

// Holder publishes the active manifest through a single atomic reference.
// Readers never observe a partially-built manifest; a failed reload leaves
// the previous manifest fully active.
type Holder struct {
	cur atomic.Pointer[Manifest]
	// Serializes reloads; never held while resolving.
	reloadMu sync.Mutex
}

// NewHolder creates a holder with an initial manifest (may be nil).
func NewHolder(m *Manifest) *Holder {
	h := &Holder{}
	if m != nil {
		h.cur.Store(m)
	}
	return h
}

// Current returns the active manifest, or nil before the first load.
func (h *Holder) Current() *Manifest {
	return h.cur.Load()
}

// Load installs a manifest for setTag, preferring the disk cache and falling
// back to a full corpus build. Used at startup and on a set switch.
func (h *Holder) Load(ctx context.Context, corpusDir, setTag string, cache *Cache) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	if cache != nil {
		if m, err := cache.Load(setTag); err != nil {
			logging.Get(logging.CategoryManifest).Warn("manifest cache read failed: %v", err)
		} else if m != nil {
			h.cur.Store(m)
			logging.Manifest("loaded manifest %s from cache (%d entities)", setTag, m.Len())
			return nil
		}
	}
	return h.rebuildLocked(ctx, corpusDir, setTag, cache)
}

// Rebuild builds a fresh manifest off to the side and swaps it in one atomic
// step. Used when the corpus itself changed, so the cache is bypassed and
// refreshed.
func (h *Holder) Rebuild(ctx context.Context, corpusDir, setTag string, cache *Cache) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	return h.rebuildLocked(ctx, corpusDir, setTag, cache)
}

func (h *Holder) rebuildLocked(ctx context.Context, corpusDir, setTag string, cache *Cache) error {
	m, err := BuildManifest(ctx, corpusDir, setTag)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}
	if cache != nil {
		if err := cache.Store(m); err != nil {
			logging.Get(logging.CategoryManifest).Warn("manifest cache write failed: %v", err)
		}
	}
	h.cur.Store(m)
	return nil
}
