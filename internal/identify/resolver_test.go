package identify

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCorpus lays out a reference corpus: corpusDir/setTag/<entity>.png.
func writeCorpus(t *testing.T, corpusDir, setTag string, entities map[string]image.Image) {
	t.Helper()
	root := filepath.Join(corpusDir, setTag)
	require.NoError(t, os.MkdirAll(root, 0755))
	for id, img := range entities {
		f, err := os.Create(filepath.Join(root, id+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func TestBuildManifest(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "set16", map[string]image.Image{
		"TFT16_Ahri":  patternImage(1, 64, 64),
		"TFT16_Garen": patternImage(2, 64, 64),
		"BF_Sword":    patternImage(3, 64, 64),
	})

	m, err := BuildManifest(context.Background(), dir, "set16")
	require.NoError(t, err)

	assert.Equal(t, "set16", m.SetTag)
	require.Equal(t, 3, m.Len())
	// Entries are sorted by entity id for deterministic scans.
	assert.Equal(t, "BF_Sword", m.Entries[0].EntityID)
	assert.Equal(t, "TFT16_Ahri", m.Entries[1].EntityID)
	assert.Equal(t, "TFT16_Garen", m.Entries[2].EntityID)
	assert.Equal(t, "BF Sword", m.Entries[0].DisplayName)
	for _, e := range m.Entries {
		require.Len(t, e.Fingerprints, 1)
		assert.Len(t, e.Fingerprints[0], FingerprintDim)
	}
}

func TestBuildManifest_NestedReferenceCrops(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "set16", "TFT16_Ahri")
	require.NoError(t, os.MkdirAll(root, 0755))
	for i, name := range []string{"shop.png", "board.png"} {
		f, err := os.Create(filepath.Join(root, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, patternImage(i+1, 48, 48)))
		require.NoError(t, f.Close())
	}

	m, err := BuildManifest(context.Background(), dir, "set16")
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "TFT16_Ahri", m.Entries[0].EntityID)
	assert.Len(t, m.Entries[0].Fingerprints, 2)
}

func TestBuildManifest_EmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "set16"), 0755))

	_, err := BuildManifest(context.Background(), dir, "set16")
	assert.Error(t, err)
}

func TestResolver_MatchAndUnknown(t *testing.T) {
	dir := t.TempDir()
	ahri := patternImage(1, 64, 64)
	garen := patternImage(40, 64, 64)
	writeCorpus(t, dir, "set16", map[string]image.Image{
		"TFT16_Ahri":  ahri,
		"TFT16_Garen": garen,
	})

	m, err := BuildManifest(context.Background(), dir, "set16")
	require.NoError(t, err)
	holder := NewHolder(m)
	resolver := NewResolver(holder, 0.92)

	t.Run("exact crop resolves", func(t *testing.T) {
		res := resolver.Resolve(ahri, image.Rect(0, 0, 64, 64), 12)
		assert.Equal(t, "TFT16_Ahri", res.EntityID)
		assert.False(t, res.IsUnknown())
		assert.GreaterOrEqual(t, res.Confidence, 0.92)
		assert.Equal(t, uint64(12), res.FrameSeq)
	})

	t.Run("foreign region is unknown", func(t *testing.T) {
		res := resolver.Resolve(patternImage(99, 64, 64), image.Rect(0, 0, 64, 64), 13)
		assert.True(t, res.IsUnknown())
		assert.Equal(t, Unknown, res.EntityID)
	})

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		first := resolver.Resolve(garen, image.Rect(5, 5, 69, 69), 1)
		for i := 0; i < 10; i++ {
			again := resolver.Resolve(garen, image.Rect(5, 5, 69, 69), 1)
			assert.Equal(t, first, again)
		}
	})

	t.Run("empty manifest resolves to unknown", func(t *testing.T) {
		empty := NewResolver(NewHolder(nil), 0.92)
		res := empty.Resolve(ahri, image.Rect(0, 0, 64, 64), 1)
		assert.True(t, res.IsUnknown())
	})
}

func TestHolder_AtomicReload(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "setA", map[string]image.Image{"A_One": patternImage(1, 32, 32)})
	writeCorpus(t, dir, "setB", map[string]image.Image{"B_One": patternImage(2, 32, 32), "B_Two": patternImage(3, 32, 32)})

	mA, err := BuildManifest(context.Background(), dir, "setA")
	require.NoError(t, err)
	mB, err := BuildManifest(context.Background(), dir, "setB")
	require.NoError(t, err)

	holder := NewHolder(mA)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m := holder.Current()
				// A manifest is observed wholesale: every entry belongs to
				// the manifest's own set tag, never a mix.
				for _, e := range m.Entries {
					if e.SetTag != m.SetTag {
						t.Errorf("mixed manifest observed: entry %s has tag %s in manifest %s", e.EntityID, e.SetTag, m.SetTag)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			holder.cur.Store(mB)
		} else {
			holder.cur.Store(mA)
		}
	}
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestHolder_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "set16", map[string]image.Image{"TFT16_Ahri": patternImage(1, 32, 32)})

	holder := NewHolder(nil)
	require.NoError(t, holder.Load(context.Background(), dir, "set16", nil))
	before := holder.Current()
	require.NotNil(t, before)

	err := holder.Rebuild(context.Background(), dir, "set_does_not_exist", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReloadFailed)
	assert.Same(t, before, holder.Current(), "failed reload must leave the previous manifest active")
}

func TestCache_RoundTripAndTagMiss(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "set16", map[string]image.Image{
		"TFT16_Ahri": patternImage(1, 32, 32),
	})
	m, err := BuildManifest(context.Background(), dir, "set16")
	require.NoError(t, err)

	cache, err := OpenCache(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Store(m))

	loaded, err := cache.Load("set16")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.SetTag, loaded.SetTag)
	require.Equal(t, m.Len(), loaded.Len())
	assert.Equal(t, m.Entries[0].EntityID, loaded.Entries[0].EntityID)
	assert.Equal(t, m.Entries[0].Fingerprints, loaded.Entries[0].Fingerprints)

	// Tag mismatch is the only invalidation: a different tag is a miss.
	miss, err := cache.Load("set17")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestHolder_LoadPrefersCache(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, "set16", map[string]image.Image{"TFT16_Ahri": patternImage(1, 32, 32)})

	cache, err := OpenCache(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)
	defer cache.Close()

	holder := NewHolder(nil)
	require.NoError(t, holder.Load(context.Background(), dir, "set16", cache))
	first := holder.Current()

	// Corpus gone: a cache hit must still satisfy a subsequent load.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "set16")))
	holder2 := NewHolder(nil)
	require.NoError(t, holder2.Load(context.Background(), dir, "set16", cache))
	assert.Equal(t, first.Len(), holder2.Current().Len())
}
