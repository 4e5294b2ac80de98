// Package assets maintains the reference-image corpus and the static game
// data it is derived from. Everything here is offline maintenance: the live
// pipeline only ever reads the corpus directory this package writes.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// FlexInt tolerates set numbers encoded as either JSON numbers or strings;
// CDragon ships both across set variants.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("set number %q is not an integer: %w", s, err)
	}
	*f = FlexInt(n)
	return nil
}

// SetInfo is one entry of CDragon's setData array.
type SetInfo struct {
	Number    FlexInt         `json:"number"`
	Name      string          `json:"name"`
	Mutator   string          `json:"mutator"`
	Champions []ChampionInfo  `json:"champions"`
	Traits    []TraitInfo     `json:"traits"`
	Items     json.RawMessage `json:"items"`
}

// ChampionInfo is the slice of champion data the coach needs.
type ChampionInfo struct {
	CharacterName string   `json:"characterName"`
	Name          string   `json:"name"`
	Cost          int      `json:"cost"`
	Traits        []string `json:"traits"`
	SquareIcon    string   `json:"squareIcon"`
}

// TraitInfo is one trait definition.
type TraitInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ItemInfo is one item definition. Basic components have an empty
// composition; combined items list the components they are built from.
type ItemInfo struct {
	APIName     string   `json:"apiName"`
	Name        string   `json:"name"`
	Composition []string `json:"composition"`
	Icon        string   `json:"icon"`
}

// StaticData is the raw CDragon document: every set variant plus the
// root-level item table that set item lists reference.
type StaticData struct {
	SetData []SetInfo  `json:"setData"`
	Items   []ItemInfo `json:"items"`
}

// StaticRef is the processed static data written to disk for inspection and
// downstream tooling.
type StaticRef struct {
	Timestamp string              `json:"timestamp"`
	SetNumber int                 `json:"set_number"`
	SetName   string              `json:"set_name"`
	Champions []ChampionInfo      `json:"champions"`
	Traits    []TraitInfo         `json:"traits"`
	Items     map[string]ItemInfo `json:"items"`
}

// Updater fetches CDragon static data and refreshes the local corpus.
type Updater struct {
	cdragonURL string
	iconBase   string
	httpClient *http.Client
}

// NewUpdater creates an updater. iconBase is the raw game-asset root that
// icon paths resolve against.
func NewUpdater(cdragonURL, iconBase string) *Updater {
	return &Updater{
		cdragonURL: cdragonURL,
		iconBase:   strings.TrimRight(iconBase, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// FetchStatic downloads and parses the full static data document.
func (u *Updater) FetchStatic(ctx context.Context) (*StaticData, error) {
	timer := logging.StartTimer(logging.CategoryAssets, "fetch static data")
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, "GET", u.cdragonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("static data fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("static data endpoint returned status %d", resp.StatusCode)
	}

	var payload StaticData
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse static data: %w", err)
	}
	logging.Assets("fetched static data: %d sets, %d root items", len(payload.SetData), len(payload.Items))
	return &payload, nil
}

// FindSet picks the set matching setNumber. Multiple variants of a set ship
// together (base plus special modes); the base mutator "TFTSet<n>" wins. If
// nothing matches, the last entry is used as a best guess.
func FindSet(payload *StaticData, setNumber int) (*SetInfo, error) {
	if len(payload.SetData) == 0 {
		return nil, fmt.Errorf("static data contains no sets")
	}

	var matches []*SetInfo
	for i := range payload.SetData {
		if int(payload.SetData[i].Number) == setNumber {
			matches = append(matches, &payload.SetData[i])
		}
	}
	if len(matches) == 0 {
		last := &payload.SetData[len(payload.SetData)-1]
		logging.Assets("set %d not found, falling back to last set %q (number %d)", setNumber, last.Name, int(last.Number))
		return last, nil
	}

	baseMutator := fmt.Sprintf("TFTSet%d", setNumber)
	for _, m := range matches {
		if m.Mutator == baseMutator {
			return m, nil
		}
	}
	logging.Assets("no base variant of set %d, using first of %d matches (%q)", setNumber, len(matches), matches[0].Mutator)
	return matches[0], nil
}

// ExtractItems resolves the set's item list against the root item table.
// Set items may be full objects or bare apiName strings referencing a root
// entry; both forms appear in the wild.
func ExtractItems(payload *StaticData, set *SetInfo) map[string]ItemInfo {
	root := make(map[string]ItemInfo, len(payload.Items))
	for _, it := range payload.Items {
		if it.APIName != "" {
			root[it.APIName] = it
		}
	}

	items := make(map[string]ItemInfo)
	if len(set.Items) > 0 {
		var refs []string
		if err := json.Unmarshal(set.Items, &refs); err == nil {
			for _, ref := range refs {
				if it, ok := root[ref]; ok {
					items[ref] = it
				}
			}
			return items
		}
		var full []ItemInfo
		if err := json.Unmarshal(set.Items, &full); err == nil {
			for _, it := range full {
				if it.APIName != "" {
					items[it.APIName] = it
				}
			}
			return items
		}
	}

	logging.Assets("set has no item list, using %d root items", len(root))
	return root
}

// IsBasicItem reports whether the item is a raw component rather than a
// combined item.
func IsBasicItem(it ItemInfo) bool {
	return len(it.Composition) == 0
}

// BuildStaticRef assembles the processed reference document.
func BuildStaticRef(payload *StaticData, setNumber int) (*StaticRef, error) {
	set, err := FindSet(payload, setNumber)
	if err != nil {
		return nil, err
	}
	return &StaticRef{
		Timestamp: time.Now().Format(time.RFC3339),
		SetNumber: setNumber,
		SetName:   set.Name,
		Champions: set.Champions,
		Traits:    set.Traits,
		Items:     ExtractItems(payload, set),
	}, nil
}

// SaveStaticRef writes the reference document to path.
func SaveStaticRef(ref *StaticRef, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal static ref: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write static ref: %w", err)
	}
	logging.Assets("static ref saved to %s (%d champions, %d items)", path, len(ref.Champions), len(ref.Items))
	return nil
}

// iconURL maps a raw in-game asset path to its exported PNG URL: exported
// assets are lowercased with .tex/.dds swapped for .png.
func (u *Updater) iconURL(assetPath string) string {
	p := strings.ToLower(assetPath)
	p = strings.TrimSuffix(p, ".tex")
	p = strings.TrimSuffix(p, ".dds")
	p = strings.TrimPrefix(p, "assets/")
	if !strings.HasSuffix(p, ".png") {
		p += ".png"
	}
	return u.iconBase + "/assets/" + p
}

// DownloadIcons fetches champion square icons into corpusDir/setTag/,
// named by characterName so the identity resolver can use the file stem as
// the entity id. Already-present files are skipped.
func (u *Updater) DownloadIcons(ctx context.Context, ref *StaticRef, corpusDir, setTag string) (int, error) {
	root := filepath.Join(corpusDir, setTag)
	if err := os.MkdirAll(root, 0755); err != nil {
		return 0, fmt.Errorf("failed to create corpus dir: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	fetched := make([]bool, len(ref.Champions))
	for i, champ := range ref.Champions {
		if champ.SquareIcon == "" || champ.CharacterName == "" {
			continue
		}
		dest := filepath.Join(root, champ.CharacterName+".png")
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		i, champ := i, champ
		g.Go(func() error {
			if err := u.downloadFile(ctx, u.iconURL(champ.SquareIcon), dest); err != nil {
				logging.Assets("icon for %s failed: %v", champ.CharacterName, err)
				return nil // one bad icon must not abort the refresh
			}
			fetched[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	for _, ok := range fetched {
		if ok {
			count++
		}
	}
	logging.Assets("downloaded %d icons into %s", count, root)
	return count, nil
}

func (u *Updater) downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d for %s", resp.StatusCode, url)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// Refresh runs the full update: fetch, process, save, download.
func (u *Updater) Refresh(ctx context.Context, setNumber int, staticPath, corpusDir, setTag string) (*StaticRef, error) {
	payload, err := u.FetchStatic(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := BuildStaticRef(payload, setNumber)
	if err != nil {
		return nil, err
	}
	if err := SaveStaticRef(ref, staticPath); err != nil {
		return nil, err
	}
	if _, err := u.DownloadIcons(ctx, ref, corpusDir, setTag); err != nil {
		return nil, err
	}
	return ref, nil
}
