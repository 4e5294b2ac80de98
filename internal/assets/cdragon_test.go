package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staticFixture = `{
	"setData": [
		{
			"number": 15,
			"name": "Old Set",
			"mutator": "TFTSet15",
			"champions": [],
			"traits": []
		},
		{
			"number": "16",
			"name": "Lore and Legends",
			"mutator": "TFTSet16",
			"champions": [
				{
					"characterName": "TFT16_Ahri",
					"name": "Ahri",
					"cost": 4,
					"traits": ["Sorcerer", "Spirit Walker"],
					"squareIcon": "ASSETS/Characters/TFT16_Ahri/HUD/TFT16_Ahri_Square.TFT_Set16.tex"
				},
				{
					"characterName": "TFT16_Garen",
					"name": "Garen",
					"cost": 1,
					"traits": ["Bastion"],
					"squareIcon": "ASSETS/Characters/TFT16_Garen/HUD/TFT16_Garen_Square.TFT_Set16.tex"
				}
			],
			"traits": [
				{"name": "Sorcerer", "display_name": "Sorcerer"}
			],
			"items": ["TFT_Item_BFSword", "TFT_Item_InfinityEdge"]
		},
		{
			"number": "16",
			"name": "Lore and Legends Turbo",
			"mutator": "TFTSet16_Turbo",
			"champions": [],
			"traits": []
		}
	],
	"items": [
		{"apiName": "TFT_Item_BFSword", "name": "B.F. Sword", "composition": []},
		{"apiName": "TFT_Item_InfinityEdge", "name": "Infinity Edge", "composition": ["TFT_Item_BFSword", "TFT_Item_SparringGloves"]},
		{"apiName": "TFT_Item_Unused", "name": "Unused", "composition": []}
	]
}`

func fixtureData(t *testing.T) *StaticData {
	t.Helper()
	var payload StaticData
	require.NoError(t, json.Unmarshal([]byte(staticFixture), &payload))
	return &payload
}

func TestFlexInt(t *testing.T) {
	// Set numbers appear both as JSON numbers and as strings.
	var f FlexInt
	require.NoError(t, json.Unmarshal([]byte(`16`), &f))
	assert.Equal(t, FlexInt(16), f)
	require.NoError(t, json.Unmarshal([]byte(`"16"`), &f))
	assert.Equal(t, FlexInt(16), f)
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.Equal(t, FlexInt(0), f)
	assert.Error(t, json.Unmarshal([]byte(`"sixteen"`), &f))
}

func TestFindSet(t *testing.T) {
	payload := fixtureData(t)

	t.Run("base variant wins over special modes", func(t *testing.T) {
		set, err := FindSet(payload, 16)
		require.NoError(t, err)
		assert.Equal(t, "TFTSet16", set.Mutator)
		assert.Equal(t, "Lore and Legends", set.Name)
	})

	t.Run("string-encoded number matches", func(t *testing.T) {
		set, err := FindSet(payload, 16)
		require.NoError(t, err)
		assert.Equal(t, 16, int(set.Number))
	})

	t.Run("unknown number falls back to last set", func(t *testing.T) {
		set, err := FindSet(payload, 99)
		require.NoError(t, err)
		assert.Equal(t, "TFTSet16_Turbo", set.Mutator)
	})

	t.Run("empty set data is an error", func(t *testing.T) {
		_, err := FindSet(&StaticData{}, 16)
		assert.Error(t, err)
	})
}

func TestExtractItems(t *testing.T) {
	payload := fixtureData(t)
	set, err := FindSet(payload, 16)
	require.NoError(t, err)

	items := ExtractItems(payload, set)
	require.Len(t, items, 2)
	assert.Contains(t, items, "TFT_Item_BFSword")
	assert.Contains(t, items, "TFT_Item_InfinityEdge")
	assert.NotContains(t, items, "TFT_Item_Unused", "items the set does not reference are excluded")

	assert.True(t, IsBasicItem(items["TFT_Item_BFSword"]))
	assert.False(t, IsBasicItem(items["TFT_Item_InfinityEdge"]))
}

func TestBuildStaticRef(t *testing.T) {
	ref, err := BuildStaticRef(fixtureData(t), 16)
	require.NoError(t, err)

	assert.Equal(t, 16, ref.SetNumber)
	assert.Equal(t, "Lore and Legends", ref.SetName)
	require.Len(t, ref.Champions, 2)
	assert.Equal(t, "TFT16_Ahri", ref.Champions[0].CharacterName)
	assert.Equal(t, 4, ref.Champions[0].Cost)
	assert.NotEmpty(t, ref.Timestamp)
}

func TestSaveStaticRef_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ref, err := BuildStaticRef(fixtureData(t), 16)
	require.NoError(t, err)

	path := filepath.Join(dir, "out", "static_ref.json")
	require.NoError(t, SaveStaticRef(ref, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var loaded StaticRef
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, ref.SetName, loaded.SetName)
	assert.Len(t, loaded.Champions, 2)
}

func TestIconURL(t *testing.T) {
	u := NewUpdater("http://example/static.json", "http://example/game/")
	got := u.iconURL("ASSETS/Characters/TFT16_Ahri/HUD/TFT16_Ahri_Square.TFT_Set16.tex")
	assert.Equal(t, "http://example/game/assets/characters/tft16_ahri/hud/tft16_ahri_square.tft_set16.png", got)
}

func TestUpdater_Refresh(t *testing.T) {
	// One handler serves both the static document and every icon.
	icon := []byte("\x89PNG fake image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/static.json":
			w.Write([]byte(staticFixture))
		case filepath.Ext(r.URL.Path) == ".png":
			w.Write(icon)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	u := NewUpdater(srv.URL+"/static.json", srv.URL+"/game")

	ref, err := u.Refresh(context.Background(), 16, filepath.Join(dir, "static_ref.json"), filepath.Join(dir, "corpus"), "set16")
	require.NoError(t, err)
	require.Len(t, ref.Champions, 2)

	for _, name := range []string{"TFT16_Ahri", "TFT16_Garen"} {
		data, err := os.ReadFile(filepath.Join(dir, "corpus", "set16", name+".png"))
		require.NoError(t, err)
		assert.Equal(t, icon, data)
	}

	// A second refresh skips files already on disk.
	count, err := u.DownloadIcons(context.Background(), ref, filepath.Join(dir, "corpus"), "set16")
	require.NoError(t, err)
	assert.Zero(t, count)
}
