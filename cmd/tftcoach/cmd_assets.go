package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zkH2O/tftcoach/internal/assets"
)

var assetsSetNumber int

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Refresh static game data and the reference-image corpus",
	Long: `Downloads the current static game data, extracts the configured set's
champions, traits, and items, saves the processed reference JSON, and fills
the identification corpus with champion square icons.

Run this when a new set or patch lands; the running pipeline hot-reloads the
corpus automatically.`,
	RunE: refreshAssets,
}

func init() {
	assetsCmd.Flags().IntVar(&assetsSetNumber, "set", 0, "set number to extract (default: config value)")
}

func refreshAssets(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	setNumber := cfg.Assets.SetNumber
	if assetsSetNumber > 0 {
		setNumber = assetsSetNumber
	}

	fmt.Println(titleStyle.Render("asset refresh"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("set %d -> %s", setNumber, cfg.Identify.CorpusDir)))

	u := assets.NewUpdater(cfg.Assets.CDragonURL, cfg.Assets.IconBase)
	ref, err := u.Refresh(ctx, setNumber, cfg.Assets.StaticPath, cfg.Identify.CorpusDir, cfg.Identify.SetTag)
	if err != nil {
		return fmt.Errorf("asset refresh failed: %w", err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("%s: %d champions, %d traits, %d items",
		ref.SetName, len(ref.Champions), len(ref.Traits), len(ref.Items))))
	return nil
}
