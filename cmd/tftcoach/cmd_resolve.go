package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/zkH2O/tftcoach/internal/identify"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [image]",
	Short: "Resolve a cropped image against the reference corpus",
	Long: `Builds the manifest for the configured set and reports which entity the
given crop matches, with its similarity score. Useful for tuning the match
threshold and checking corpus coverage.`,
	Args: cobra.ExactArgs(1),
	RunE: resolveImage,
}

func resolveImage(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	m, err := identify.BuildManifest(ctx, cfg.Identify.CorpusDir, cfg.Identify.SetTag)
	if err != nil {
		return fmt.Errorf("manifest build failed: %w", err)
	}
	resolver := identify.NewResolver(identify.NewHolder(m), cfg.Identify.MatchThreshold)

	res := resolver.Resolve(img, img.Bounds(), 0)
	if res.IsUnknown() {
		fmt.Println(warnStyle.Render(fmt.Sprintf("unknown (best similarity %.4f, threshold %.2f)",
			res.Confidence, cfg.Identify.MatchThreshold)))
		return nil
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("%s (similarity %.4f)", res.EntityID, res.Confidence)))
	return nil
}
