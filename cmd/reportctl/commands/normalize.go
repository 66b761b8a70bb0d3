package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"car-report/internal/normalize"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var normalizeOutputDir string

var normalizeCmd = &cobra.Command{
	Use:   "normalize <files...>",
	Short: "Resize, split and compress screenshots",
	Long:  "Write the JPEG payloads that would be sent to the model, one file per chunk.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNormalize,
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeOutputDir, "output", "o", ".", "output directory")
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	n, err := normalize.New(cfg.NormalizerConfig.Options())
	if err != nil {
		return err
	}
	files, err := readSources(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(normalizeOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	failed := 0
	for _, result := range n.NormalizeBatch(cmd.Context(), files) {
		if result.Err != nil {
			log.Warn().Err(result.Err).Str("file", result.Label).Msg("Skipping image")
			failed++
			continue
		}

		base := strings.TrimSuffix(result.Label, filepath.Ext(result.Label))
		for i, p := range result.Payloads {
			name := base + ".jpg"
			if len(result.Payloads) > 1 {
				name = fmt.Sprintf("%s_part%02d.jpg", base, i+1)
			}
			path := filepath.Join(normalizeOutputDir, name)
			if err := os.WriteFile(path, p.Bytes, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%dx%d -> %dx%d\tq=%d\t%d bytes\n",
				path, p.Original.Width, p.Original.Height, p.Output.Width, p.Output.Height, p.Quality, len(p.Bytes))
		}
	}

	if failed == len(files) {
		return fmt.Errorf("none of the %d file(s) could be decoded", len(files))
	}
	return nil
}
