package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"car-report/internal/llm"
	"car-report/internal/normalize"
	"car-report/internal/render"
	"car-report/internal/reportparse"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	generateOutput  string
	generateRawPath string
)

var generateCmd = &cobra.Command{
	Use:   "generate <files...>",
	Short: "Build an HTML report from screenshots",
	Long: `Normalize the screenshots, send them to the model, parse the answer and
write a standalone HTML report. Requires OPENAI_API_KEY.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output HTML file (default report_<VIN>_<date>.html)")
	generateCmd.Flags().StringVar(&generateRawPath, "save-raw", "", "also write the raw model answer to this file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TaskTimeout)
	defer cancel()

	n, err := normalize.New(cfg.NormalizerConfig.Options())
	if err != nil {
		return err
	}
	client, err := llm.NewClient(cfg.LLM())
	if err != nil {
		return err
	}

	files, err := readSources(args)
	if err != nil {
		return err
	}
	results := n.NormalizeBatch(ctx, files)
	for _, r := range results {
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("file", r.Label).Msg("Skipping image")
		}
	}
	payloads := normalize.Flatten(results)
	if len(payloads) == 0 {
		return fmt.Errorf("none of the %d file(s) could be decoded", len(files))
	}
	log.Info().Int("files", len(files)).Int("payloads", len(payloads)).Msg("Sending images to the model")

	started := time.Now()
	raw, err := client.Analyze(ctx, payloads)
	if err != nil {
		return err
	}
	log.Info().Dur("elapsed", time.Since(started)).Int("chars", len(raw)).Msg("Model answered")

	if generateRawPath != "" {
		if err := os.WriteFile(generateRawPath, []byte(raw), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", generateRawPath, err)
		}
	}

	result := reportparse.Parse(raw)
	if result.Degraded {
		log.Warn().Err(result.Err).Msg("Model answer could not be parsed, the report shows the raw text")
	}

	body, err := render.HTML(result.Record, render.Branding{LogoURL: cfg.LogoURL, GeneratedAt: time.Now()})
	if err != nil {
		return err
	}
	summary := reportparse.SummaryOf(result.Record)
	doc, err := render.Document(body, summary.Brand+" "+summary.Model)
	if err != nil {
		return err
	}

	out := generateOutput
	if out == "" {
		out = render.ExportFileName(summary.VIN, time.Now())
	}
	if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s %s\t%s\n", out, summary.VIN, summary.Brand, summary.Model, result.Outcome())
	return nil
}
