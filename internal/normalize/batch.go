package normalize

import (
	"context"

	"car-report/internal/models"

	"golang.org/x/sync/errgroup"
)

// SourceFile is one raw upload awaiting normalization.
type SourceFile struct {
	Label string
	Data  []byte
}

// FileResult holds the outcome for a single SourceFile. Err is set when the
// file could not be decoded; the other files of the batch are unaffected.
type FileResult struct {
	Label    string
	Payloads []models.ImagePayload
	Err      error
}

// NormalizeBatch normalizes files in parallel. Results are returned in input
// order and chunk order within each file is preserved.
func (n *Normalizer) NormalizeBatch(ctx context.Context, files []SourceFile) []FileResult {
	results := make([]FileResult, len(files))

	var g errgroup.Group
	g.SetLimit(n.opts.Concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = FileResult{Label: f.Label, Err: err}
				return nil
			}
			payloads, err := n.NormalizeBytes(f.Data, f.Label)
			results[i] = FileResult{Label: f.Label, Payloads: payloads, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Flatten concatenates the payloads of successful results in order.
func Flatten(results []FileResult) []models.ImagePayload {
	var payloads []models.ImagePayload
	for _, r := range results {
		if r.Err == nil {
			payloads = append(payloads, r.Payloads...)
		}
	}
	return payloads
}
