package commands

import (
	"encoding/json"
	"fmt"

	"car-report/internal/reportparse"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var parseRecordOnly bool

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse raw model output into a report record",
	Long:  "Extract, repair and validate the JSON report in a raw model completion. Use - to read stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&parseRecordOnly, "record-only", false, "print only the record")
	rootCmd.AddCommand(parseCmd)
}

type parseOutput struct {
	Outcome string              `json:"outcome"`
	Summary reportparse.Summary `json:"summary"`
	Error   string              `json:"error,omitempty"`
	Issues  []reportparse.Issue `json:"issues,omitempty"`
	Record  json.RawMessage     `json:"record"`
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	result := reportparse.Parse(raw)
	record, err := result.Record.JSON()
	if err != nil {
		return err
	}

	var out any = json.RawMessage(record)
	if !parseRecordOnly {
		po := parseOutput{
			Outcome: result.Outcome(),
			Summary: reportparse.SummaryOf(result.Record),
			Record:  record,
		}
		if result.Err != nil {
			po.Error = result.Err.Error()
		}
		if !result.Degraded {
			report, _ := reportparse.Decode(result.Record)
			po.Issues = reportparse.Validate(report)
		}
		out = po
	}

	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
