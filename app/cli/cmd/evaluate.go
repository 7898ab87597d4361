package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"replyBandit/business/evaluation"
	"replyBandit/domain"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run off-policy diagnostics over logged records",
	Long: `Reads evaluation records, one JSON object per line, and prints the
off-policy report: effective sample size, IPS and doubly robust estimates,
a clipping recommendation and any distribution shift signals.

Examples:
  banditctl evaluate --input week42.jsonl
  banditctl evaluate --input week42.jsonl --reference training.jsonl --json`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("input", "", "JSONL file of evaluation records (required)")
	evaluateCmd.Flags().String("reference", "", "JSONL file of training-period records used for feature drift")
	evaluateCmd.Flags().Float64("clip-percentile", evaluation.DefaultConfig().ClipPercentile, "weight percentile used as the clipping threshold")
	evaluateCmd.Flags().Bool("json", false, "print the report as JSON")
	_ = evaluateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	refPath, _ := cmd.Flags().GetString("reference")
	clip, _ := cmd.Flags().GetFloat64("clip-percentile")
	asJSON, _ := cmd.Flags().GetBool("json")

	records, err := readJSONL[domain.EvaluationRecord](input)
	if err != nil {
		return err
	}

	cfg := evaluation.DefaultConfig()
	cfg.ClipPercentile = clip
	if refPath != "" {
		refRecords, err := readJSONL[domain.EvaluationRecord](refPath)
		if err != nil {
			return err
		}
		ref, err := evaluation.DescribeFeatures(refRecords)
		if err != nil {
			return fmt.Errorf("describing reference features: %w", err)
		}
		cfg.Reference = ref
	}

	rep, err := evaluation.Evaluate(records, cfg)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, rep)
	}
	printReport(out, rep)
	return nil
}

func printReport(w io.Writer, rep domain.EvaluationReport) {
	fmt.Fprintln(w, "Off-policy Report")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "  Samples:             %d\n", rep.SampleCount)
	fmt.Fprintf(w, "  ESS:                 %.2f (ratio %.3f)\n", rep.ESS, rep.ESSRatio)
	fmt.Fprintf(w, "  Effective support:   %.2f\n", rep.EffectiveSupport)
	fmt.Fprintf(w, "  IPS mean:            %.4f (stderr %.4f)\n", rep.IPSMean, rep.IPSStdErr)
	fmt.Fprintf(w, "  SNIPS mean:          %.4f\n", rep.SNIPSMean)
	fmt.Fprintf(w, "  DR mean:             %.4f (variance %.4f)\n", rep.DRMean, rep.DRVariance)
	fmt.Fprintf(w, "  Baseline coverage:   %.1f%%\n", rep.BaselineCoverage*100)
	fmt.Fprintf(w, "  Clip threshold:      %.3f\n", rep.ClipThreshold)
	fmt.Fprintf(w, "  Clipped IPS mean:    %.4f (%.1f%% clipped)\n", rep.ClippedIPSMean, rep.ClippedFraction*100)
	fmt.Fprintf(w, "  Propensity:          mean %.3f, std %.3f\n", rep.PropensityMean, rep.PropensityStd)
	fmt.Fprintln(w)

	if len(rep.ShiftSignals) == 0 {
		fmt.Fprintln(w, "No shift signals.")
		return
	}
	fmt.Fprintln(w, "Shift signals:")
	for _, s := range rep.ShiftSignals {
		dim := ""
		if s.Dimension >= 0 {
			dim = fmt.Sprintf(" [dim %d]", s.Dimension)
		}
		fmt.Fprintf(w, "  - %s%s: %.4f (threshold %.4f) %s\n", s.Kind, dim, s.Value, s.Threshold, s.Detail)
	}
}
