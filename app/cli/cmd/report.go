package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"replyBandit/business/evaluation"
	"replyBandit/domain"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize an exported decision log",
	Long: `Joins exported decision and feedback records by turn id and prints
reward, exploration and propensity statistics plus per-style win rates.

Example:
  banditctl report --decisions decisions.jsonl --feedback feedback.jsonl`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("decisions", "", "JSONL file of decision records (required)")
	reportCmd.Flags().String("feedback", "", "JSONL file of feedback records")
	reportCmd.Flags().Bool("json", false, "print the summary as JSON")
	_ = reportCmd.MarkFlagRequired("decisions")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	decPath, _ := cmd.Flags().GetString("decisions")
	fbPath, _ := cmd.Flags().GetString("feedback")
	asJSON, _ := cmd.Flags().GetBool("json")

	decisions, err := readJSONL[domain.DecisionRecord](decPath)
	if err != nil {
		return err
	}
	var feedback []domain.FeedbackRecord
	if fbPath != "" {
		if feedback, err = readJSONL[domain.FeedbackRecord](fbPath); err != nil {
			return err
		}
	}

	sum := evaluation.Summarize(decisions, feedback)
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, sum)
	}
	printSummary(out, sum)
	return nil
}

func printSummary(w io.Writer, s domain.LogSummary) {
	fmt.Fprintf(w, "Turns:          %d\n", s.TurnCount)
	fmt.Fprintf(w, "Rewarded:       %d\n", s.RewardedCount)
	fmt.Fprintf(w, "Avg reward:     %s\n", optional(s.AvgReward))
	fmt.Fprintf(w, "Explore rate:   %.3f\n", s.ExploreRate)
	fmt.Fprintf(w, "Propensity:     mean %s, std %s\n", optional(s.PropensityMean), optional(s.PropensityStd))

	if len(s.StyleWinRates) == 0 {
		return
	}
	styles := make([]string, 0, len(s.StyleWinRates))
	for style := range s.StyleWinRates {
		styles = append(styles, style)
	}
	sort.Strings(styles)
	fmt.Fprintln(w, "Style win rates:")
	for _, style := range styles {
		fmt.Fprintf(w, "  %-12s %.3f\n", style, s.StyleWinRates[style])
	}
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
