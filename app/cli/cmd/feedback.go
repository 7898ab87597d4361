package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"replyBandit/internal/grpcapi"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Send a reward for a logged turn over gRPC",
	Long: `Reports the observed reward for a decision to a running server.
Repeating the call for the same turn is safe; only the first report is
applied.

Example:
  banditctl feedback --addr localhost:9090 --turn 3f1c... --arm 2 --reward 1`,
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().String("addr", "localhost:9090", "gRPC address of the server")
	feedbackCmd.Flags().String("turn", "", "turn id returned by the decision (required)")
	feedbackCmd.Flags().Int("arm", -1, "arm index that was shown (required)")
	feedbackCmd.Flags().Float64("reward", 0, "observed reward")
	feedbackCmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	_ = feedbackCmd.MarkFlagRequired("turn")
	_ = feedbackCmd.MarkFlagRequired("arm")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	turn, _ := cmd.Flags().GetString("turn")
	arm, _ := cmd.Flags().GetInt("arm")
	reward, _ := cmd.Flags().GetFloat64("reward")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client, err := grpcapi.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	res, err := client.Feedback(ctx, turn, arm, reward)
	if err != nil {
		return fmt.Errorf("feedback failed: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
