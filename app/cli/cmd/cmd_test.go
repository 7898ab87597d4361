//go:build !integration

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"replyBandit/domain"
	"replyBandit/internal/repository/sqlite"
	"replyBandit/pkg/utils"
)

// execute runs the root command with fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeLines(t *testing.T, name string, values ...any) string {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf.Write(b)
		buf.WriteString("\n\n")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDecodeJSONL(t *testing.T) {
	in := "{\"reward\":1,\"propensity\":0.5}\n\n  \n{\"reward\":0,\"propensity\":0.25}\n"
	recs, err := decodeJSONL[domain.EvaluationRecord](strings.NewReader(in), "batch")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[1].Propensity != 0.25 {
		t.Fatalf("unexpected records: %+v", recs)
	}

	_, err = decodeJSONL[domain.EvaluationRecord](strings.NewReader("{}\n{oops\n"), "batch")
	if err == nil || !strings.Contains(err.Error(), "batch:2") {
		t.Fatalf("err=%v, want a batch:2 location", err)
	}
}

func TestEvaluateCommand(t *testing.T) {
	input := writeLines(t, "batch.jsonl",
		domain.EvaluationRecord{Propensity: 0.5, Reward: 1, Features: []float64{0.1, 0.2}},
		domain.EvaluationRecord{Propensity: 0.25, Reward: 0, Features: []float64{0.3, 0.1}},
		domain.EvaluationRecord{Propensity: 0.8, Reward: 1, Features: []float64{0.2, 0.2}},
	)
	ref := writeLines(t, "ref.jsonl",
		domain.EvaluationRecord{Propensity: 0.5, Reward: 1, Features: []float64{0.1, 0.2}},
		domain.EvaluationRecord{Propensity: 0.5, Reward: 0, Features: []float64{0.2, 0.1}},
	)

	out, err := execute(t, "evaluate", "--input", input, "--reference", ref, "--json")
	if err != nil {
		t.Fatalf("evaluate: %v\n%s", err, out)
	}
	var rep domain.EvaluationReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, out)
	}
	if rep.SampleCount != 3 {
		t.Fatalf("sample_count=%d, want 3", rep.SampleCount)
	}
	if !(rep.ESS > 0 && rep.ESS <= 3) {
		t.Fatalf("ess=%v outside (0, 3]", rep.ESS)
	}

	out, err = execute(t, "evaluate", "--input", input)
	if err != nil {
		t.Fatalf("evaluate text: %v", err)
	}
	if !strings.Contains(out, "Off-policy Report") || !strings.Contains(out, "Samples:             3") {
		t.Fatalf("unexpected text report:\n%s", out)
	}
}

func TestEvaluateCommand_Errors(t *testing.T) {
	bad := writeLines(t, "bad.jsonl", domain.EvaluationRecord{Propensity: 0, Reward: 1})

	if _, err := execute(t, "evaluate"); err == nil {
		t.Fatal("missing --input should fail")
	}
	if _, err := execute(t, "evaluate", "--input", filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatal("missing file should fail")
	}
	_, err := execute(t, "evaluate", "--input", bad)
	if err == nil || !strings.Contains(err.Error(), "propensity") {
		t.Fatalf("err=%v, want a propensity validation error", err)
	}
}

func TestReportCommand(t *testing.T) {
	decision := func(turn, style string, explored bool) domain.DecisionRecord {
		return domain.DecisionRecord{
			TurnID:      turn,
			Candidates:  []domain.ScoredCandidate{{Candidate: domain.Candidate{Style: style}, Arm: style}},
			ChosenIndex: 0,
			Propensity:  0.5,
			Explored:    explored,
		}
	}
	decisions := writeLines(t, "decisions.jsonl",
		decision("t1", "warm", false),
		decision("t2", "curious", true),
	)
	feedback := writeLines(t, "feedback.jsonl",
		domain.FeedbackRecord{TurnID: "t1", Reward: 1},
	)

	out, err := execute(t, "report", "--decisions", decisions, "--feedback", feedback, "--json")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var sum domain.LogSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("output is not a summary: %v\n%s", err, out)
	}
	if sum.TurnCount != 2 || sum.RewardedCount != 1 || sum.ExploreRate != 0.5 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.AvgReward == nil || *sum.AvgReward != 1 {
		t.Fatalf("avg_reward=%v, want 1", sum.AvgReward)
	}

	out, err = execute(t, "report", "--decisions", decisions)
	if err != nil {
		t.Fatalf("report text: %v", err)
	}
	if !strings.Contains(out, "Avg reward:     n/a") || !strings.Contains(out, "curious") {
		t.Fatalf("unexpected text summary:\n%s", out)
	}
}

func TestSnapshotsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps.db")

	out, err := execute(t, "snapshots", "--db", path)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if !strings.Contains(out, "No snapshots stored.") {
		t.Fatalf("unexpected empty listing: %s", out)
	}

	store, err := sqlite.NewSnapshotStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	first, err := store.SaveSnapshot(ctx, domain.StoreSnapshot{Dim: 1, Lambda: 1, Arms: []domain.ArmSnapshot{{Arm: "warm", A: [][]float64{{1}}, B: []float64{0}}}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := store.SaveSnapshot(ctx, domain.StoreSnapshot{ParentID: first, Dim: 1, Lambda: 1, Updates: 3, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	out, err = execute(t, "snapshots", "--db", path)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header plus two versions:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "*  "+second) {
		t.Fatalf("newest version should come first and be active:\n%s", out)
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[2]), first) {
		t.Fatalf("oldest version should come last:\n%s", out)
	}

	if _, err := execute(t, "snapshots", "activate", first, "--db", path); err != nil {
		t.Fatalf("activate: %v", err)
	}
	out, err = execute(t, "snapshots", "--db", path, "--last", "1")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(strings.TrimSpace(lines[1]), second) || strings.Contains(out, "*") {
		t.Fatalf("--last 1 should show only the newest, now inactive, version:\n%s", out)
	}

	if _, err := execute(t, "snapshots", "activate", "no-such-version", "--db", path); err == nil {
		t.Fatal("activating an unknown version should fail")
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--user", "ops", "--role", "ADMIN", "--secret", "s3cret", "--issuer", "bandit-test", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	utils.SetJWTConfig("s3cret", "bandit-test")
	claims, err := utils.ParseJWT(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.UserID != "ops" || claims.Role != "ADMIN" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := execute(t, "token", "--user", "ops", "--secret", "x", "--ttl", "0s"); err == nil {
		t.Fatal("non-positive ttl should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "banditctl dev\n" {
		t.Fatalf("version output %q", out)
	}
}
