//go:build !integration

package postgres

import (
	"reflect"
	"testing"
	"time"

	"replyBandit/domain"
)

func TestDecisionRowRoundTrip(t *testing.T) {
	rec := domain.DecisionRecord{
		TurnID:      "turn-1",
		SessionID:   "s-1",
		ContextHash: "abc",
		Candidates: []domain.ScoredCandidate{{
			Candidate: domain.Candidate{Text: "hi", Style: "warm", Meta: domain.StyleMetadata{Length: domain.IntPtr(2)}},
			Arm:       "warm",
			Features:  []float64{1, 0.5},
			Score:     0.7,
		}},
		Propensity: 0.95,
		Variant:    domain.VariantUCB,
		CreatedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	row, err := toDecisionRow(rec)
	if err != nil {
		t.Fatalf("toDecisionRow: %v", err)
	}
	if row.TableName() != "bandit_decisions" {
		t.Fatalf("table=%s", row.TableName())
	}
	got, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestDecisionRow_BadCandidates(t *testing.T) {
	row := decisionRow{Candidates: []byte("{not json")}
	if _, err := row.toDomain(); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
