//go:build !integration

package bandit

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"replyBandit/domain"
)

func newTestStore(t *testing.T, dim int, arms ...string) *ArmStore {
	t.Helper()
	if len(arms) == 0 {
		arms = []string{"warm", "terse", "curious"}
	}
	s, err := NewArmStore(StoreConfig{Arms: arms, Dim: dim, Lambda: 1})
	if err != nil {
		t.Fatalf("NewArmStore: %v", err)
	}
	return s
}

// corrupt lets tests damage an arm's state the way an external writer could.
func corrupt(s *ArmStore, index int, f func(*ArmState)) {
	slot := s.arms[index]
	slot.mu.Lock()
	f(&slot.state)
	slot.mu.Unlock()
}

func TestNewArmStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  StoreConfig
	}{
		{"no arms", StoreConfig{Dim: 3, Lambda: 1}},
		{"zero dim", StoreConfig{Arms: []string{"a"}, Dim: 0, Lambda: 1}},
		{"zero lambda", StoreConfig{Arms: []string{"a"}, Dim: 3, Lambda: 0}},
		{"duplicate arm", StoreConfig{Arms: []string{"a", "a"}, Dim: 3, Lambda: 1}},
		{"empty arm", StoreConfig{Arms: []string{"a", ""}, Dim: 3, Lambda: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewArmStore(tt.cfg); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err=%v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestArmStore_IndexAndArm(t *testing.T) {
	s := newTestStore(t, 3)
	i, err := s.Index("terse")
	if err != nil || i != 1 {
		t.Fatalf("Index(terse)=%d,%v", i, err)
	}
	if _, err := s.Index("sarcastic"); !errors.Is(err, domain.ErrUnknownArm) {
		t.Fatalf("err=%v, want ErrUnknownArm", err)
	}
	if _, err := s.Arm(3); !errors.Is(err, domain.ErrUnknownArm) {
		t.Fatalf("err=%v, want ErrUnknownArm", err)
	}
	if _, err := s.Snapshot(-1); !errors.Is(err, domain.ErrUnknownArm) {
		t.Fatalf("err=%v, want ErrUnknownArm", err)
	}
}

func TestArmStore_SnapshotIsACopy(t *testing.T) {
	s := newTestStore(t, 2)
	st, _ := s.Snapshot(0)
	st.A[0][0] = 99
	st.B[1] = 99

	again, _ := s.Snapshot(0)
	if again.A[0][0] != 1 || again.B[1] != 0 {
		t.Fatalf("snapshot aliased store state: %+v", again)
	}
}

func TestArmStore_ReinvertMatchesIncremental(t *testing.T) {
	inc, _ := NewArmStore(StoreConfig{Arms: []string{"a"}, Dim: 3, Lambda: 1, ReinvertEvery: 1000})
	full, _ := NewArmStore(StoreConfig{Arms: []string{"a"}, Dim: 3, Lambda: 1, ReinvertEvery: 1})

	xs := [][]float64{{1, 0.2, 0.1}, {1, 0.9, 0}, {1, 0, 0.5}, {1, 0.3, 0.3}}
	for i, x := range xs {
		if _, err := inc.apply(0, x, float64(i%2), testNow); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if _, err := full.apply(0, x, float64(i%2), testNow); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	a, _ := inc.Snapshot(0)
	b, _ := full.Snapshot(0)
	for i := range a.AInv {
		for j := range a.AInv {
			if math.Abs(a.AInv[i][j]-b.AInv[i][j]) > 1e-10 {
				t.Fatalf("AInv[%d][%d]: incremental %v, reinverted %v", i, j, a.AInv[i][j], b.AInv[i][j])
			}
		}
	}
	if inc.Updates() != 4 {
		t.Fatalf("Updates=%d, want 4", inc.Updates())
	}
}

func TestArmStore_ExportRestore(t *testing.T) {
	src := newTestStore(t, 3)
	if _, err := src.apply(1, []float64{1, 0.5, 0.5}, 1, testNow); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := src.Export()

	dst := newTestStore(t, 3)
	if err := dst.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(dst.Export().Arms, snap.Arms) {
		t.Fatal("restored arms differ from snapshot")
	}
	got, _ := dst.Snapshot(1)
	want, _ := src.Snapshot(1)
	for i := range got.AInv {
		for j := range got.AInv {
			if math.Abs(got.AInv[i][j]-want.AInv[i][j]) > 1e-10 {
				t.Fatalf("AInv[%d][%d]=%v, want %v", i, j, got.AInv[i][j], want.AInv[i][j])
			}
		}
	}
	if dst.Updates() != 1 {
		t.Fatalf("Updates=%d, want 1", dst.Updates())
	}
}

func TestArmStore_RestoreRejectsMismatch(t *testing.T) {
	base := newTestStore(t, 3)

	wrongDim := newTestStore(t, 4).Export()

	wrongArms := newTestStore(t, 3, "warm", "terse", "sarcastic").Export()

	asym := base.Export()
	asym.Arms[0].A[0][1] = 0.5

	indefinite := base.Export()
	indefinite.Arms[2].A[1][1] = -1

	nonFinite := base.Export()
	nonFinite.Arms[1].B[0] = math.Inf(1)

	tests := []struct {
		name string
		snap domain.StoreSnapshot
	}{
		{"dimension", wrongDim},
		{"arm set", wrongArms},
		{"asymmetric", asym},
		{"indefinite", indefinite},
		{"non-finite", nonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 3)
			if _, err := s.apply(0, []float64{1, 0, 0}, 1, testNow); err != nil {
				t.Fatalf("apply: %v", err)
			}
			before := s.Export().Arms

			if err := s.Restore(tt.snap); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err=%v, want ErrInvalidInput", err)
			}
			if !reflect.DeepEqual(s.Export().Arms, before) {
				t.Fatal("rejected restore modified the store")
			}
		})
	}
}
