package bandit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"replyBandit/domain"
)

const defaultReinvertEvery = 50

// ArmState is the learnable state of one arm. A starts at λI and b at zero;
// AInv tracks A^-1 incrementally and is rebuilt from A periodically.
type ArmState struct {
	A           [][]float64
	AInv        [][]float64
	B           []float64
	Count       int
	LastUpdated time.Time

	sinceInvert int
}

// Theta is the ridge estimate A^-1 b.
func (s ArmState) Theta() []float64 {
	return matVecMul(s.AInv, s.B)
}

func (s ArmState) clone() ArmState {
	return ArmState{
		A:           cloneMatrix(s.A),
		AInv:        cloneMatrix(s.AInv),
		B:           cloneVector(s.B),
		Count:       s.Count,
		LastUpdated: s.LastUpdated,
		sinceInvert: s.sinceInvert,
	}
}

// healthy reports whether the state can be scored without producing garbage.
func (s ArmState) healthy() bool {
	if !matrixFinite(s.A) || !matrixFinite(s.AInv) || !allFinite(s.B) {
		return false
	}
	for i := range s.AInv {
		if !(s.AInv[i][i] > 0) {
			return false
		}
	}
	return true
}

func newArmState(dim int, lambda float64) ArmState {
	return ArmState{
		A:    identity(dim, lambda),
		AInv: identity(dim, 1/lambda),
		B:    make([]float64, dim),
	}
}

type armSlot struct {
	mu    sync.RWMutex
	name  string
	state ArmState
}

type StoreConfig struct {
	Arms          []string
	Dim           int
	Lambda        float64
	ReinvertEvery int
}

// ArmStore owns every arm's state. The arm set is fixed at construction;
// each arm is guarded by its own lock so updates to one arm never block
// reads of another.
type ArmStore struct {
	dim           int
	lambda        float64
	reinvertEvery int
	arms          []*armSlot
	index         map[string]int
	updates       atomic.Int64
}

func NewArmStore(cfg StoreConfig) (*ArmStore, error) {
	if len(cfg.Arms) == 0 {
		return nil, fmt.Errorf("%w: at least one arm is required", domain.ErrInvalidInput)
	}
	if cfg.Dim < 1 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if !(cfg.Lambda > 0) {
		return nil, fmt.Errorf("%w: lambda must be > 0", domain.ErrInvalidInput)
	}
	if cfg.ReinvertEvery <= 0 {
		cfg.ReinvertEvery = defaultReinvertEvery
	}

	s := &ArmStore{
		dim:           cfg.Dim,
		lambda:        cfg.Lambda,
		reinvertEvery: cfg.ReinvertEvery,
		arms:          make([]*armSlot, 0, len(cfg.Arms)),
		index:         make(map[string]int, len(cfg.Arms)),
	}
	for i, name := range cfg.Arms {
		if name == "" {
			return nil, fmt.Errorf("%w: arm %d has an empty name", domain.ErrInvalidInput, i)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate arm %q", domain.ErrInvalidInput, name)
		}
		s.index[name] = i
		s.arms = append(s.arms, &armSlot{name: name, state: newArmState(cfg.Dim, cfg.Lambda)})
	}
	return s, nil
}

func (s *ArmStore) Dim() int        { return s.dim }
func (s *ArmStore) Lambda() float64 { return s.lambda }
func (s *ArmStore) Len() int        { return len(s.arms) }

// Updates is the number of rank-one updates applied since construction.
func (s *ArmStore) Updates() int64 { return s.updates.Load() }

// Index resolves an arm name to its position.
func (s *ArmStore) Index(arm string) (int, error) {
	i, ok := s.index[arm]
	if !ok {
		return -1, fmt.Errorf("%w: %q", domain.ErrUnknownArm, arm)
	}
	return i, nil
}

// Arm resolves a position to its arm name.
func (s *ArmStore) Arm(index int) (string, error) {
	if err := s.check(index); err != nil {
		return "", err
	}
	return s.arms[index].name, nil
}

func (s *ArmStore) Arms() []string {
	out := make([]string, len(s.arms))
	for i, a := range s.arms {
		out[i] = a.name
	}
	return out
}

func (s *ArmStore) check(index int) error {
	if index < 0 || index >= len(s.arms) {
		return fmt.Errorf("%w: index %d", domain.ErrUnknownArm, index)
	}
	return nil
}

// Snapshot returns a deep copy of one arm, taken under its read lock.
func (s *ArmStore) Snapshot(index int) (ArmState, error) {
	if err := s.check(index); err != nil {
		return ArmState{}, err
	}
	slot := s.arms[index]
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.state.clone(), nil
}

// apply performs the rank-one update A += xx^T, b += r x. The new state is
// built on a copy and swapped in only when it is numerically sound.
func (s *ArmStore) apply(index int, x []float64, reward float64, now time.Time) (ArmState, error) {
	if err := s.check(index); err != nil {
		return ArmState{}, err
	}
	slot := s.arms[index]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.clone()
	addOuter(next.A, x)
	addScaled(next.B, x, reward)
	next.Count++
	next.LastUpdated = now
	next.sinceInvert++

	if next.sinceInvert >= s.reinvertEvery || !shermanMorrison(next.AInv, x) {
		inv, err := invert(next.A)
		if err != nil {
			return ArmState{}, fmt.Errorf("%w: arm %q: %v", domain.ErrSingularState, slot.name, err)
		}
		next.AInv = inv
		next.sinceInvert = 0
	}
	symmetrize(next.AInv)

	if !next.healthy() {
		return ArmState{}, fmt.Errorf("%w: arm %q: non-finite state after update", domain.ErrSingularState, slot.name)
	}

	slot.state = next
	s.updates.Add(1)
	return next.clone(), nil
}

// Reset puts one arm back to its cold-start state.
func (s *ArmStore) Reset(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	slot := s.arms[index]
	slot.mu.Lock()
	slot.state = newArmState(s.dim, s.lambda)
	slot.mu.Unlock()
	return nil
}

// Export copies every arm into a serializable snapshot.
func (s *ArmStore) Export() domain.StoreSnapshot {
	snap := domain.StoreSnapshot{
		Dim:       s.dim,
		Lambda:    s.lambda,
		Arms:      make([]domain.ArmSnapshot, 0, len(s.arms)),
		Updates:   s.updates.Load(),
		CreatedAt: time.Now().UTC(),
	}
	for _, slot := range s.arms {
		slot.mu.RLock()
		snap.Arms = append(snap.Arms, domain.ArmSnapshot{
			Arm:         slot.name,
			A:           cloneMatrix(slot.state.A),
			B:           cloneVector(slot.state.B),
			Count:       slot.state.Count,
			LastUpdated: slot.state.LastUpdated,
		})
		slot.mu.RUnlock()
	}
	return snap
}

// Restore replaces every arm from a snapshot. The snapshot must match this
// store's dimension and arm set exactly; nothing is changed if it does not.
func (s *ArmStore) Restore(snap domain.StoreSnapshot) error {
	if snap.Dim != s.dim {
		return fmt.Errorf("%w: snapshot dimension %d, store dimension %d", domain.ErrInvalidInput, snap.Dim, s.dim)
	}
	if len(snap.Arms) != len(s.arms) {
		return fmt.Errorf("%w: snapshot has %d arms, store has %d", domain.ErrInvalidInput, len(snap.Arms), len(s.arms))
	}

	states := make([]ArmState, len(s.arms))
	for _, a := range snap.Arms {
		i, err := s.Index(a.Arm)
		if err != nil {
			return fmt.Errorf("%w: snapshot arm %q is not configured", domain.ErrInvalidInput, a.Arm)
		}
		if states[i].A != nil {
			return fmt.Errorf("%w: snapshot repeats arm %q", domain.ErrInvalidInput, a.Arm)
		}
		st, err := s.stateFromSnapshot(a)
		if err != nil {
			return err
		}
		states[i] = st
	}

	for i, slot := range s.arms {
		slot.mu.Lock()
		slot.state = states[i]
		slot.mu.Unlock()
	}
	s.updates.Store(snap.Updates)
	return nil
}

func (s *ArmStore) stateFromSnapshot(a domain.ArmSnapshot) (ArmState, error) {
	if len(a.A) != s.dim || len(a.B) != s.dim {
		return ArmState{}, fmt.Errorf("%w: arm %q has wrong dimension", domain.ErrInvalidInput, a.Arm)
	}
	for _, row := range a.A {
		if len(row) != s.dim {
			return ArmState{}, fmt.Errorf("%w: arm %q has a ragged matrix", domain.ErrInvalidInput, a.Arm)
		}
	}
	if !matrixFinite(a.A) || !allFinite(a.B) || a.Count < 0 {
		return ArmState{}, fmt.Errorf("%w: arm %q has non-finite values", domain.ErrInvalidInput, a.Arm)
	}
	if !isSymmetric(a.A) {
		return ArmState{}, fmt.Errorf("%w: arm %q matrix is not symmetric", domain.ErrInvalidInput, a.Arm)
	}
	if _, err := cholesky(a.A); err != nil {
		return ArmState{}, fmt.Errorf("%w: arm %q: %v", domain.ErrInvalidInput, a.Arm, err)
	}
	inv, err := invert(a.A)
	if err != nil {
		return ArmState{}, fmt.Errorf("%w: arm %q: %v", domain.ErrInvalidInput, a.Arm, err)
	}
	symmetrize(inv)
	return ArmState{
		A:           cloneMatrix(a.A),
		AInv:        inv,
		B:           cloneVector(a.B),
		Count:       a.Count,
		LastUpdated: a.LastUpdated,
	}, nil
}
