package bandit

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"replyBandit/domain"
	"replyBandit/pkg/logger"
)

// EngineConfig holds the engine-wide policy defaults. Per-request
// exploration overrides are applied on top of it.
type EngineConfig struct {
	Variant    domain.PolicyVariant
	Alpha      float64
	Epsilon    float64
	PriorScale float64

	RewardMin float64
	RewardMax float64

	MinPropensity   float64
	PropensityDraws int

	// UnitBall projects feature vectors with norm > 1 onto the unit sphere
	// before scoring and updating.
	UnitBall bool

	Seed uint64
}

const (
	defaultAlpha           = 1.0
	defaultEpsilon         = 0.05
	defaultPriorScale      = 1.0
	defaultRewardMin       = -1.0
	defaultRewardMax       = 1.0
	defaultMinPropensity   = 1e-4
	defaultPropensityDraws = 256
	defaultSeed            = 7
)

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Variant:         domain.VariantUCB,
		Alpha:           defaultAlpha,
		Epsilon:         defaultEpsilon,
		PriorScale:      defaultPriorScale,
		RewardMin:       defaultRewardMin,
		RewardMax:       defaultRewardMax,
		MinPropensity:   defaultMinPropensity,
		PropensityDraws: defaultPropensityDraws,
		UnitBall:        true,
		Seed:            defaultSeed,
	}
}

func (c EngineConfig) Validate() error {
	switch {
	case !c.Variant.Valid():
		return fmt.Errorf("%w: unknown policy variant %q", domain.ErrInvalidInput, c.Variant)
	case !(c.Alpha >= 0) || math.IsInf(c.Alpha, 0):
		return fmt.Errorf("%w: alpha must be a finite value >= 0", domain.ErrInvalidInput)
	case !(c.Epsilon >= 0 && c.Epsilon < 1):
		return fmt.Errorf("%w: epsilon must be in [0, 1)", domain.ErrInvalidInput)
	case !(c.PriorScale > 0) || math.IsInf(c.PriorScale, 0):
		return fmt.Errorf("%w: prior scale must be a finite value > 0", domain.ErrInvalidInput)
	case !(c.RewardMin < c.RewardMax):
		return fmt.Errorf("%w: reward bounds must satisfy min < max", domain.ErrInvalidInput)
	case !(c.MinPropensity > 0 && c.MinPropensity <= 1):
		return fmt.Errorf("%w: min propensity must be in (0, 1]", domain.ErrInvalidInput)
	case c.PropensityDraws < 1:
		return fmt.Errorf("%w: propensity draws must be >= 1", domain.ErrInvalidInput)
	}
	return nil
}

type EngineOption func(*Engine)

// WithRand injects the random source used for exploration coin flips and
// posterior draws.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// ArmFeatures is one candidate as the engine sees it.
type ArmFeatures struct {
	ArmIndex int
	X        []float64
}

type Selection struct {
	ChosenIndex int
	Propensity  float64
	Scores      []float64
	Greedy      int
	Explored    bool
	Variant     domain.PolicyVariant
}

type UpdateResult struct {
	Applied bool
	Reward  float64
	Count   int
	Reset   bool
	Warning *domain.OutOfRangeRewardWarning
}

// Engine is the policy: it scores candidates against the ArmStore, picks
// one with a propensity, and applies feedback. It is the only writer of
// arm state.
type Engine struct {
	store *ArmStore
	cfg   EngineConfig

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

func NewEngine(store *ArmStore, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: arm store is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	return e, nil
}

func (e *Engine) Store() *ArmStore     { return e.store }
func (e *Engine) Config() EngineConfig { return e.cfg }

type exploration struct {
	alpha      float64
	epsilon    float64
	priorScale float64
}

// resolve merges a request override into the engine defaults. Zero fields
// keep the default.
func (e *Engine) resolve(o domain.ExplorationConfig) (exploration, error) {
	ex := exploration{alpha: e.cfg.Alpha, epsilon: e.cfg.Epsilon, priorScale: e.cfg.PriorScale}
	if math.IsNaN(o.Alpha) || math.IsNaN(o.Epsilon) || math.IsNaN(o.PriorScale) {
		return ex, fmt.Errorf("%w: exploration values must be numbers", domain.ErrInvalidInput)
	}
	if o.Alpha < 0 || math.IsInf(o.Alpha, 0) {
		return ex, fmt.Errorf("%w: alpha must be a finite value >= 0", domain.ErrInvalidInput)
	}
	if o.Epsilon < 0 || o.Epsilon >= 1 {
		return ex, fmt.Errorf("%w: epsilon must be in [0, 1)", domain.ErrInvalidInput)
	}
	if o.PriorScale < 0 || math.IsInf(o.PriorScale, 0) {
		return ex, fmt.Errorf("%w: prior scale must be a finite value >= 0", domain.ErrInvalidInput)
	}
	if o.Alpha > 0 {
		ex.alpha = o.Alpha
	}
	if o.Epsilon > 0 {
		ex.epsilon = o.Epsilon
	}
	if o.PriorScale > 0 {
		ex.priorScale = o.PriorScale
	}
	return ex, nil
}

// prepare validates a feature vector and returns the copy the engine works on.
func (e *Engine) prepare(x []float64) ([]float64, error) {
	if len(x) != e.store.Dim() {
		return nil, fmt.Errorf("%w: feature dimension %d, expected %d", domain.ErrInvalidInput, len(x), e.store.Dim())
	}
	if !allFinite(x) {
		return nil, fmt.Errorf("%w: feature vector is not finite", domain.ErrInvalidInput)
	}
	out := cloneVector(x)
	if e.cfg.UnitBall {
		if n := math.Sqrt(dot(out, out)); n > 1 {
			for i := range out {
				out[i] /= n
			}
		}
	}
	return out, nil
}

// Select picks one candidate. It never mutates arm state except to reset an
// arm whose state is found to be corrupted.
func (e *Engine) Select(cands []ArmFeatures, override domain.ExplorationConfig) (Selection, error) {
	if len(cands) == 0 {
		return Selection{}, domain.ErrEmptyCandidateSet
	}
	ex, err := e.resolve(override)
	if err != nil {
		return Selection{}, err
	}

	xs := make([][]float64, len(cands))
	for i, c := range cands {
		if err := e.store.check(c.ArmIndex); err != nil {
			return Selection{}, fmt.Errorf("candidate %d: %w", i, err)
		}
		x, err := e.prepare(c.X)
		if err != nil {
			return Selection{}, fmt.Errorf("candidate %d: %w", i, err)
		}
		xs[i] = x
	}

	states := e.loadStates(cands)

	if e.cfg.Variant == domain.VariantPosteriorSampling {
		return e.selectPosterior(cands, xs, states, ex)
	}
	return e.selectUCB(cands, xs, states, ex)
}

// loadStates copies every distinct arm referenced by the request.
func (e *Engine) loadStates(cands []ArmFeatures) map[int]ArmState {
	states := make(map[int]ArmState, len(cands))
	for _, c := range cands {
		if _, ok := states[c.ArmIndex]; ok {
			continue
		}
		st, _ := e.store.Snapshot(c.ArmIndex)
		if !st.healthy() {
			st = e.recover(c.ArmIndex, errors.New("non-finite or non-positive inverse diagonal"))
		}
		states[c.ArmIndex] = st
	}
	return states
}

// recover resets a corrupted arm to cold start and returns the fresh state.
func (e *Engine) recover(index int, cause error) ArmState {
	name, _ := e.store.Arm(index)
	logger.Error("bandit_singular_state",
		"arm", name,
		"arm_index", index,
		"error", fmt.Errorf("%w: %v", domain.ErrSingularState, cause),
	)
	BanditSingularResetsTotal.WithLabelValues(name).Inc()
	_ = e.store.Reset(index)
	st, _ := e.store.Snapshot(index)
	return st
}

// ucbScore = theta·x + alpha * sqrt(x^T A^-1 x)
func ucbScore(st ArmState, x []float64, alpha float64) (float64, bool) {
	v := dot(x, matVecMul(st.AInv, x))
	if v < 0 {
		if v < -1e-9 {
			return 0, false
		}
		v = 0
	}
	s := dot(st.Theta(), x) + alpha*math.Sqrt(v)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return s, true
}

func (e *Engine) selectUCB(cands []ArmFeatures, xs [][]float64, states map[int]ArmState, ex exploration) (Selection, error) {
	scores := make([]float64, len(cands))
	for i, c := range cands {
		s, ok := ucbScore(states[c.ArmIndex], xs[i], ex.alpha)
		if !ok {
			states[c.ArmIndex] = e.recover(c.ArmIndex, errors.New("indefinite inverse during scoring"))
			s, _ = ucbScore(states[c.ArmIndex], xs[i], ex.alpha)
		}
		scores[i] = s
	}

	greedy := argmax(scores)
	sel := Selection{
		ChosenIndex: greedy,
		Greedy:      greedy,
		Propensity:  1,
		Scores:      scores,
		Variant:     domain.VariantUCB,
	}

	n := len(cands)
	if n == 1 || ex.epsilon == 0 {
		sel.Propensity = e.clampPropensity(1)
		return sel, nil
	}

	e.rngMu.Lock()
	explore := e.rng.Float64() < ex.epsilon
	var k int
	if explore {
		k = e.rng.IntN(n - 1)
	}
	e.rngMu.Unlock()

	if explore {
		// uniform over the n-1 non-greedy indices
		if k >= greedy {
			k++
		}
		sel.ChosenIndex = k
		sel.Explored = true
		sel.Propensity = e.clampPropensity(ex.epsilon / float64(n-1))
		return sel, nil
	}
	sel.Propensity = e.clampPropensity(1 - ex.epsilon)
	return sel, nil
}

type posterior struct {
	mean []float64
	L    [][]float64
}

func (e *Engine) posteriorFor(st ArmState, scale float64) (posterior, error) {
	cov := cloneMatrix(st.AInv)
	v2 := scale * scale
	for i := range cov {
		for j := range cov[i] {
			cov[i][j] *= v2
		}
	}
	L, err := cholesky(cov)
	if err != nil {
		return posterior{}, err
	}
	return posterior{mean: st.Theta(), L: L}, nil
}

// sample draws theta ~ N(mean, L L^T). Caller holds rngMu.
func (e *Engine) sample(p posterior) []float64 {
	d := len(p.mean)
	z := make([]float64, d)
	for i := range z {
		z[i] = e.rng.NormFloat64()
	}
	out := cloneVector(p.mean)
	for i := range d {
		for k := 0; k <= i; k++ {
			out[i] += p.L[i][k] * z[k]
		}
	}
	return out
}

// drawScores samples one theta per distinct arm and scores every candidate.
// Caller holds rngMu.
func (e *Engine) drawScores(cands []ArmFeatures, xs [][]float64, posts map[int]posterior, order []int, scores []float64) {
	thetas := make(map[int][]float64, len(order))
	for _, arm := range order {
		thetas[arm] = e.sample(posts[arm])
	}
	for i, c := range cands {
		scores[i] = dot(thetas[c.ArmIndex], xs[i])
	}
}

func (e *Engine) selectPosterior(cands []ArmFeatures, xs [][]float64, states map[int]ArmState, ex exploration) (Selection, error) {
	posts := make(map[int]posterior, len(states))
	order := make([]int, 0, len(states))
	for _, c := range cands {
		if _, ok := posts[c.ArmIndex]; ok {
			continue
		}
		p, err := e.posteriorFor(states[c.ArmIndex], ex.priorScale)
		if err != nil {
			states[c.ArmIndex] = e.recover(c.ArmIndex, err)
			if p, err = e.posteriorFor(states[c.ArmIndex], ex.priorScale); err != nil {
				return Selection{}, fmt.Errorf("cold start posterior: %w", err)
			}
		}
		posts[c.ArmIndex] = p
		order = append(order, c.ArmIndex)
	}

	scores := make([]float64, len(cands))
	trial := make([]float64, len(cands))
	wins := 0

	e.rngMu.Lock()
	e.drawScores(cands, xs, posts, order, scores)
	chosen := argmax(scores)
	if len(cands) > 1 {
		for range e.cfg.PropensityDraws {
			e.drawScores(cands, xs, posts, order, trial)
			if argmax(trial) == chosen {
				wins++
			}
		}
	}
	e.rngMu.Unlock()

	prop := 1.0
	if len(cands) > 1 {
		prop = float64(wins) / float64(e.cfg.PropensityDraws)
	}

	means := make([]float64, len(cands))
	for i, c := range cands {
		means[i] = dot(posts[c.ArmIndex].mean, xs[i])
	}
	greedy := argmax(means)

	return Selection{
		ChosenIndex: chosen,
		Greedy:      greedy,
		Explored:    chosen != greedy,
		Propensity:  e.clampPropensity(prop),
		Scores:      scores,
		Variant:     domain.VariantPosteriorSampling,
	}, nil
}

func (e *Engine) clampPropensity(p float64) float64 {
	if p < e.cfg.MinPropensity {
		return e.cfg.MinPropensity
	}
	if p > 1 {
		return 1
	}
	return p
}

// argmax returns the first index holding the maximum.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Update applies one reward to one arm. Rewards outside the configured
// bounds are clipped and reported in the result; a NaN reward is dropped.
func (e *Engine) Update(armIndex int, x []float64, reward float64) (UpdateResult, error) {
	if err := e.store.check(armIndex); err != nil {
		return UpdateResult{}, err
	}
	xx, err := e.prepare(x)
	if err != nil {
		return UpdateResult{}, err
	}

	res := UpdateResult{Reward: reward}
	switch {
	case math.IsNaN(reward):
		res.Warning = &domain.OutOfRangeRewardWarning{
			Original: reward, Applied: reward,
			Min: e.cfg.RewardMin, Max: e.cfg.RewardMax,
			Dropped: true,
		}
		return res, nil
	case reward < e.cfg.RewardMin || reward > e.cfg.RewardMax:
		clipped := math.Max(e.cfg.RewardMin, math.Min(e.cfg.RewardMax, reward))
		res.Warning = &domain.OutOfRangeRewardWarning{
			Original: reward, Applied: clipped,
			Min: e.cfg.RewardMin, Max: e.cfg.RewardMax,
		}
		res.Reward = clipped
	}

	st, err := e.store.apply(armIndex, xx, res.Reward, e.now())
	if errors.Is(err, domain.ErrSingularState) {
		e.recover(armIndex, err)
		res.Reset = true
		st, err = e.store.apply(armIndex, xx, res.Reward, e.now())
	}
	if err != nil {
		return UpdateResult{}, err
	}

	res.Applied = true
	res.Count = st.Count
	return res, nil
}
