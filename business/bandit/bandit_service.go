package bandit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"replyBandit/business/evaluation"
	"replyBandit/domain"
	"replyBandit/pkg/logger"
)

// ---- Repository interfaces ----

// DecisionLog is the append-only store of decisions and their feedback.
type DecisionLog interface {
	SaveDecision(ctx context.Context, rec domain.DecisionRecord) error
	GetDecision(ctx context.Context, turnID string) (domain.DecisionRecord, bool, error)
	SaveFeedback(ctx context.Context, fb domain.FeedbackRecord) error
}

// FeedbackLedger makes feedback single-use per turn id.
type FeedbackLedger interface {
	// Claim reports true the first time a turn id is claimed.
	Claim(ctx context.Context, turnID string) (bool, error)
	// Release undoes a claim whose update could not be applied.
	Release(ctx context.Context, turnID string) error
}

// DecisionLogReader is implemented by logs that can replay their contents
// for reporting and offline evaluation.
type DecisionLogReader interface {
	ListDecisions(ctx context.Context, limit int) ([]domain.DecisionRecord, error)
	ListFeedback(ctx context.Context, limit int) ([]domain.FeedbackRecord, error)
}

// ShiftNotifier forwards evaluation reports that raised shift signals.
type ShiftNotifier interface {
	NotifyShift(ctx context.Context, traceID string, rep domain.EvaluationReport) error
}

type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snap domain.StoreSnapshot) (string, error)
	LatestSnapshot(ctx context.Context) (domain.StoreSnapshot, bool, error)
}

// ---- Usecase / Service ----

type BanditService struct {
	engine          *Engine
	session         *DecisionSession
	decisionLog     DecisionLog
	ledger          FeedbackLedger
	snapshotRepo    SnapshotRepository
	explorationRepo ExplorationRepository
	evalCfg         evaluation.Config
	cfg             ServiceConfig
	notifier        ShiftNotifier

	snapMu      sync.Mutex
	lastVersion string
}

func NewBanditService(
	engine *Engine,
	decisionLog DecisionLog,
	ledger FeedbackLedger,
	snapshotRepo SnapshotRepository,
	explorationRepo ExplorationRepository,
	evalCfg evaluation.Config,
	cfg ServiceConfig,
) *BanditService {
	return &BanditService{
		engine:          engine,
		session:         NewDecisionSession(engine),
		decisionLog:     decisionLog,
		ledger:          ledger,
		snapshotRepo:    snapshotRepo,
		explorationRepo: explorationRepo,
		evalCfg:         evalCfg,
		cfg:             cfg,
	}
}

func (s *BanditService) Engine() *Engine { return s.engine }

// SetShiftNotifier enables shift alerts. It must be called before serving.
func (s *BanditService) SetShiftNotifier(n ShiftNotifier) { s.notifier = n }

//  Decision / serving

// Decide picks one candidate for a turn and appends the decision to the log.
func (s *BanditService) Decide(ctx context.Context, req domain.DecisionRequest) (domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("context error: %w", err)
	}

	if req.Exploration == nil {
		if ex := s.loadExploration(ctx); ex != (domain.ExplorationConfig{}) {
			req.Exploration = &ex
		}
	}

	rec, err := s.session.Decide(req)
	if err != nil {
		return domain.DecisionRecord{}, err
	}

	if s.decisionLog != nil {
		if err := s.decisionLog.SaveDecision(ctx, rec); err != nil {
			return domain.DecisionRecord{}, fmt.Errorf("failed to save decision: %w", err)
		}
	}

	chosen := rec.Chosen()
	tid := TraceIDFromContext(ctx)
	logger.Debug("bandit_decision",
		"trace_id", tid,
		"turn_id", rec.TurnID,
		"session_id", rec.SessionID,
		"candidate_count", len(rec.Candidates),
		"chosen_index", rec.ChosenIndex,
		"arm", chosen.Arm,
		"propensity", rec.Propensity,
		"explored", rec.Explored,
		"variant", rec.Variant,
	)

	BanditDecisionsTotal.
		WithLabelValues(chosen.Arm, string(rec.Variant), strconv.FormatBool(rec.Explored)).
		Inc()
	BanditDecisionPropensity.Observe(rec.Propensity)

	return rec, nil
}

//  Feedback / learning

// Feedback applies a delayed reward to the arm chosen for a turn. The first
// feedback for a turn id wins; later ones are reported as duplicates and
// change nothing.
func (s *BanditService) Feedback(ctx context.Context, fb domain.FeedbackRecord) (domain.FeedbackResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeedbackResult{}, fmt.Errorf("context error: %w", err)
	}
	if fb.TurnID == "" {
		return domain.FeedbackResult{}, fmt.Errorf("%w: turn_id is required", domain.ErrInvalidInput)
	}

	store := s.engine.Store()
	arm, err := store.Arm(fb.ArmIndex)
	if err != nil {
		return domain.FeedbackResult{}, err
	}

	// 1) the decision this feedback refers to
	if s.decisionLog == nil {
		return domain.FeedbackResult{}, fmt.Errorf("%w: no decision log configured", domain.ErrNotFound)
	}
	rec, ok, err := s.decisionLog.GetDecision(ctx, fb.TurnID)
	if err != nil {
		return domain.FeedbackResult{}, fmt.Errorf("load decision: %w", err)
	}
	if !ok {
		return domain.FeedbackResult{}, fmt.Errorf("%w: decision for turn %q", domain.ErrNotFound, fb.TurnID)
	}
	if rec.ChosenArm != fb.ArmIndex {
		return domain.FeedbackResult{}, fmt.Errorf("%w: turn %q chose arm %d, feedback names arm %d",
			domain.ErrInvalidInput, fb.TurnID, rec.ChosenArm, fb.ArmIndex)
	}
	x := rec.Chosen().Features

	// 2) single use per turn
	if s.ledger != nil {
		first, err := s.ledger.Claim(ctx, fb.TurnID)
		if err != nil {
			return domain.FeedbackResult{}, fmt.Errorf("claim feedback: %w", err)
		}
		if !first {
			BanditFeedbackEventsTotal.WithLabelValues(arm, "duplicate").Inc()
			logger.Info("bandit_feedback_duplicate",
				"trace_id", TraceIDFromContext(ctx),
				"turn_id", fb.TurnID,
				"arm", arm,
			)
			return domain.FeedbackResult{TurnID: fb.TurnID, Duplicate: true}, nil
		}
	}

	// 3) learn
	res, err := s.engine.Update(fb.ArmIndex, x, fb.Reward)
	if err != nil {
		if s.ledger != nil {
			if rerr := s.ledger.Release(ctx, fb.TurnID); rerr != nil {
				logger.Error("bandit_feedback_release_failed", "turn_id", fb.TurnID, "error", rerr)
			}
		}
		return domain.FeedbackResult{}, fmt.Errorf("update arm %q: %w", arm, err)
	}

	out := domain.FeedbackResult{
		TurnID:        fb.TurnID,
		Applied:       res.Applied,
		AppliedReward: res.Reward,
	}
	outcome := "applied"
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
		outcome = "clipped"
		if res.Warning.Dropped {
			outcome = "dropped"
		}
		logger.Warn("bandit_reward_out_of_range",
			"trace_id", TraceIDFromContext(ctx),
			"turn_id", fb.TurnID,
			"arm", arm,
			"warning", res.Warning.Error(),
		)
	}

	logger.Debug("bandit_feedback",
		"trace_id", TraceIDFromContext(ctx),
		"turn_id", fb.TurnID,
		"arm", arm,
		"reward", fb.Reward,
		"applied_reward", res.Reward,
		"count", res.Count,
		"reset", res.Reset,
	)

	// 4) persist the raw feedback alongside what the arm learned from
	if fb.ReceivedAt.IsZero() {
		fb.ReceivedAt = time.Now().UTC()
	}
	fb.AppliedReward = nil
	if res.Applied {
		applied := res.Reward
		fb.AppliedReward = &applied
	}
	if err := s.decisionLog.SaveFeedback(ctx, fb); err != nil {
		return out, fmt.Errorf("failed to save feedback: %w", err)
	}

	BanditFeedbackEventsTotal.WithLabelValues(arm, outcome).Inc()
	if res.Applied {
		BanditArmUpdates.WithLabelValues(arm).Set(float64(res.Count))
		s.maybeSnapshot(ctx)
	}

	return out, nil
}

func (s *BanditService) maybeSnapshot(ctx context.Context) {
	every := int64(s.cfg.SnapshotEvery)
	if s.snapshotRepo == nil || every <= 0 {
		return
	}
	if s.engine.Store().Updates()%every != 0 {
		return
	}
	if _, err := s.SaveSnapshot(ctx); err != nil {
		logger.Error("bandit_snapshot_failed", "trace_id", TraceIDFromContext(ctx), "error", err)
	}
}

//  Evaluation

func (s *BanditService) Evaluate(ctx context.Context, records []domain.EvaluationRecord, reference *domain.FeatureProfile) (domain.EvaluationReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("context error: %w", err)
	}
	cfg := s.evalCfg
	if reference != nil {
		cfg.Reference = reference
	}
	rep, err := evaluation.Evaluate(records, cfg)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	logger.Info("bandit_evaluation",
		"trace_id", TraceIDFromContext(ctx),
		"samples", rep.SampleCount,
		"ess", rep.ESS,
		"ips_mean", rep.IPSMean,
		"dr_mean", rep.DRMean,
		"signals", len(rep.ShiftSignals),
	)
	if s.notifier != nil && len(rep.ShiftSignals) > 0 {
		if err := s.notifier.NotifyShift(ctx, TraceIDFromContext(ctx), rep); err != nil {
			logger.Warn("bandit_shift_notify_failed", "trace_id", TraceIDFromContext(ctx), "error", err)
		}
	}
	return rep, nil
}

// logReader returns the decision log as a reader, or ErrNotFound when the
// configured log cannot be replayed.
func (s *BanditService) logReader() (DecisionLogReader, error) {
	r, ok := s.decisionLog.(DecisionLogReader)
	if !ok {
		return nil, fmt.Errorf("%w: decision log does not support listing", domain.ErrNotFound)
	}
	return r, nil
}

func (s *BanditService) readLog(ctx context.Context, limit int) ([]domain.DecisionRecord, []domain.FeedbackRecord, error) {
	r, err := s.logReader()
	if err != nil {
		return nil, nil, err
	}
	decisions, err := r.ListDecisions(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list decisions: %w", err)
	}
	feedback, err := r.ListFeedback(ctx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("list feedback: %w", err)
	}
	return decisions, feedback, nil
}

// Summary reports reward, win-rate and propensity statistics over the most
// recent limit decisions (all when limit <= 0).
func (s *BanditService) Summary(ctx context.Context, limit int) (domain.LogSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogSummary{}, fmt.Errorf("context error: %w", err)
	}
	decisions, feedback, err := s.readLog(ctx, limit)
	if err != nil {
		return domain.LogSummary{}, err
	}
	return evaluation.Summarize(decisions, feedback), nil
}

// EvaluateLog runs the offline evaluator over the rewarded decisions in the
// log. The logging policy is evaluated against itself, so IPS estimates the
// on-policy reward and the diagnostics describe the logged propensities.
func (s *BanditService) EvaluateLog(ctx context.Context, limit int, reference *domain.FeatureProfile) (domain.EvaluationReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("context error: %w", err)
	}
	decisions, feedback, err := s.readLog(ctx, limit)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	records := evaluation.RecordsFromLog(decisions, feedback)
	if len(records) == 0 {
		return domain.EvaluationReport{}, fmt.Errorf("%w: no rewarded decisions in the log", domain.ErrNotFound)
	}
	return s.Evaluate(ctx, records, reference)
}

//  Admin

func (s *BanditService) Arms(ctx context.Context) ([]domain.ArmView, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	store := s.engine.Store()
	out := make([]domain.ArmView, 0, store.Len())
	for i, name := range store.Arms() {
		st, err := store.Snapshot(i)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ArmView{
			Index:       i,
			Arm:         name,
			Count:       st.Count,
			Theta:       st.Theta(),
			Uncertainty: trace(st.AInv),
			LastUpdated: st.LastUpdated,
		})
	}
	return out, nil
}

func (s *BanditService) ResetArm(ctx context.Context, arm string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	store := s.engine.Store()
	i, err := store.Index(arm)
	if err != nil {
		return err
	}
	if err := store.Reset(i); err != nil {
		return err
	}
	BanditArmUpdates.WithLabelValues(arm).Set(0)
	logger.Info("bandit_arm_reset", "trace_id", TraceIDFromContext(ctx), "arm", arm)
	return nil
}

func (s *BanditService) SetExploration(ctx context.Context, cfg domain.ExplorationConfig) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if s.explorationRepo == nil {
		return fmt.Errorf("%w: no exploration repository configured", domain.ErrNotFound)
	}
	if _, err := s.engine.resolve(cfg); err != nil {
		return err
	}
	return s.explorationRepo.UpsertExploration(ctx, s.engine.Config().Variant, cfg)
}

// SaveSnapshot persists the current arm store as a new version chained to
// the previous one.
func (s *BanditService) SaveSnapshot(ctx context.Context) (domain.StoreSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoreSnapshot{}, fmt.Errorf("context error: %w", err)
	}
	if s.snapshotRepo == nil {
		return domain.StoreSnapshot{}, fmt.Errorf("%w: no snapshot repository configured", domain.ErrNotFound)
	}

	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap := s.engine.Store().Export()
	snap.ParentID = s.lastVersion
	id, err := s.snapshotRepo.SaveSnapshot(ctx, snap)
	if err != nil {
		return domain.StoreSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	snap.VersionID = id
	s.lastVersion = id

	logger.Info("bandit_snapshot_saved",
		"trace_id", TraceIDFromContext(ctx),
		"version_id", id,
		"parent_id", snap.ParentID,
		"updates", snap.Updates,
	)
	return snap, nil
}

// RestoreLatest loads the newest snapshot into the arm store. It reports
// false when there is nothing to restore.
func (s *BanditService) RestoreLatest(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}
	if s.snapshotRepo == nil {
		return false, nil
	}
	snap, ok, err := s.snapshotRepo.LatestSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.engine.Store().Restore(snap); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return false, fmt.Errorf("snapshot %s does not match the configured arms: %w", snap.VersionID, err)
		}
		return false, err
	}

	s.snapMu.Lock()
	s.lastVersion = snap.VersionID
	s.snapMu.Unlock()

	for _, a := range snap.Arms {
		BanditArmUpdates.WithLabelValues(a.Arm).Set(float64(a.Count))
	}
	logger.Info("bandit_snapshot_restored", "version_id", snap.VersionID, "arms", len(snap.Arms))
	return true, nil
}
