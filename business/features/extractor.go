package features

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"replyBandit/domain"
)

// Dim is the length of every feature vector produced here.
const Dim = 9

const (
	idxBias = iota
	idxHistory
	idxUtterance
	idxLength
	idxQuestion
	idxWords
	idxPoliteness
	idxEmoji
	idxSafety
)

// normalization caps
const (
	historyScale   = 10.0
	historyCap     = 1.5
	utteranceScale = 400.0
	utteranceCap   = 1.5
	lengthScale    = 400.0
	lengthCap      = 2.0
	wordScale      = 80.0
	wordCap        = 2.0
	emojiHalf      = 2.0
)

var names = [Dim]string{
	"bias",
	"history_turns",
	"utterance_chars",
	"candidate_length",
	"is_question",
	"candidate_words",
	"politeness",
	"emoji",
	"safety",
}

// Names returns the human readable label of every dimension.
func Names() []string {
	out := make([]string, Dim)
	copy(out, names[:])
	return out
}

// Extract builds the feature vector for one (context, candidate) pair.
// It is a pure function: same input, same output.
func Extract(c domain.Context, cand domain.Candidate) ([]float64, error) {
	if err := validate(cand); err != nil {
		return nil, err
	}

	x := make([]float64, Dim)
	x[idxBias] = 1.0
	x[idxHistory] = clip(float64(len(c.History))/historyScale, 0, historyCap)
	x[idxUtterance] = clip(float64(utf8.RuneCountInString(c.Utterance))/utteranceScale, 0, utteranceCap)
	x[idxLength] = clip(float64(*cand.Meta.Length)/lengthScale, 0, lengthCap)
	if cand.Meta.IsQuestion {
		x[idxQuestion] = 1.0
	}
	x[idxWords] = clip(float64(len(strings.Fields(cand.Text)))/wordScale, 0, wordCap)
	x[idxPoliteness] = clip(cand.Meta.Politeness, 0, 1)

	e := float64(cand.Meta.EmojiCount)
	x[idxEmoji] = e / (e + emojiHalf)

	// unreviewed candidates are treated as neutral
	safety := 1.0
	if cand.Meta.SafetyScore != nil {
		safety = *cand.Meta.SafetyScore
	}
	x[idxSafety] = clip(safety, 0, 1)

	return x, nil
}

// ExtractAll extracts every candidate, failing on the first invalid one.
func ExtractAll(c domain.Context, cands []domain.Candidate) ([][]float64, error) {
	out := make([][]float64, 0, len(cands))
	for i, cand := range cands {
		x, err := Extract(c, cand)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, x)
	}
	return out, nil
}

func validate(cand domain.Candidate) error {
	if strings.TrimSpace(cand.Style) == "" {
		return fmt.Errorf("%w: style is required", domain.ErrInvalidInput)
	}
	if cand.Meta.Length == nil {
		return fmt.Errorf("%w: meta.length is required", domain.ErrInvalidInput)
	}
	if *cand.Meta.Length < 0 {
		return fmt.Errorf("%w: meta.length must be >= 0", domain.ErrInvalidInput)
	}
	if cand.Meta.EmojiCount < 0 {
		return fmt.Errorf("%w: meta.emoji_count must be >= 0", domain.ErrInvalidInput)
	}
	if !finite(cand.Meta.Politeness) {
		return fmt.Errorf("%w: meta.politeness is not finite", domain.ErrInvalidInput)
	}
	if cand.Meta.SafetyScore != nil && !finite(*cand.Meta.SafetyScore) {
		return fmt.Errorf("%w: meta.safety_score is not finite", domain.ErrInvalidInput)
	}
	return nil
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
