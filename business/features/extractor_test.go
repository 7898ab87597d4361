//go:build !integration

package features

import (
	"errors"
	"math"
	"strings"
	"testing"

	"replyBandit/domain"
)

func candidate(style string, length int) domain.Candidate {
	return domain.Candidate{
		Text:  "thanks for asking, happy to help",
		Style: style,
		Meta: domain.StyleMetadata{
			Length:     domain.IntPtr(length),
			Politeness: 0.8,
			EmojiCount: 2,
		},
	}
}

func TestExtract_Layout(t *testing.T) {
	ctx := domain.Context{
		History:   []string{"hi", "hello", "how are you"},
		Utterance: strings.Repeat("a", 200),
	}
	c := candidate("warm", 100)
	c.Meta.IsQuestion = true

	x, err := Extract(ctx, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(x) != Dim {
		t.Fatalf("len(x)=%d, want %d", len(x), Dim)
	}

	want := map[int]float64{
		idxBias:       1.0,
		idxHistory:    0.3,
		idxUtterance:  0.5,
		idxLength:     0.25,
		idxQuestion:   1.0,
		idxWords:      6.0 / 80.0,
		idxPoliteness: 0.8,
		idxEmoji:      0.5,
		idxSafety:     1.0, // unreviewed
	}
	for i, w := range want {
		if math.Abs(x[i]-w) > 1e-12 {
			t.Errorf("%s: got %v, want %v", names[i], x[i], w)
		}
	}
}

func TestExtract_Clipping(t *testing.T) {
	hist := make([]string, 100)
	ctx := domain.Context{History: hist, Utterance: strings.Repeat("é", 5000)}
	c := candidate("terse", 10000)
	c.Meta.Politeness = 7
	c.Meta.SafetyScore = domain.FloatPtr(-3)

	x, err := Extract(ctx, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x[idxHistory] != historyCap || x[idxUtterance] != utteranceCap || x[idxLength] != lengthCap {
		t.Fatalf("caps not applied: %v", x)
	}
	if x[idxPoliteness] != 1 || x[idxSafety] != 0 {
		t.Fatalf("unit clip not applied: %v", x)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	ctx := domain.Context{History: []string{"a"}, Utterance: "why?"}
	c := candidate("curious", 42)

	a, _ := Extract(ctx, c)
	b, _ := Extract(ctx, c)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dimension %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestExtract_InvalidInput(t *testing.T) {
	missingLength := candidate("warm", 1)
	missingLength.Meta.Length = nil

	noStyle := candidate("", 1)

	negative := candidate("warm", -1)

	nanPolite := candidate("warm", 1)
	nanPolite.Meta.Politeness = math.NaN()

	infSafety := candidate("warm", 1)
	infSafety.Meta.SafetyScore = domain.FloatPtr(math.Inf(1))

	tests := []struct {
		name string
		c    domain.Candidate
	}{
		{"missing length", missingLength},
		{"missing style", noStyle},
		{"negative length", negative},
		{"nan politeness", nanPolite},
		{"inf safety", infSafety},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(domain.Context{}, tt.c)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err=%v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestExtractAll_StopsOnFirstError(t *testing.T) {
	bad := candidate("warm", 1)
	bad.Meta.Length = nil

	_, err := ExtractAll(domain.Context{}, []domain.Candidate{candidate("warm", 3), bad})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err=%v, want ErrInvalidInput", err)
	}
}
