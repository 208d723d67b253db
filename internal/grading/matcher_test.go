package grading

import (
	"math"
	"testing"
)

func strPtr(s string) *string { return &s }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGrade_MatchClassification(t *testing.T) {
	heart := AnswerKey{Name: "Heart", Points: 1, HintPenaltyPercent: 10}

	tests := []struct {
		name      string
		answer    *string
		hints     int
		key       AnswerKey
		wantMatch MatchKind
		wantOK    bool
		wantPts   float64
	}{
		{
			name:      "exact match",
			answer:    strPtr("Heart"),
			key:       heart,
			wantMatch: MatchExact,
			wantOK:    true,
			wantPts:   1.0,
		},
		{
			name:      "case and whitespace insensitive",
			answer:    strPtr("  hEaRt  "),
			key:       heart,
			wantMatch: MatchExact,
			wantOK:    true,
			wantPts:   1.0,
		},
		{
			name:      "transposition within distance two is fuzzy",
			answer:    strPtr("Haert"),
			key:       heart,
			wantMatch: MatchFuzzy,
			wantOK:    true,
			wantPts:   1.0,
		},
		{
			name:      "unrelated answer is incorrect",
			answer:    strPtr("Kidney"),
			key:       AnswerKey{Name: "Vena Cava", Points: 1, HintPenaltyPercent: 10},
			wantMatch: MatchIncorrect,
		},
		{
			name:      "latin name is an accepted term",
			answer:    strPtr("Cor"),
			key:       AnswerKey{Name: "Heart", LatinName: "Cor", Points: 1, HintPenaltyPercent: 10},
			wantMatch: MatchExact,
			wantOK:    true,
			wantPts:   1.0,
		},
		{
			name:      "alias is an accepted term",
			answer:    strPtr("caudal vena cava"),
			key:       AnswerKey{Name: "Vena Cava", Aliases: []string{"Caudal Vena Cava"}, Points: 2, HintPenaltyPercent: 10},
			wantMatch: MatchExact,
			wantOK:    true,
			wantPts:   2.0,
		},
		{
			name:      "nil answer is incorrect",
			answer:    nil,
			key:       heart,
			wantMatch: MatchIncorrect,
		},
		{
			name:      "blank answer is incorrect",
			answer:    strPtr("   "),
			key:       heart,
			wantMatch: MatchIncorrect,
		},
		{
			name:      "internal whitespace collapsed",
			answer:    strPtr("vena   cava"),
			key:       AnswerKey{Name: "Vena Cava", Points: 1, HintPenaltyPercent: 10},
			wantMatch: MatchExact,
			wantOK:    true,
			wantPts:   1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grade(tt.answer, tt.hints, tt.key)
			if got.Match != tt.wantMatch {
				t.Errorf("match = %s, want %s", got.Match, tt.wantMatch)
			}
			if got.IsCorrect != tt.wantOK {
				t.Errorf("isCorrect = %v, want %v", got.IsCorrect, tt.wantOK)
			}
			if !almostEqual(got.PointsEarned, tt.wantPts) {
				t.Errorf("points = %v, want %v", got.PointsEarned, tt.wantPts)
			}
		})
	}
}

func TestGrade_HintPenalty(t *testing.T) {
	key := AnswerKey{Name: "Heart", Points: 1, HintPenaltyPercent: 10}

	cases := []struct {
		hints int
		want  float64
	}{
		{0, 1.0},
		{1, 0.9},
		{2, 0.8},
		{10, 0.0},
		{15, 0.0}, // floored, never negative
	}
	for _, c := range cases {
		got := Grade(strPtr("Heart"), c.hints, key)
		if !almostEqual(got.PointsEarned, c.want) {
			t.Errorf("hints=%d: points = %v, want %v", c.hints, got.PointsEarned, c.want)
		}
		if !got.IsCorrect {
			t.Errorf("hints=%d: penalized answer must stay correct", c.hints)
		}
	}
}

func TestGrade_Deterministic(t *testing.T) {
	key := AnswerKey{Name: "Trachea", LatinName: "Trachea", Points: 3, HintPenaltyPercent: 10}
	first := Grade(strPtr("trachae"), 1, key)
	for i := 0; i < 5; i++ {
		if got := Grade(strPtr("trachae"), 1, key); got != first {
			t.Fatalf("grading not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"heart", "heart", 0},
		{"haert", "heart", 2},
		{"kidney", "vena cava", 9},
		{"cor", "cör", 1},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q,%q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Heart ", "heart"},
		{"Vena   Cava", "vena cava"},
		{"\tLeft\nVentricle ", "left ventricle"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
