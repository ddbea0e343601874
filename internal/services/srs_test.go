package services

import (
	"math"
	"testing"
)

func TestCalculateNextReviewLapse(t *testing.T) {
	for _, quality := range []int{0, 1, 2} {
		interval, ease, err := CalculateNextReview(quality, 42, 2.1, 7)
		if err != nil {
			t.Fatalf("quality=%d: unexpected error: %v", quality, err)
		}
		if interval != 1 {
			t.Fatalf("quality=%d: interval=%d, want 1", quality, interval)
		}
		if ease != 2.1 {
			t.Fatalf("quality=%d: ease=%v, want unchanged 2.1", quality, ease)
		}
	}
}

func TestCalculateNextReviewSuccessIntervals(t *testing.T) {
	cases := []struct {
		name         string
		quality      int
		prevInterval int
		prevEase     float64
		repetitions  int
		wantInterval int
		wantEase     float64
	}{
		{name: "first_success", quality: 5, prevInterval: 0, prevEase: 2.5, repetitions: 0, wantInterval: 1, wantEase: 2.6},
		{name: "second_success", quality: 5, prevInterval: 1, prevEase: 2.6, repetitions: 1, wantInterval: 6, wantEase: 2.7},
		{name: "third_success_multiplies", quality: 5, prevInterval: 6, prevEase: 2.5, repetitions: 2, wantInterval: 15, wantEase: 2.6},
		// The worked example: q=4, interval=6, ease=2.5, reps=1.
		{name: "hesitation_keeps_ease", quality: 4, prevInterval: 6, prevEase: 2.5, repetitions: 1, wantInterval: 6, wantEase: 2.5},
		{name: "hesitation_later_rep", quality: 4, prevInterval: 6, prevEase: 2.5, repetitions: 2, wantInterval: 15, wantEase: 2.5},
		// Truncation, not rounding: 10*1.9 = 19.0 but 7*1.7 = 11.899... -> 11.
		{name: "interval_truncates", quality: 5, prevInterval: 7, prevEase: 1.7, repetitions: 4, wantInterval: 11, wantEase: 1.8},
		// q=3 drops ease by 0.14.
		{name: "difficult_recall_drops_ease", quality: 3, prevInterval: 6, prevEase: 2.5, repetitions: 2, wantInterval: 15, wantEase: 2.36},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interval, ease, err := CalculateNextReview(tc.quality, tc.prevInterval, tc.prevEase, tc.repetitions)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if interval != tc.wantInterval {
				t.Fatalf("interval=%d, want %d", interval, tc.wantInterval)
			}
			if math.Abs(ease-tc.wantEase) > 1e-9 {
				t.Fatalf("ease=%v, want %v", ease, tc.wantEase)
			}
		})
	}
}

func TestCalculateNextReviewEaseFloor(t *testing.T) {
	for quality := 0; quality <= 5; quality++ {
		_, ease, err := CalculateNextReview(quality, 3, 1.3, 5)
		if err != nil {
			t.Fatalf("quality=%d: unexpected error: %v", quality, err)
		}
		if ease < MinEaseFactor {
			t.Fatalf("quality=%d: ease=%v fell below floor %v", quality, ease, MinEaseFactor)
		}
	}
}

func TestCalculateNextReviewSuccessMonotonicity(t *testing.T) {
	// Repeated perfect recalls never decrease ease, and intervals follow
	// 1 -> 6 -> floor(prev*ease) -> ...
	ease := DefaultEaseFactor
	interval := 0
	prevInterval := 0
	for reps := 0; reps < 10; reps++ {
		nextInterval, nextEase, err := CalculateNextReview(5, interval, ease, reps)
		if err != nil {
			t.Fatalf("reps=%d: unexpected error: %v", reps, err)
		}
		if nextEase < ease {
			t.Fatalf("reps=%d: ease decreased %v -> %v", reps, ease, nextEase)
		}
		if reps >= 2 && nextInterval < prevInterval {
			t.Fatalf("reps=%d: interval shrank %d -> %d", reps, prevInterval, nextInterval)
		}
		prevInterval = nextInterval
		interval = nextInterval
		ease = nextEase
	}
}

func TestCalculateNextReviewRejectsBadQuality(t *testing.T) {
	for _, quality := range []int{-1, 6, 100} {
		if _, _, err := CalculateNextReview(quality, 1, 2.5, 0); err == nil {
			t.Fatalf("quality=%d: expected error", quality)
		}
	}
}

func TestQuizWrongAnswerPenalty(t *testing.T) {
	cases := []struct {
		name     string
		ease     float64
		wantEase float64
	}{
		{name: "normal_drop", ease: 2.5, wantEase: 2.3},
		{name: "clamps_at_floor", ease: 1.4, wantEase: 1.3},
		{name: "already_at_floor", ease: 1.3, wantEase: 1.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interval, ease := QuizWrongAnswerPenalty(tc.ease)
			if interval != 1 {
				t.Fatalf("interval=%d, want 1", interval)
			}
			if math.Abs(ease-tc.wantEase) > 1e-9 {
				t.Fatalf("ease=%v, want %v", ease, tc.wantEase)
			}
		})
	}
}
