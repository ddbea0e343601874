package services

import "errors"

// SuperMemo-2 recurrence for flashcard scheduling.
//
// Quality grades:
//
//	5 - perfect response
//	4 - correct response after a hesitation
//	3 - correct response recalled with serious difficulty
//	2 - incorrect response; the correct one seemed easy to recall
//	1 - incorrect response; the correct one remembered
//	0 - complete blackout
const (
	QualityMin = 0
	QualityMax = 5

	// Grades below this are lapses.
	qualityPassThreshold = 3

	MinEaseFactor     = 1.3
	DefaultEaseFactor = 2.5
)

var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// CalculateNextReview returns the next interval (days) and ease factor for a
// review outcome. Pure: it never touches the repetitions counter; the caller
// maintains that.
//
// On a lapse (quality < 3) the interval resets to 1 day and the ease factor
// is left unchanged. On success the ease factor is recomputed as
// EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)) and floored at 1.3; the
// interval is 1 day for the first successful repetition, 6 for the second,
// and floor(previousInterval * previousEase) after that. The multiplication
// uses the ease factor from before this review, with integer truncation.
func CalculateNextReview(quality int, previousIntervalDays int, previousEase float64, repetitions int) (int, float64, error) {
	if quality < QualityMin || quality > QualityMax {
		return 0, 0, ErrInvalidQuality
	}

	if quality < qualityPassThreshold {
		return 1, previousEase, nil
	}

	q := float64(quality)
	nextEase := previousEase + (0.1 - (5-q)*(0.08+(5-q)*0.02))
	if nextEase < MinEaseFactor {
		nextEase = MinEaseFactor
	}

	var nextInterval int
	switch {
	case repetitions == 0:
		nextInterval = 1
	case repetitions == 1:
		nextInterval = 6
	default:
		nextInterval = int(float64(previousIntervalDays) * previousEase)
	}

	return nextInterval, nextEase, nil
}

// QuizWrongAnswerPenalty is the coarse adjustment applied when a quiz answer
// is wrong: the card comes due immediately with a one-day interval and the
// ease factor drops by 0.2, floored at 1.3. Deliberately separate from
// CalculateNextReview.
func QuizWrongAnswerPenalty(previousEase float64) (int, float64) {
	nextEase := previousEase - 0.2
	if nextEase < MinEaseFactor {
		nextEase = MinEaseFactor
	}
	return 1, nextEase
}
