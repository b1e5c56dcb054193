// Package score computes the points earned by an answer.
package score

import (
	"github.com/shopspring/decimal"
)

const (
	// Base is awarded for every correct answer.
	Base = 100
	// MaxBonus is awarded on top of Base for an instant correct answer.
	MaxBonus = 50
)

var maxBonus = decimal.NewFromInt(MaxBonus)

// Points returns the score for one answer. A wrong answer earns nothing. A correct answer earns
// Base plus a speed bonus of floor(MaxBonus * (1 - timeTaken/timeLimit)), with timeTaken clamped
// to [0, timeLimit]. The result is always within [Base, Base+MaxBonus] for correct answers.
//
// The bonus is computed in decimal so that values like 6/20 floor to the expected integer.
func Points(isCorrect bool, timeTakenSeconds float64, timeLimitSeconds int) int {
	if !isCorrect {
		return 0
	}
	if timeLimitSeconds <= 0 {
		return Base
	}

	limit := decimal.NewFromInt(int64(timeLimitSeconds))
	taken := decimal.NewFromFloat(timeTakenSeconds)
	if taken.IsNegative() {
		taken = decimal.Zero
	}
	if taken.GreaterThan(limit) {
		taken = limit
	}

	bonus := maxBonus.Mul(decimal.NewFromInt(1).Sub(taken.Div(limit))).Floor()
	if bonus.IsNegative() {
		bonus = decimal.Zero
	}

	return Base + int(bonus.IntPart())
}
