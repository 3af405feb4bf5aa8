// Package budget compares a meal's calories with the allowance for a
// fitness goal and meal slot.
package budget

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type Goal string

const (
	GoalWeightLoss  Goal = "weight_loss"
	GoalMuscleGain  Goal = "muscle_gain"
	GoalMaintenance Goal = "maintenance"
)

func (g Goal) IsValid() bool {
	switch g {
	case GoalWeightLoss, GoalMuscleGain, GoalMaintenance:
		return true
	}
	return false
}

type Slot string

const (
	SlotBreakfast Slot = "breakfast"
	SlotLunch     Slot = "lunch"
	SlotSnack     Slot = "snack"
	SlotDinner    Slot = "dinner"
)

func (s Slot) IsValid() bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotSnack, SlotDinner:
		return true
	}
	return false
}

type Status string

const (
	StatusValid        Status = "valid"
	StatusDiscouraged  Status = "discouraged"
	StatusTooLight     Status = "too_light"
	StatusInsufficient Status = "insufficient"
	StatusTooRich      Status = "too_rich"
	StatusPerfect      Status = "perfect"
	StatusSlightlyHigh Status = "slightly_high"
	StatusLight        Status = "light"
)

var (
	ErrUnknownGoal = errors.New("unknown goal")
	ErrUnknownSlot = errors.New("unknown meal slot")
)

// Kcal per slot for each goal.
var defaultBudgets = map[Goal]map[Slot]float64{
	GoalWeightLoss: {
		SlotBreakfast: 400, SlotLunch: 600, SlotSnack: 200, SlotDinner: 500,
	},
	GoalMuscleGain: {
		SlotBreakfast: 700, SlotLunch: 900, SlotSnack: 400, SlotDinner: 800,
	},
	GoalMaintenance: {
		SlotBreakfast: 500, SlotLunch: 700, SlotSnack: 300, SlotDinner: 600,
	},
}

func ParseGoal(s string) (Goal, error) {
	g := Goal(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGoal, s)
	}
	return g, nil
}

func ParseSlot(s string) (Slot, error) {
	sl := Slot(strings.ToLower(strings.TrimSpace(s)))
	if !sl.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, s)
	}
	return sl, nil
}

// DefaultBudget returns the suggested allowance for a goal and slot.
func DefaultBudget(g Goal, s Slot) (float64, error) {
	slots, ok := defaultBudgets[g]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGoal, g)
	}
	b, ok := slots[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, s)
	}
	return b, nil
}

// DailyGoal sums the slot budgets of a goal.
func DailyGoal(g Goal) float64 {
	var sum float64
	for _, b := range defaultBudgets[g] {
		sum += b
	}
	return sum
}

type Input struct {
	Calories  float64 `json:"calories"`
	Budget    float64 `json:"budget"`
	DailyGoal float64 `json:"daily_goal"`
	Goal      Goal    `json:"goal"`
}

var ErrMissingBudget = errors.New("either a meal budget or a slot is required")

// Resolve builds an Input for goal, taking the meal budget from slot when
// mealBudget is not positive and the daily goal from the goal defaults when
// dailyGoal is not positive. Calories are left for the caller.
func Resolve(goal, slot string, mealBudget, dailyGoal float64) (Input, error) {
	g, err := ParseGoal(goal)
	if err != nil {
		return Input{}, err
	}

	in := Input{Goal: g, Budget: mealBudget, DailyGoal: dailyGoal}
	if in.Budget <= 0 {
		if strings.TrimSpace(slot) == "" {
			return Input{}, ErrMissingBudget
		}
		sl, err := ParseSlot(slot)
		if err != nil {
			return Input{}, err
		}
		// both parsed, cannot fail
		in.Budget, _ = DefaultBudget(g, sl)
	}
	if in.DailyGoal <= 0 {
		in.DailyGoal = DailyGoal(g)
	}
	return in, nil
}

type Evaluation struct {
	Status          Status  `json:"status"`
	Advice          string  `json:"advice"`
	RemainingBudget float64 `json:"remaining_budget"`
	DailyPercentage float64 `json:"daily_percentage"`
}

var advice = map[Status]string{
	StatusValid:        "Within your meal budget.",
	StatusDiscouraged:  "Over budget for weight loss.",
	StatusTooLight:     "Very light meal; consider adding protein.",
	StatusInsufficient: "Not enough calories for muscle gain.",
	StatusTooRich:      "Well above budget even for muscle gain.",
	StatusPerfect:      "Right on budget.",
	StatusSlightlyHigh: "A little above budget.",
	StatusLight:        "Lighter than budget.",
}

// Evaluate is a pure function of its input.
func Evaluate(in Input) (Evaluation, error) {
	if !in.Goal.IsValid() {
		return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownGoal, in.Goal)
	}

	remaining := in.Budget - in.Calories
	var daily float64
	if in.DailyGoal > 0 {
		daily = in.Calories / in.DailyGoal * 100
	}

	status := classify(in.Goal, in.Calories, in.Budget, remaining)
	return Evaluation{
		Status:          status,
		Advice:          advice[status],
		RemainingBudget: remaining,
		DailyPercentage: daily,
	}, nil
}

func classify(g Goal, calories, budget, remaining float64) Status {
	switch g {
	case GoalWeightLoss:
		switch {
		case calories > budget:
			return StatusDiscouraged
		case calories < 100:
			return StatusTooLight
		}
	case GoalMuscleGain:
		switch {
		case calories < 300:
			return StatusInsufficient
		case calories > budget*1.3:
			return StatusTooRich
		}
	case GoalMaintenance:
		switch {
		case math.Abs(remaining) < 50:
			return StatusPerfect
		case calories > budget*1.1:
			return StatusSlightlyHigh
		case calories < budget*0.7:
			return StatusLight
		}
	}
	return StatusValid
}
