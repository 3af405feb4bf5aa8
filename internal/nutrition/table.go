// Package nutrition maps dish names to calorie values and estimates the
// calories of dishes it has never seen.
package nutrition

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one dish of the table. Known is false when the source row carried
// no usable calorie value.
type Entry struct {
	Dish     string  `json:"dish"`
	Calories float64 `json:"calories"`
	Known    bool    `json:"known"`
}

// Table is safe for concurrent reads once built.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Add records a dish. The first known value for a dish wins; an unknown value
// never replaces a known one.
func (t *Table) Add(dish string, calories float64, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, exists := t.entries[dish]
	if exists && (prev.Known || !known) {
		return
	}
	t.entries[dish] = Entry{Dish: dish, Calories: calories, Known: known}
}

// Lookup returns the stored calories for an exact dish name. Unknown entries
// report ok=false.
func (t *Table) Lookup(dish string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, exists := t.entries[dish]
	if !exists || !e.Known {
		return 0, false
	}
	return e.Calories, true
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns every entry sorted by dish name.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Dish < out[j].Dish })
	return out
}

// Calorie buckets used when a dish has no table entry.
const (
	SoupSaladCalories = 200
	StarchCalories    = 350
	ProteinCalories   = 400
	FastFoodCalories  = 500
	DessertCalories   = 300
	DefaultCalories   = 250
)

type bucket struct {
	keywords []string
	calories float64
}

// Checked in order; the first bucket with a matching keyword wins.
var buckets = []bucket{
	{[]string{"salad", "salade", "soup", "soupe"}, SoupSaladCalories},
	{[]string{"pasta", "pâte", "rice", "riz"}, StarchCalories},
	{[]string{"steak", "meat", "viande", "fish", "poisson"}, ProteinCalories},
	{[]string{"pizza", "burger"}, FastFoodCalories},
	{[]string{"cake", "dessert", "gâteau"}, DessertCalories},
}

// Estimate guesses calories from keywords in the dish name.
func Estimate(dish string) float64 {
	name := strings.ToLower(dish)
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if strings.Contains(name, kw) {
				return b.calories
			}
		}
	}
	return DefaultCalories
}

// MealCalories returns the table value for an exact match and the keyword
// estimate otherwise. It never fails; a nil table is treated as empty.
func MealCalories(dish string, table *Table) float64 {
	if cal, ok := table.Lookup(dish); ok {
		return cal
	}
	return Estimate(dish)
}
