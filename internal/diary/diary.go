// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package diary implements the food diary: it parses food log messages, looks
// up their nutrition, records them and composes replies.
package diary

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Entry is a single food log record.
type Entry struct {
	Date    time.Time
	Product string
	Amount  int
	Unit    string // one of "г", "шт", "ml", "мл"
}

// Profile is a nutrition profile. Protein, fat and carbohydrate amounts are
// in grams and have at most one decimal digit.
type Profile struct {
	Kcal     int
	Proteins float64
	Fats     float64
	Carbs    float64
}

// NewProfile builds a rounded Profile from raw per-100g values.
func NewProfile(kcal, proteins, fats, carbs float64) Profile {
	return Profile{
		Kcal:     int(math.RoundToEven(kcal)),
		Proteins: round1(proteins),
		Fats:     round1(fats),
		Carbs:    round1(carbs),
	}
}

// round1 rounds v to one decimal digit, half to even on the exact binary
// value of v.
func round1(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Lookup is a result of a nutrition lookup.
type Lookup struct {
	Profile
	// Found is false when the fallback zero profile is used.
	Found bool
	// Err is the cause of a failed lookup. It is informational only.
	Err error
}

// NutritionLookup finds a nutrition profile for a product name.
//
// Lookup never fails: on any error it returns a zero profile with Err set.
type NutritionLookup interface {
	Lookup(ctx context.Context, product string) Lookup
}

// LogStore appends rows to the diary log.
type LogStore interface {
	Append(ctx context.Context, row []any) error
}

// Row returns the log row of e with nutrition p:
// date, time, product, amount, kcal, proteins, fats, carbs.
func (e Entry) Row(p Profile) []any {
	return []any{
		e.Date.Format(time.DateOnly),
		e.Date.Format("15:04"),
		e.Product,
		e.Amount,
		p.Kcal,
		p.Proteins,
		p.Fats,
		p.Carbs,
	}
}
