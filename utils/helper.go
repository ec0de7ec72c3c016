package utils

import (
	"math"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

// RoundCurrency rounds half-up to 2 decimal places. Applied only at the point
// of producing line-level and aggregate monetary outputs, never to
// intermediate per-unit rates.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SafeDecimalFromFloat treats non-finite inputs as 0 so NaN/Inf coming from
// loosely-typed wizard answers never reaches decimal math (NewFromFloat
// panics on non-finite values).
func SafeDecimalFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// PercentOf returns amount * pct/100 without intermediate rounding.
func PercentOf(amount decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(decimalOneHundred)
}

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]bool, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}
