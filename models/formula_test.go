package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvaluateFormulaPrecedence(t *testing.T) {
	cases := []struct {
		expression string
		vars       map[string]decimal.Decimal
		want       string
	}{
		{"2+3*4", nil, "14"},
		{"(2+3)*4", nil, "20"},
		{"10-4-3", nil, "3"},
		{"12/4/3", nil, "1"},
		{"2*3+4*5", nil, "26"},
		{"length*width", map[string]decimal.Decimal{"length": dec("4"), "width": dec("5")}, "20"},
		{"length*height-openings", map[string]decimal.Decimal{
			"length": dec("10"), "height": dec("2.4"), "openings": dec("3.6"),
		}, "20.4"},
		{"0.1+0.2", nil, "0.3"},
		{"  2 + 3 ", nil, "5"},
	}
	for _, tc := range cases {
		got, err := models.EvaluateFormula(tc.expression, tc.vars)
		if err != nil {
			t.Fatalf("EvaluateFormula(%q): unexpected error %v", tc.expression, err)
		}
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("EvaluateFormula(%q) = %s, want %s", tc.expression, got, tc.want)
		}
	}
}

func TestEvaluateFormulaInvalidExpression(t *testing.T) {
	cases := []string{
		"",
		"2+",
		"*3",
		"(2+3",
		"2+3)",
		"2 $ 3",
		"1..2",
		"2 3",
	}
	for _, expression := range cases {
		_, err := models.EvaluateFormula(expression, nil)
		if !errors.Is(err, models.ErrInvalidExpression) {
			t.Fatalf("EvaluateFormula(%q): got %v, want ErrInvalidExpression", expression, err)
		}
	}
}

func TestEvaluateFormulaDivisionByZero(t *testing.T) {
	_, err := models.EvaluateFormula("a/b", map[string]decimal.Decimal{
		"a": dec("10"), "b": decimal.Zero,
	})
	if !errors.Is(err, models.ErrDivisionByZero) {
		t.Fatalf("got %v, want ErrDivisionByZero", err)
	}
	_, err = models.EvaluateFormula("1/0", nil)
	if !errors.Is(err, models.ErrDivisionByZero) {
		t.Fatalf("got %v, want ErrDivisionByZero", err)
	}
}

func TestEvaluateFormulaUnknownVariable(t *testing.T) {
	_, err := models.EvaluateFormula("length*width", map[string]decimal.Decimal{"length": dec("4")})
	if !errors.Is(err, models.ErrUnknownVariable) {
		t.Fatalf("got %v, want ErrUnknownVariable", err)
	}
}

func TestEvaluateQuantityClampsNegative(t *testing.T) {
	got, err := models.EvaluateQuantity("2-5", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("EvaluateQuantity(2-5) = %s, want 0", got)
	}
}

func TestPreviewQuantityRecovers(t *testing.T) {
	// Missing variables evaluate as zero instead of failing.
	got := models.PreviewQuantity("length*width", map[string]decimal.Decimal{"length": dec("4")})
	if !got.IsZero() {
		t.Fatalf("preview with missing token = %s, want 0", got)
	}
	// Hard failures fall back to zero too.
	if got := models.PreviewQuantity("a/b", map[string]decimal.Decimal{"a": dec("1"), "b": decimal.Zero}); !got.IsZero() {
		t.Fatalf("preview with division by zero = %s, want 0", got)
	}
	if got := models.PreviewQuantity("((", nil); !got.IsZero() {
		t.Fatalf("preview with broken expression = %s, want 0", got)
	}
	// Valid input still computes.
	got = models.PreviewQuantity("length*width", map[string]decimal.Decimal{"length": dec("4"), "width": dec("5")})
	if !got.Equal(dec("20")) {
		t.Fatalf("preview = %s, want 20", got)
	}
}

func TestEvaluateFormulaDeterministic(t *testing.T) {
	vars := map[string]decimal.Decimal{"length": dec("7.35"), "width": dec("2.41")}
	first, err := models.EvaluateFormula("length*width+length/width", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := models.EvaluateFormula("length*width+length/width", vars)
		if err != nil {
			t.Fatalf("unexpected error on run %d: %v", i, err)
		}
		if !again.Equal(first) || again.String() != first.String() {
			t.Fatalf("run %d produced %s, first run produced %s", i, again, first)
		}
	}
}
