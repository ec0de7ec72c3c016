package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantity formulas on assembly lines are tiny arithmetic expressions over
// named survey measurements, e.g. "length*height-openingsArea". The grammar is
// deliberately small: numeric literals, identifiers, + - * /, parentheses.
// No unary minus, no functions, no comparisons.

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrUnknownVariable   = errors.New("unknown variable")
	ErrDivisionByZero    = errors.New("division by zero")
)

type formulaTokenKind int

const (
	tokenNumber formulaTokenKind = iota
	tokenIdent
	tokenOperator
	tokenLeftParen
	tokenRightParen
)

type formulaToken struct {
	kind  formulaTokenKind
	text  string
	value decimal.Decimal
}

// EvaluateFormula is the strict evaluator used at commit time (applying an
// assembly, running regeneration). An identifier missing from vars fails with
// ErrUnknownVariable. The result is not clamped.
func EvaluateFormula(expression string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return evaluateFormula(expression, vars, false)
}

// EvaluateQuantity is the strict evaluator for quantity contexts: negative
// computed quantities become 0.
func EvaluateQuantity(expression string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	result, err := evaluateFormula(expression, vars, false)
	if err != nil {
		return decimal.Zero, err
	}
	if result.IsNegative() {
		return decimal.Zero, nil
	}
	return result, nil
}

// PreviewQuantity is the permissive variant for display-time previews:
// identifiers missing from vars evaluate as 0 and any evaluation failure
// falls back to a quantity of 0 instead of surfacing to the user mid-wizard.
func PreviewQuantity(expression string, vars map[string]decimal.Decimal) decimal.Decimal {
	result, err := evaluateFormula(expression, vars, true)
	if err != nil {
		return decimal.Zero
	}
	if result.IsNegative() {
		return decimal.Zero
	}
	return result
}

func evaluateFormula(expression string, vars map[string]decimal.Decimal, missingAsZero bool) (decimal.Decimal, error) {
	tokens, err := tokenizeFormula(expression)
	if err != nil {
		return decimal.Zero, err
	}
	postfix, err := toPostfix(tokens)
	if err != nil {
		return decimal.Zero, err
	}
	return evaluatePostfix(postfix, vars, missingAsZero)
}

func tokenizeFormula(expression string) ([]formulaToken, error) {
	var tokens []formulaToken
	i := 0
	for i < len(expression) {
		c := expression[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(expression) && (expression[i] >= '0' && expression[i] <= '9' || expression[i] == '.') {
				i++
			}
			value, err := decimal.NewFromString(expression[start:i])
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, expression[start:i])
			}
			tokens = append(tokens, formulaToken{kind: tokenNumber, text: expression[start:i], value: value})
		case isIdentStart(c):
			start := i
			for i < len(expression) && isIdentPart(expression[i]) {
				i++
			}
			tokens = append(tokens, formulaToken{kind: tokenIdent, text: expression[start:i]})
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, formulaToken{kind: tokenOperator, text: string(c)})
			i++
		case c == '(':
			tokens = append(tokens, formulaToken{kind: tokenLeftParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, formulaToken{kind: tokenRightParen, text: ")"})
			i++
		default:
			return nil, fmt.Errorf("%w: illegal character %q", ErrInvalidExpression, string(c))
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func operatorPrecedence(op string) int {
	if op == "*" || op == "/" {
		return 2
	}
	return 1
}

// toPostfix converts infix tokens to postfix order (shunting-yard). All
// operators are left-associative.
func toPostfix(tokens []formulaToken) ([]formulaToken, error) {
	var output []formulaToken
	var operators []formulaToken

	for _, t := range tokens {
		switch t.kind {
		case tokenNumber, tokenIdent:
			output = append(output, t)
		case tokenOperator:
			for len(operators) > 0 {
				top := operators[len(operators)-1]
				if top.kind != tokenOperator || operatorPrecedence(top.text) < operatorPrecedence(t.text) {
					break
				}
				output = append(output, top)
				operators = operators[:len(operators)-1]
			}
			operators = append(operators, t)
		case tokenLeftParen:
			operators = append(operators, t)
		case tokenRightParen:
			matched := false
			for len(operators) > 0 {
				top := operators[len(operators)-1]
				operators = operators[:len(operators)-1]
				if top.kind == tokenLeftParen {
					matched = true
					break
				}
				output = append(output, top)
			}
			if !matched {
				return nil, fmt.Errorf("%w: unbalanced parentheses", ErrInvalidExpression)
			}
		}
	}
	for len(operators) > 0 {
		top := operators[len(operators)-1]
		operators = operators[:len(operators)-1]
		if top.kind == tokenLeftParen {
			return nil, fmt.Errorf("%w: unbalanced parentheses", ErrInvalidExpression)
		}
		output = append(output, top)
	}
	return output, nil
}

func evaluatePostfix(postfix []formulaToken, vars map[string]decimal.Decimal, missingAsZero bool) (decimal.Decimal, error) {
	var stack []decimal.Decimal

	for _, t := range postfix {
		switch t.kind {
		case tokenNumber:
			stack = append(stack, t.value)
		case tokenIdent:
			value, ok := vars[t.text]
			if !ok {
				if !missingAsZero {
					return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownVariable, t.text)
				}
				value = decimal.Zero
			}
			stack = append(stack, value)
		case tokenOperator:
			if len(stack) < 2 {
				return decimal.Zero, fmt.Errorf("%w: operator %q is missing an operand", ErrInvalidExpression, t.text)
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			var result decimal.Decimal
			switch t.text {
			case "+":
				result = left.Add(right)
			case "-":
				result = left.Sub(right)
			case "*":
				result = left.Mul(right)
			case "/":
				if right.IsZero() {
					return decimal.Zero, fmt.Errorf("%w: %s / %s", ErrDivisionByZero, left, right)
				}
				result = left.Div(right)
			}
			stack = append(stack, result)
		}
	}
	if len(stack) != 1 {
		return decimal.Zero, fmt.Errorf("%w: malformed expression", ErrInvalidExpression)
	}
	return stack[0], nil
}
