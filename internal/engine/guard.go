package engine

import (
	"fmt"
	"reflect"

	"github.com/shaiso/Procedura/internal/domain"
)

// EvalGuard вычисляет guard-выражение против JSON-снапшота контекста.
// Отсутствующее выражение (nil) эквивалентно true.
func EvalGuard(ctxJSON []byte, e *domain.Expr) (bool, error) {
	if e == nil {
		return true, nil
	}
	switch e.Op {
	case "and":
		// Пустой список аргументов — вакуумная истина.
		for _, arg := range e.Args {
			ok, err := EvalGuard(ctxJSON, arg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, arg := range e.Args {
			ok, err := EvalGuard(ctxJSON, arg)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "not":
		if len(e.Args) != 1 {
			return false, fmt.Errorf("guard: operator %q expects exactly one argument, got %d", e.Op, len(e.Args))
		}
		ok, err := EvalGuard(ctxJSON, e.Args[0])
		if err != nil {
			return false, err
		}
		return !ok, nil
	case "exists":
		// Истина тогда и только тогда, когда левый операнд разрешился
		// и значение не null.
		_, present := resolveOperand(ctxJSON, e.Left)
		return present, nil
	case "eq", "ne", "gt", "gte", "lt", "lte", "in":
		left, _ := resolveOperand(ctxJSON, e.Left)
		right, _ := resolveOperand(ctxJSON, e.Right)
		return compare(e.Op, left, right)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, e.Op)
	}
}

// resolveOperand разворачивает операнд: {"path": "a.b.c"} разрешается
// по контексту, любое другое значение трактуется как литерал.
func resolveOperand(ctxJSON []byte, v any) (any, bool) {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if p, ok := m["path"].(string); ok {
			return lookup(ctxJSON, p)
		}
	}
	return v, v != nil
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "eq":
		return equal(left, right), nil
	case "ne":
		return !equal(left, right), nil
	case "in":
		// Несеквенция справа — false, не ошибка.
		seq, ok := right.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range seq {
			if equal(left, item) {
				return true, nil
			}
		}
		return false, nil
	case "gt", "gte", "lt", "lte":
		return order(op, left, right), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}
}

// equal сравнивает значения с нормализацией чисел: после JSON round-trip
// все числа становятся float64, но литералы из Go-кода могут быть int.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// order выполняет порядковое сравнение: числа численно, строки
// лексикографически, несравнимые пары дают false.
func order(op string, a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch op {
			case "gt":
				return fa > fb
			case "gte":
				return fa >= fb
			case "lt":
				return fa < fb
			case "lte":
				return fa <= fb
			}
		}
		return false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		switch op {
		case "gt":
			return sa > sb
		case "gte":
			return sa >= sb
		case "lt":
			return sa < sb
		case "lte":
			return sa <= sb
		}
	}
	return false
}
