package engine

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"
)

// lookup возвращает значение по пути "a.b.c" в JSON-снапшоте контекста.
// Второй результат false, если путь отсутствует или значение null.
func lookup(ctxJSON []byte, path string) (any, bool) {
	res := gjson.GetBytes(ctxJSON, path)
	if !res.Exists() || res.Type == gjson.Null {
		return nil, false
	}
	return res.Value(), true
}

// stringify приводит значение к строке для встраивания в шаблон.
// Числа форматируются без хвостовых нулей ({{doc.cost}} → "100", не "100.000000").
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// toFloat приводит числовое значение к float64 для сравнения.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
