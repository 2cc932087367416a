package engine

import "regexp"

var (
	tokenRe      = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)
	wholeTokenRe = regexp.MustCompile(`^\{\{\s*([^{}\s]+)\s*\}\}$`)
)

// Render рекурсивно подставляет {{path}}-токены в значение, разрешая
// пути против JSON-снапшота контекста.
//
// Строка, состоящая ровно из одного токена, заменяется нативным
// значением из контекста: "{{doc.cost}}" при doc.cost = 100 даёт число
// 100, а не строку "100". Строка с токенами среди прочего текста
// рендерится как строка, неразрешённые пути дают пустую подстановку.
// Карты и срезы обходятся поэлементно, прочие значения возвращаются
// как есть. Вход не мутируется.
func Render(ctxJSON []byte, value any) any {
	switch v := value.(type) {
	case string:
		return renderString(ctxJSON, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Render(ctxJSON, item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Render(ctxJSON, item)
		}
		return out
	default:
		return value
	}
}

func renderString(ctxJSON []byte, s string) any {
	if m := wholeTokenRe.FindStringSubmatch(s); m != nil {
		// Цельный токен сохраняет нативный тип; отсутствующий путь — null.
		v, ok := lookup(ctxJSON, m[1])
		if !ok {
			return nil
		}
		return v
	}
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		v, ok := lookup(ctxJSON, m[1])
		if !ok {
			return ""
		}
		return stringify(v)
	})
}
