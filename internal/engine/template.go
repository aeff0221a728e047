package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// referencePattern находит ссылки вида {{ step_name }}.
var referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Lookup возвращает текст для имени ссылки.
type Lookup func(name string) (string, bool)

// Interpolate подставляет выводы шагов в шаблон.
//
// Шаблон может содержать ссылки на успешные шаги:
//
//	Summarize: {{Research}}
//	{{ input }}
//
// Ссылка на отсутствующий или неуспешный шаг — ErrUnknownReference.
// Текст без "{{" возвращается как есть.
func Interpolate(tmpl string, lookup Lookup) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var missing string
	result := referencePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if missing != "" {
			return match
		}
		name := referencePattern.FindStringSubmatch(match)[1]
		value, ok := lookup(name)
		if !ok {
			missing = name
			return match
		}
		return value
	})

	if missing != "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownReference, missing)
	}

	return result, nil
}

// References возвращает имена всех ссылок шаблона в порядке появления.
func References(tmpl string) []string {
	matches := referencePattern.FindAllStringSubmatch(tmpl, -1)
	if len(matches) == 0 {
		return nil
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// MapLookup создаёт Lookup поверх map.
func MapLookup(values map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}
