package resolver

import (
	"fmt"
	"math"
	"sort"

	"github.com/shaiso/Relay/internal/domain"
)

// paramType — ожидаемый тип известного параметра.
type paramType string

const (
	typeNumber  paramType = "number"
	typeInteger paramType = "integer"
	typeString  paramType = "string"
	typeBool    paramType = "boolean"
)

// knownParams — параметры, тип которых проверяется.
var knownParams = map[string]paramType{
	"temperature":        typeNumber,
	"top_p":              typeNumber,
	"max_tokens":         typeInteger,
	"top_k":              typeInteger,
	"seed":               typeInteger,
	ParamModel:           typeString,
	"stream":             typeBool,
	ParamIncludeMetadata: typeBool,
}

// ValidateParameters проверяет типы известных параметров.
// Неизвестные ключи допускаются без проверки.
func ValidateParameters(params map[string]any) error {
	// Детерминированный порядок для одинаковых сообщений об ошибке
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, known := knownParams[key]
		if !known {
			continue
		}
		if !hasType(params[key], want) {
			return domain.NewResolutionError(domain.KindBadParameter, "",
				fmt.Sprintf("parameter %s must be %s, got %T", key, want, params[key]), nil)
		}
	}
	return nil
}

// hasType проверяет значение, пришедшее из JSON или из Go кода.
func hasType(v any, want paramType) bool {
	switch want {
	case typeNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
	case typeInteger:
		switch n := v.(type) {
		case int, int64, int32:
			return true
		case float64:
			// JSON числа приходят как float64
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		}
	case typeString:
		_, ok := v.(string)
		return ok
	case typeBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}
