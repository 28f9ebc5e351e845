package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"recurra/internal/core"
)

// The driver hands back int64, float64, string, []byte, time.Time or nil
// depending on the declared column type and the stored value. These helpers
// normalize whatever an older schema left behind.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func asDate(v any) (core.Date, error) {
	switch x := v.(type) {
	case nil:
		return core.Date{}, nil
	case time.Time:
		if x.IsZero() {
			return core.Date{}, nil
		}
		return core.DateOf(x.UTC()), nil
	default:
		s := asString(x)
		if strings.TrimSpace(s) == "" {
			return core.Date{}, nil
		}
		return core.ParseDate(s)
	}
}

func asAmount(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: missing", core.ErrInvalidAmount)
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return core.ParseAmount(asString(x))
	}
}

// asBool treats NULL as def, so a column that exists but was never filled
// behaves like one that does not exist.
func asBool(v any, def bool) bool {
	switch x := v.(type) {
	case nil:
		return def
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		switch strings.ToLower(strings.TrimSpace(asString(x))) {
		case "1", "true", "t", "yes", "y":
			return true
		case "":
			return def
		default:
			return false
		}
	}
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
