package table

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// FormatValue converts a scalar from a database driver or a JSON decoder into
// a cell. Numbers are rendered without exponent noise so that an integer
// key read from one source meets the same key read as text from another.
func FormatValue(v any) Cell {
	switch val := v.(type) {
	case nil:
		return Null
	case Cell:
		return val
	case string:
		return Str(val)
	case []byte:
		return Str(string(val))
	case json.Number:
		return Str(val.String())
	case bool:
		return Str(strconv.FormatBool(val))
	case int:
		return Str(strconv.Itoa(val))
	case int32:
		return Str(strconv.FormatInt(int64(val), 10))
	case int64:
		return Str(strconv.FormatInt(val, 10))
	case uint64:
		return Str(strconv.FormatUint(val, 10))
	case float32:
		return Str(strconv.FormatFloat(float64(val), 'f', -1, 32))
	case float64:
		return Str(strconv.FormatFloat(val, 'f', -1, 64))
	case *big.Rat:
		if val == nil {
			return Null
		}
		return Str(formatRat(val))
	case time.Time:
		return Str(val.Format(time.RFC3339Nano))
	case civil.Date:
		return Str(val.String())
	case civil.DateTime:
		return Str(val.String())
	case civil.Time:
		return Str(val.String())
	case fmt.Stringer:
		return Str(val.String())
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return Str(fmt.Sprint(val))
		}
		return Str(string(b))
	default:
		return Str(fmt.Sprint(val))
	}
}

// formatRat renders an exact decimal without trailing zeros.
func formatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(9)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
