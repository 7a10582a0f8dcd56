package binding

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

var errNoHandle = errors.New("handle generator returned an empty id")

func arg(op string, args []any, i int, name string) (any, error) {
	if i >= len(args) || args[i] == nil {
		return nil, mpc.InvalidArgument(op, fmt.Sprintf("missing %s", name))
	}
	return args[i], nil
}

func stringArg(op string, args []any, i int, name string) (string, error) {
	v, err := arg(op, args, i, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mpc.InvalidArgument(op, fmt.Sprintf("%s must be a string", name))
	}
	return s, nil
}

func boolArg(op string, args []any, i int, name string) (bool, error) {
	v, err := arg(op, args, i, name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mpc.InvalidArgument(op, fmt.Sprintf("%s must be a boolean", name))
	}
	return b, nil
}

// intArg accepts any Go integer, an integral float as decoded from JSON, or
// a json.Number.
func intArg(op string, args []any, i int, name string) (int, error) {
	v, err := arg(op, args, i, name)
	if err != nil {
		return 0, err
	}
	n, ok := toInt(v)
	if !ok {
		return 0, mpc.InvalidArgument(op, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return fromInt64(n)
	case uint:
		return fromUint64(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return fromInt64(i)
		}
		if f, err := n.Float64(); err == nil {
			return fromFloat(f)
		}
	}
	return 0, false
}

func fromInt64(n int64) (int, bool) {
	if n < math.MinInt || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func fromUint64(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func fromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt || f > math.MaxInt {
		return 0, false
	}
	return int(f), true
}
