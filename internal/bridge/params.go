package bridge

import (
	"fmt"
	"math"
)

// intParam reads a whole number parameter in [lo, hi]. JSON numbers decode
// as float64.
func intParam(params map[string]any, name string, lo, hi int64) (int64, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing '%s'", ErrInvalidParameters, name)
	}

	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: '%s' must be a number", ErrInvalidParameters, name)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: '%s' must be a whole number, got %v", ErrInvalidParameters, name, f)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Errorf("%w: '%s' must be %d-%d, got %v", ErrInvalidParameters, name, lo, hi, f)
	}
	return int64(f), nil
}

func uint8Param(params map[string]any, name string) (uint8, error) {
	v, err := intParam(params, name, 0, math.MaxUint8)
	return uint8(v), err
}

func uint16Param(params map[string]any, name string) (uint16, error) {
	v, err := intParam(params, name, 0, math.MaxUint16)
	return uint16(v), err
}

// uint8Params reads several uint8 parameters, stopping at the first error.
func uint8Params(params map[string]any, names ...string) ([]uint8, error) {
	out := make([]uint8, len(names))
	for i, name := range names {
		v, err := uint8Param(params, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
