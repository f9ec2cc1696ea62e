package callargs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var ErrAmbiguousCallArguments = errors.New("ambiguous call arguments")

// Normalize binds a raw invocation to the given inputs.
//
// A trailing Callback is detached first. Leading arguments are then bound in order to
// the inputs, until an options-shaped argument is reached. Every argument after that
// must be an object: objects holding any legacy transaction field only contribute those
// fields, as reserved keys, while other objects are merged as named parameters.
// Normalize performs no I/O and is deterministic.
func Normalize(args []any, inputs abi.Arguments) (Params, error) {
	p := make(Params)
	if n := len(args); n > 0 {
		switch cb := args[n-1].(type) {
		case Callback:
			p[KeyCallback] = cb
			args = args[:n-1]
		case func(any, error):
			p[KeyCallback] = Callback(cb)
			args = args[:n-1]
		}
	}

	i := 0
	for idx, in := range inputs {
		if i >= len(args) || isOptionsShaped(args[i]) {
			break
		}
		p[ParamName(in, idx)] = args[i]
		i++
	}

	for ; i < len(args); i++ {
		obj, ok := asObject(args[i])
		if !ok {
			return nil, fmt.Errorf("%w: argument %d of type %T is not an options object", ErrAmbiguousCallArguments, i, args[i])
		}
		p.merge(obj)
	}
	return p, nil
}

func (p Params) merge(obj map[string]any) {
	legacy := false
	for field, key := range legacyFields {
		if v, ok := obj[field]; ok {
			p[key] = v
			legacy = true
		}
	}
	if legacy {
		return
	}
	for k, v := range obj {
		p[k] = v
	}
}

// isOptionsShaped reports whether v ends the positional part of an invocation.
// Any object is options-shaped except one with exactly the keys c, e and s, which
// is how serialized big numbers look and is therefore bound positionally.
func isOptionsShaped(v any) bool {
	switch x := v.(type) {
	case Options, *Options:
		return true
	case Params:
		return !isSerializedNumber(x)
	case map[string]any:
		return !isSerializedNumber(x)
	}
	return false
}

func isSerializedNumber(m map[string]any) bool {
	if len(m) != 3 {
		return false
	}
	for _, k := range []string{"c", "e", "s"} {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func asObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case Params:
		return x, true
	case map[string]any:
		return x, true
	case Options:
		return x.Params(), true
	case *Options:
		if x == nil {
			return map[string]any{}, true
		}
		return x.Params(), true
	}
	return nil, false
}
