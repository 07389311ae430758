package abiutil

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	xerrors "gelato-runner/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// AddressResolver maps a symbolic name such as "DAI" or "gelatoExecutor.default"
// to an address. It returns false when the name is unknown.
type AddressResolver func(name string) (common.Address, bool)

// ParseArgs turns command line strings into the Go values contract.function
// expects. Addresses may be hex or any name resolve knows; integers accept
// decimal or 0x hex; arrays are comma separated, optionally in brackets.
func (r *Registry) ParseArgs(contract, function string, raw []string, resolve AddressResolver) ([]any, error) {
	method, err := r.Method(contract, function)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(method.Inputs) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("%s.%s 需要 %d 个参数，实际 %d 个", contract, function, len(method.Inputs), len(raw)))
	}
	values := make([]any, len(raw))
	for i, input := range method.Inputs {
		v, err := parseValue(input.Type, strings.TrimSpace(raw[i]), resolve)
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("参数 %s (%s) 无效", name, input.Type.String()))
		}
		values[i] = v
	}
	return values, nil
}

func parseValue(t abi.Type, raw string, resolve AddressResolver) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return parseAddress(raw, resolve)
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.IntTy, abi.UintTy:
		return parseInteger(t, raw)
	case abi.SliceTy, abi.ArrayTy:
		items := splitList(raw)
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			v, err := parseValue(*t.Elem, item, resolve)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil
	default:
		return nil, fmt.Errorf("type %s cannot be given on the command line", t.String())
	}
}

func parseAddress(raw string, resolve AddressResolver) (common.Address, error) {
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw), nil
	}
	if resolve != nil {
		if addr, ok := resolve(raw); ok {
			return addr, nil
		}
	}
	return common.Address{}, fmt.Errorf("%q is neither a hex address nor a known name", raw)
}

func parseInteger(t abi.Type, raw string) (any, error) {
	n, ok := math.ParseBig256(raw)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", t.String())
	}
	bits := n.BitLen()
	if t.T == abi.IntTy {
		bits++
	}
	if bits > t.Size {
		return nil, fmt.Errorf("%s overflows %s", raw, t.String())
	}
	if t.Size > 64 {
		return n, nil
	}
	out := reflect.New(t.GetType()).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}
	return parts
}

// FormatValue renders a decoded ABI value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case *big.Int:
		return x.String()
	case []byte:
		return hexutil.Encode(x)
	case [32]byte:
		return hexutil.Encode(x[:])
	case []common.Address:
		parts := make([]string, len(x))
		for i, a := range x {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []*big.Int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = n.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
