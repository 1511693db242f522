package artifact

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// =============================================================================
// Argument Packing
// =============================================================================

// PackConstructor ABI-encodes constructor arguments. The result is appended
// to the creation code when publishing.
func PackConstructor(a *Artifact, args []string) ([]byte, error) {
	inputs := a.ABI.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, NewArtifactError(a.Name, "constructor",
			fmt.Sprintf("expected %d arguments, got %d", len(inputs), len(args)), ErrArgumentCount)
	}
	if len(args) == 0 {
		return nil, nil
	}

	values, err := convertArgs(a.Name, "constructor", inputs, args)
	if err != nil {
		return nil, err
	}
	data, err := inputs.Pack(values...)
	if err != nil {
		return nil, NewArtifactError(a.Name, "constructor", err.Error(), ErrInvalidArgument)
	}
	return data, nil
}

// PackCall ABI-encodes a method call including its 4-byte selector.
func PackCall(a *Artifact, method string, args []string) ([]byte, error) {
	m, ok := a.ABI.Methods[method]
	if !ok {
		return nil, NewArtifactError(a.Name, method, "not in ABI", ErrMethodNotFound)
	}
	if len(args) != len(m.Inputs) {
		return nil, NewArtifactError(a.Name, method,
			fmt.Sprintf("expected %d arguments, got %d", len(m.Inputs), len(args)), ErrArgumentCount)
	}

	values, err := convertArgs(a.Name, method, m.Inputs, args)
	if err != nil {
		return nil, err
	}
	data, err := a.ABI.Pack(method, values...)
	if err != nil {
		return nil, NewArtifactError(a.Name, method, err.Error(), ErrInvalidArgument)
	}
	return data, nil
}

func convertArgs(name, field string, inputs abi.Arguments, args []string) ([]any, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		v, err := ConvertArg(inputs[i].Type, arg)
		if err != nil {
			return nil, NewArtifactError(name, fmt.Sprintf("%s[%d]", field, i), err.Error(), err)
		}
		values[i] = v
	}
	return values, nil
}

// ConvertArg converts a textual argument to the Go value go-ethereum's ABI
// encoder expects for t. Integers accept decimal or 0x-prefixed hex.
func ConvertArg(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: %q is not an address", ErrInvalidArgument, s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrInvalidArgument, s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.UintTy:
		return convertUint(t.Size, s)

	case abi.IntTy:
		return convertInt(t.Size, s)

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidArgument, s, err)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidArgument, s, err)
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidArgument, t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArgType, t.String())
	}
}

func convertUint(size int, s string) (any, error) {
	switch size {
	case 8, 16, 32, 64:
		n, err := strconv.ParseUint(s, 0, size)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a uint%d", ErrInvalidArgument, s, size)
		}
		switch size {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		default:
			return n, nil
		}
	}

	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 || n.BitLen() > size {
		return nil, fmt.Errorf("%w: %q is not a uint%d", ErrInvalidArgument, s, size)
	}
	return n, nil
}

func convertInt(size int, s string) (any, error) {
	switch size {
	case 8, 16, 32, 64:
		n, err := strconv.ParseInt(s, 0, size)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int%d", ErrInvalidArgument, s, size)
		}
		switch size {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		default:
			return n, nil
		}
	}

	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an int%d", ErrInvalidArgument, s, size)
	}
	// Two's complement range: [-2^(size-1), 2^(size-1)-1].
	limit := new(big.Int).Lsh(big.NewInt(1), uint(size-1))
	if n.Cmp(new(big.Int).Neg(limit)) < 0 || n.Cmp(limit) >= 0 {
		return nil, fmt.Errorf("%w: %q is not an int%d", ErrInvalidArgument, s, size)
	}
	return n, nil
}
