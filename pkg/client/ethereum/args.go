package ethereum

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/systemstart/many-deploy/pkg/resource"
)

// convertArgs turns rendered string arguments into the Go values the ABI
// encoder expects for inputs.
func convertArgs(inputs abi.Arguments, args []string) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, resource.Invalidf("expected %d arguments, got %d", len(inputs), len(args))
	}

	out := make([]any, len(args))
	for i, in := range inputs {
		v, err := convertArg(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, resource.Invalidf("argument %s (%s): %v", name, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func convertArg(t abi.Type, s string) (any, error) {
	s = strings.TrimSpace(s)

	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("malformed address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy, abi.IntTy:
		return convertInt(t, s)

	case abi.BoolTy:
		return strconv.ParseBool(s)

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		return hexutil.Decode(s)

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		rv := reflect.New(t.GetType()).Elem()
		reflect.Copy(rv, reflect.ValueOf(b))
		return rv.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported argument type")
	}
}

func convertInt(t abi.Type, s string) (any, error) {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(s, "_", ""), 0)
	if !ok {
		return nil, fmt.Errorf("malformed integer %q", s)
	}
	if err := checkIntRange(t, n); err != nil {
		return nil, err
	}

	rv := reflect.New(t.GetType()).Elem()
	switch rv.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		rv.SetUint(n.Uint64())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		rv.SetInt(n.Int64())
	default:
		return n, nil
	}
	return rv.Interface(), nil
}

func checkIntRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return fmt.Errorf("negative value %s for unsigned type", n)
		}
		if n.BitLen() > t.Size {
			return fmt.Errorf("value %s overflows %d bits", n, t.Size)
		}
		return nil
	}

	// two's complement: [-2^(size-1), 2^(size-1)-1]
	m := new(big.Int).Set(n)
	if m.Sign() < 0 {
		m.Neg(m).Sub(m, big.NewInt(1))
	}
	if m.BitLen() > t.Size-1 {
		return fmt.Errorf("value %s overflows int%d", n, t.Size)
	}
	return nil
}
