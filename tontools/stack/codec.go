package stack

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// parseNumber accepts hex with a 0x prefix (optionally negative) and decimal.
func parseNumber(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body = body[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(body, base)
	if !ok {
		return nil, fmt.Errorf("%w: failed to parse number %q", ErrUnexpectedStack, s)
	}
	if neg {
		v.Neg(v)
	}
	if v.BitLen() > 257 {
		return nil, fmt.Errorf("%w: number %q exceeds 257 bits", ErrMalformedBoc, s)
	}
	return v, nil
}

func cellFromBytesField(raw interface{}) (*boc.Cell, error) {
	switch v := raw.(type) {
	case string:
		return boc.DecodeBase64(v)
	case map[string]interface{}:
		b, ok := v["bytes"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: cell entry without bytes", ErrUnexpectedStack)
		}
		return boc.DecodeBase64(b)
	}
	return nil, fmt.Errorf("%w: cell entry of type %T", ErrUnexpectedStack, raw)
}

// FromPositional decodes api/v2 entries such as ["num", "0x1"] or
// ["cell", {"bytes": "..."}].
func FromPositional(entries []interface{}) ([]Value, error) {
	res := make([]Value, 0, len(entries))
	for _, entry := range entries {
		v, err := positionalEntry(entry)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func positionalEntry(entry interface{}) (Value, error) {
	val, ok := entry.([]interface{})
	if !ok {
		// tonlib entries may be mixed into api/v2 tuples
		if m, ok := entry.(map[string]interface{}); ok {
			return typedEntry(m)
		}
		return Value{}, fmt.Errorf("%w: failed to parse stack entry of type %T", ErrUnexpectedStack, entry)
	}
	if len(val) != 2 {
		return Value{}, fmt.Errorf("%w: stack entry of length %d", ErrUnexpectedStack, len(val))
	}
	tag, _ := val[0].(string)
	switch tag {
	case "num":
		s, ok := val[1].(string)
		if !ok {
			return Value{}, fmt.Errorf("%w: number of type %T", ErrUnexpectedStack, val[1])
		}
		n, err := parseNumber(s)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindNumber, num: n}, nil
	case "cell":
		c, err := cellFromBytesField(val[1])
		if err != nil {
			return Value{}, err
		}
		return Cell(c), nil
	case "slice":
		c, err := cellFromBytesField(val[1])
		if err != nil {
			return Value{}, err
		}
		return Slice(c), nil
	case "tuple", "list":
		obj, _ := val[1].(map[string]interface{})
		elements, _ := obj["elements"].([]interface{})
		items, err := FromPositional(elements)
		if err != nil {
			return Value{}, err
		}
		return Tuple(items...), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported stack entry type: %v", ErrUnexpectedStack, val[0])
}

// FromTyped decodes tonlib entries such as {"@type": "tvm.stackEntryNumber", ...}.
func FromTyped(entries []interface{}) ([]Value, error) {
	res := make([]Value, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: failed to parse stack entry of type %s", ErrUnexpectedStack, reflect.TypeOf(entry))
		}
		v, err := typedEntry(m)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func typedEntry(val map[string]interface{}) (Value, error) {
	tag, _ := val["@type"].(string)
	switch tag {
	case "tvm.stackEntryNumber":
		obj, _ := val["number"].(map[string]interface{})
		s, ok := obj["number"].(string)
		if !ok {
			return Value{}, fmt.Errorf("%w: unsupported type for number: %T", ErrUnexpectedStack, obj["number"])
		}
		n, err := parseNumber(s)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindNumber, num: n}, nil
	case "tvm.stackEntryCell":
		c, err := cellFromBytesField(val["cell"])
		if err != nil {
			return Value{}, err
		}
		return Cell(c), nil
	case "tvm.stackEntrySlice":
		c, err := cellFromBytesField(val["slice"])
		if err != nil {
			return Value{}, err
		}
		return Slice(c), nil
	case "tvm.stackEntryTuple", "tvm.stackEntryList":
		key := "tuple"
		if tag == "tvm.stackEntryList" {
			key = "list"
		}
		obj, _ := val[key].(map[string]interface{})
		elements, _ := obj["elements"].([]interface{})
		items, err := FromTyped(elements)
		if err != nil {
			return Value{}, err
		}
		return Tuple(items...), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported stack entry type: %s", ErrUnexpectedStack, tag)
}

// GraphQLEntry is the dton representation of a stack slot.
type GraphQLEntry struct {
	ValueType string `json:"value_type"`
	Value     string `json:"value"`
}

func FromGraphQL(entries []GraphQLEntry) ([]Value, error) {
	res := make([]Value, 0, len(entries))
	for _, e := range entries {
		switch e.ValueType {
		case "num", "int", "number":
			n, err := parseNumber(e.Value)
			if err != nil {
				return nil, err
			}
			res = append(res, Value{kind: KindNumber, num: n})
		case "cell":
			c, err := boc.DecodeBase64(e.Value)
			if err != nil {
				return nil, err
			}
			res = append(res, Cell(c))
		case "slice":
			c, err := boc.DecodeBase64(e.Value)
			if err != nil {
				return nil, err
			}
			res = append(res, Slice(c))
		default:
			return nil, fmt.Errorf("%w: unsupported value type %q", ErrUnexpectedStack, e.ValueType)
		}
	}
	return res, nil
}

// FromTonutilsStack converts the result of ton.ExecutionResult.AsTuple. TVM null
// becomes an empty tuple.
func FromTonutilsStack(entries []any) ([]Value, error) {
	res := make([]Value, 0, len(entries))
	for _, entry := range entries {
		var v Value
		switch e := entry.(type) {
		case nil:
			v = Tuple()
		case *big.Int:
			v = Number(e)
		case *cell.Cell:
			c, err := boc.FromCell(e)
			if err != nil {
				return nil, err
			}
			v = Cell(c)
		case *cell.Slice:
			tc, err := e.ToCell()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedBoc, err)
			}
			c, err := boc.FromCell(tc)
			if err != nil {
				return nil, err
			}
			v = Slice(c)
		case []any:
			items, err := FromTonutilsStack(e)
			if err != nil {
				return nil, err
			}
			v = Tuple(items...)
		default:
			return nil, fmt.Errorf("%w: tonutils entry of type %T", ErrUnexpectedStack, entry)
		}
		res = append(res, v)
	}
	return res, nil
}

// TonapiEntry is a stack slot as tonapi reports it. Cells are hex encoded.
type TonapiEntry struct {
	Type  string        `json:"type"`
	Num   string        `json:"num,omitempty"`
	Cell  string        `json:"cell,omitempty"`
	Slice string        `json:"slice,omitempty"`
	Tuple []TonapiEntry `json:"tuple,omitempty"`
}

func decodeBocText(s string) (*boc.Cell, error) {
	if _, err := hex.DecodeString(s); err == nil {
		return boc.DecodeHex(s)
	}
	return boc.DecodeBase64(s)
}

func FromTonapi(entries []TonapiEntry) ([]Value, error) {
	res := make([]Value, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case "num":
			n, err := parseNumber(e.Num)
			if err != nil {
				return nil, err
			}
			res = append(res, Value{kind: KindNumber, num: n})
		case "cell":
			c, err := decodeBocText(e.Cell)
			if err != nil {
				return nil, err
			}
			res = append(res, Cell(c))
		case "slice":
			c, err := decodeBocText(e.Slice)
			if err != nil {
				return nil, err
			}
			res = append(res, Slice(c))
		case "tuple":
			items, err := FromTonapi(e.Tuple)
			if err != nil {
				return nil, err
			}
			res = append(res, Tuple(items...))
		case "null":
			res = append(res, Tuple())
		default:
			return nil, fmt.Errorf("%w: unsupported stack entry type: %s", ErrUnexpectedStack, e.Type)
		}
	}
	return res, nil
}

// TonapiArg is a typed get-method argument for tonapi.
type TonapiArg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func ToTonapi(values []Value) ([]TonapiArg, error) {
	res := []TonapiArg{}
	for _, v := range values {
		switch v.kind {
		case KindNumber:
			res = append(res, TonapiArg{Type: "int257", Value: v.num.String()})
		case KindCell:
			b64, err := cellBase64(v.cell)
			if err != nil {
				return nil, err
			}
			res = append(res, TonapiArg{Type: "cell_boc_base64", Value: b64})
		case KindSlice:
			data, err := v.cell.ToBOC()
			if err != nil {
				return nil, err
			}
			res = append(res, TonapiArg{Type: "slice_boc_hex", Value: hex.EncodeToString(data)})
		default:
			return nil, fmt.Errorf("%w: unsupported stack parameter type: %s", ErrUnsupportedOperation, v.kind)
		}
	}
	return res, nil
}

func cellBase64(c *boc.Cell) (string, error) {
	data, err := c.ToBOC()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ToPositional encodes get-method arguments for api/v2 runGetMethod.
func ToPositional(values []Value) ([][]interface{}, error) {
	res := [][]interface{}{}
	for _, v := range values {
		switch v.kind {
		case KindNumber:
			res = append(res, []interface{}{"num", v.num.String()})
		case KindCell, KindSlice:
			b64, err := cellBase64(v.cell)
			if err != nil {
				return nil, err
			}
			tag := "tvm.Cell"
			if v.kind == KindSlice {
				tag = "tvm.Slice"
			}
			res = append(res, []interface{}{tag, b64})
		default:
			return nil, fmt.Errorf("%w: unsupported stack parameter type: %s", ErrUnsupportedOperation, v.kind)
		}
	}
	return res, nil
}

func ToGraphQL(values []Value) ([]GraphQLEntry, error) {
	res := []GraphQLEntry{}
	for _, v := range values {
		switch v.kind {
		case KindNumber:
			res = append(res, GraphQLEntry{ValueType: "num", Value: v.num.String()})
		case KindCell, KindSlice:
			b64, err := cellBase64(v.cell)
			if err != nil {
				return nil, err
			}
			res = append(res, GraphQLEntry{ValueType: v.kind.String(), Value: b64})
		default:
			return nil, fmt.Errorf("%w: unsupported stack parameter type: %s", ErrUnsupportedOperation, v.kind)
		}
	}
	return res, nil
}

// ToTonutils encodes get-method arguments for ton.APIClient.RunGetMethod.
func ToTonutils(values []Value) ([]any, error) {
	res := make([]any, 0, len(values))
	for _, v := range values {
		switch v.kind {
		case KindNumber:
			res = append(res, new(big.Int).Set(v.num))
		case KindCell:
			c, err := v.cell.ToTonutils()
			if err != nil {
				return nil, err
			}
			res = append(res, c)
		case KindSlice:
			c, err := v.cell.ToTonutils()
			if err != nil {
				return nil, err
			}
			res = append(res, c.BeginParse())
		case KindTuple:
			items, err := ToTonutils(v.tuple)
			if err != nil {
				return nil, err
			}
			res = append(res, items)
		}
	}
	return res, nil
}

// AddressSlice wraps an address into a slice argument.
func AddressSlice(addr Address) (Value, error) {
	tc := cell.BeginCell().MustStoreAddr(addr.ToTonutils()).EndCell()
	c, err := boc.FromCell(tc)
	if err != nil {
		return Value{}, err
	}
	return Slice(c), nil
}
