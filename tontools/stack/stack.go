package stack

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
)

type Kind int

const (
	KindNumber Kind = iota
	KindCell
	KindSlice
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "num"
	case KindCell:
		return "cell"
	case KindSlice:
		return "slice"
	case KindTuple:
		return "tuple"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a single slot of a get-method stack.
type Value struct {
	kind  Kind
	num   *big.Int
	cell  *boc.Cell
	tuple []Value
}

func Number(v *big.Int) Value {
	return Value{kind: KindNumber, num: new(big.Int).Set(v)}
}

func Int64(v int64) Value {
	return Value{kind: KindNumber, num: big.NewInt(v)}
}

func Cell(c *boc.Cell) Value {
	return Value{kind: KindCell, cell: c}
}

func Slice(c *boc.Cell) Value {
	return Value{kind: KindSlice, cell: c}
}

func Tuple(items ...Value) Value {
	return Value{kind: KindTuple, tuple: items}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedStack, want, v.kind)
}

func (v Value) Int() (*big.Int, error) {
	if v.kind != KindNumber {
		return nil, v.mismatch(KindNumber)
	}
	return new(big.Int).Set(v.num), nil
}

// Cell returns the cell of a Cell or Slice entry.
func (v Value) Cell() (*boc.Cell, error) {
	if v.kind != KindCell && v.kind != KindSlice {
		return nil, v.mismatch(KindCell)
	}
	return v.cell, nil
}

// Slice returns a fresh cursor over a Cell or Slice entry.
func (v Value) Slice() (*boc.Slice, error) {
	c, err := v.Cell()
	if err != nil {
		return nil, err
	}
	return c.BeginParse(), nil
}

func (v Value) Tuple() ([]Value, error) {
	if v.kind != KindTuple {
		return nil, v.mismatch(KindTuple)
	}
	return v.tuple, nil
}

// Address reads an addr_std from a Cell or Slice entry.
func (v Value) Address() (Address, error) {
	s, err := v.Slice()
	if err != nil {
		return Address{}, err
	}
	return s.ReadAddress()
}

// AddressOrNone is Address that returns nil for addr_none.
func (v Value) AddressOrNone() (*Address, error) {
	s, err := v.Slice()
	if err != nil {
		return nil, err
	}
	return s.ReadAddressOrNone()
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return v.num.String()
	case KindTuple:
		return fmt.Sprintf("tuple(%d)", len(v.tuple))
	}
	return fmt.Sprintf("%s(%d bits)", v.kind, v.cell.BitsSize())
}

func (v Value) positional() (interface{}, error) {
	switch v.kind {
	case KindNumber:
		return []interface{}{"num", v.num.String()}, nil
	case KindCell, KindSlice:
		b64, err := cellBase64(v.cell)
		if err != nil {
			return nil, err
		}
		return []interface{}{v.kind.String(), map[string]string{"bytes": b64}}, nil
	}
	elements := make([]interface{}, 0, len(v.tuple))
	for _, item := range v.tuple {
		e, err := item.positional()
		if err != nil {
			return nil, err
		}
		elements = append(elements, e)
	}
	return []interface{}{"tuple", map[string]interface{}{"elements": elements}}, nil
}

// MarshalJSON writes the entry in the shape FromPositional reads.
func (v Value) MarshalJSON() ([]byte, error) {
	p, err := v.positional()
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
