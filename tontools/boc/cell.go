package boc

import (
	"fmt"

	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Cell is an immutable decoded cell. Data bits are packed most significant
// bit first and any padding past BitsSize is zero.
type Cell struct {
	data   []byte
	bits   int
	refs   []*Cell
	exotic bool
	level  byte
}

func (c *Cell) BitsSize() int {
	return c.bits
}

func (c *Cell) RefsNum() int {
	return len(c.refs)
}

func (c *Cell) IsExotic() bool {
	return c.exotic
}

func (c *Cell) Ref(i int) (*Cell, error) {
	if i < 0 || i >= len(c.refs) {
		return nil, fmt.Errorf("%w: ref %d of %d", ErrNoSuchRef, i, len(c.refs))
	}
	return c.refs[i], nil
}

// Bytes returns the whole bytes of the cell data, dropping a trailing
// partial byte.
func (c *Cell) Bytes() []byte {
	res := make([]byte, c.bits/8)
	copy(res, c.data)
	return res
}

func (c *Cell) BeginParse() *Slice {
	return &Slice{cell: c}
}

// ToTonutils rebuilds the cell tree with the tonutils builder so it can be
// stored into outgoing messages.
func (c *Cell) ToTonutils() (*cell.Cell, error) {
	if c.exotic {
		return nil, fmt.Errorf("%w: exotic cell conversion", ErrUnsupportedOperation)
	}
	b := cell.BeginCell()
	if err := b.StoreSlice(c.data, uint(c.bits)); err != nil {
		return nil, err
	}
	for _, ref := range c.refs {
		rc, err := ref.ToTonutils()
		if err != nil {
			return nil, err
		}
		if err := b.StoreRef(rc); err != nil {
			return nil, err
		}
	}
	return b.EndCell(), nil
}

func (c *Cell) ToBOC() ([]byte, error) {
	tc, err := c.ToTonutils()
	if err != nil {
		return nil, err
	}
	return tc.ToBOC(), nil
}

func FromCell(c *cell.Cell) (*Cell, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil cell", ErrMalformedBoc)
	}
	return Decode(c.ToBOC())
}
