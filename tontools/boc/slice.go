package boc

import (
	"fmt"
	"math/big"
	"strings"

	. "github.com/toncenter/ton-tools-go/tontools/models"
)

// Slice is a read cursor over a cell. A failed read leaves the cursor
// where it was.
type Slice struct {
	cell   *Cell
	bitPos int
	refPos int
}

func (s *Slice) RemainingBits() int {
	return s.cell.bits - s.bitPos
}

func (s *Slice) RemainingRefs() int {
	return len(s.cell.refs) - s.refPos
}

func (s *Slice) bitAt(i int) uint {
	return uint(s.cell.data[i/8]>>(7-uint(i%8))) & 1
}

func (s *Slice) need(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative width %d", ErrMalformedBoc, n)
	}
	if n > s.RemainingBits() {
		return fmt.Errorf("%w: need %d bits, have %d", ErrCellUnderflow, n, s.RemainingBits())
	}
	return nil
}

func (s *Slice) Skip(n int) error {
	if err := s.need(n); err != nil {
		return err
	}
	s.bitPos += n
	return nil
}

func (s *Slice) ReadUint(n int) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("%w: uint width %d", ErrMalformedBoc, n)
	}
	if err := s.need(n); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | uint64(s.bitAt(s.bitPos+i))
	}
	s.bitPos += n
	return v, nil
}

func (s *Slice) ReadBigUint(n int) (*big.Int, error) {
	if n > 256 {
		return nil, fmt.Errorf("%w: uint width %d", ErrMalformedBoc, n)
	}
	if err := s.need(n); err != nil {
		return nil, err
	}
	v := new(big.Int)
	for i := 0; i < n; i++ {
		v.Lsh(v, 1)
		if s.bitAt(s.bitPos+i) == 1 {
			v.SetBit(v, 0, 1)
		}
	}
	s.bitPos += n
	return v, nil
}

// ReadInt reads a two's complement signed integer of n bits.
func (s *Slice) ReadInt(n int) (*big.Int, error) {
	if n > 257 {
		return nil, fmt.Errorf("%w: int width %d", ErrMalformedBoc, n)
	}
	if n == 0 {
		return new(big.Int), nil
	}
	if err := s.need(n); err != nil {
		return nil, err
	}
	v := new(big.Int)
	for i := 0; i < n; i++ {
		v.Lsh(v, 1)
		if s.bitAt(s.bitPos+i) == 1 {
			v.SetBit(v, 0, 1)
		}
	}
	if s.bitAt(s.bitPos) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(n)))
	}
	s.bitPos += n
	return v, nil
}

func (s *Slice) ReadBool() (bool, error) {
	v, err := s.ReadUint(1)
	return v == 1, err
}

func (s *Slice) ReadBytes(n int) ([]byte, error) {
	if err := s.need(n * 8); err != nil {
		return nil, err
	}
	res := make([]byte, n)
	for i := range res {
		var b byte
		for j := 0; j < 8; j++ {
			b = b<<1 | byte(s.bitAt(s.bitPos+i*8+j))
		}
		res[i] = b
	}
	s.bitPos += n * 8
	return res, nil
}

// ReadCoins reads a VarUInteger 16 amount.
func (s *Slice) ReadCoins() (*big.Int, error) {
	cp := *s
	l, err := cp.ReadUint(4)
	if err != nil {
		return nil, err
	}
	v, err := cp.ReadBigUint(int(l) * 8)
	if err != nil {
		return nil, err
	}
	*s = cp
	return v, nil
}

func (s *Slice) ReadRef() (*Cell, error) {
	if s.RemainingRefs() == 0 {
		return nil, fmt.Errorf("%w: all %d refs consumed", ErrNoSuchRef, len(s.cell.refs))
	}
	c := s.cell.refs[s.refPos]
	s.refPos++
	return c, nil
}

// ReadAddress reads an addr_std. Any other tag yields ErrNotAnAddress.
func (s *Slice) ReadAddress() (Address, error) {
	cp := *s
	tag, err := cp.ReadUint(2)
	if err != nil {
		return Address{}, err
	}
	if tag != 0b10 {
		return Address{}, fmt.Errorf("%w: tag %02b", ErrNotAnAddress, tag)
	}
	anycast, err := cp.ReadBool()
	if err != nil {
		return Address{}, err
	}
	if anycast {
		depth, err := cp.ReadUint(5)
		if err != nil {
			return Address{}, err
		}
		if err = cp.Skip(int(depth)); err != nil {
			return Address{}, err
		}
	}
	wc, err := cp.ReadInt(8)
	if err != nil {
		return Address{}, err
	}
	hash, err := cp.ReadBytes(32)
	if err != nil {
		return Address{}, err
	}
	addr, err := NewAddress(int32(wc.Int64()), hash)
	if err != nil {
		return Address{}, err
	}
	*s = cp
	return addr, nil
}

// ReadAddressOrNone is ReadAddress that also accepts addr_none and returns nil for it.
func (s *Slice) ReadAddressOrNone() (*Address, error) {
	cp := *s
	tag, err := cp.ReadUint(2)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		*s = cp
		return nil, nil
	}
	addr, err := s.ReadAddress()
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ReadSnake reads the remaining whole bytes and continues through the
// chain of single child cells.
func (s *Slice) ReadSnake() ([]byte, error) {
	var res []byte
	data, err := s.ReadBytes(s.RemainingBits() / 8)
	if err != nil {
		return nil, err
	}
	res = append(res, data...)
	c := s.cell
	if s.RemainingRefs() != 1 {
		return res, nil
	}
	c = c.refs[s.refPos]
	for {
		res = append(res, c.Bytes()...)
		if len(c.refs) != 1 {
			return res, nil
		}
		c = c.refs[0]
	}
}

// ContentURL extracts the text stored in an off-chain content cell. Any
// control prefix up to the last 0x00 or 0x01 byte is dropped, as are bytes
// that are not valid UTF-8.
func ContentURL(c *Cell) (string, error) {
	data, err := c.BeginParse().ReadSnake()
	if err != nil {
		return "", err
	}
	s := strings.ToValidUTF8(string(data), "")
	if i := strings.LastIndexAny(s, "\x00\x01"); i >= 0 {
		s = s[i+1:]
	}
	return s, nil
}
