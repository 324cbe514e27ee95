package boc

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"math/bits"
	"strings"

	. "github.com/toncenter/ton-tools-go/tontools/models"
)

const MaxCellBits = 1023

var (
	magicGeneric    = []byte{0xb5, 0xee, 0x9c, 0x72}
	magicIndexed    = []byte{0x68, 0xff, 0x65, 0xf3}
	magicIndexedCrc = []byte{0xac, 0xc7, 0x88, 0xb5}

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

type reader struct {
	buf []byte
	pos int
}

func (r *reader) take(n uint64) ([]byte, error) {
	if n > uint64(len(r.buf)-r.pos) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCellUnderflow, n, r.pos, len(r.buf)-r.pos)
	}
	res := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return res, nil
}

func (r *reader) uint(size int) (uint64, error) {
	b, err := r.take(uint64(size))
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

type rawCell struct {
	data   []byte
	bits   int
	refs   []uint64
	exotic bool
	level  byte
}

// Decode parses a serialized bag of cells and returns its first root.
func Decode(data []byte) (*Cell, error) {
	roots, err := DecodeAll(data)
	if err != nil {
		return nil, err
	}
	return roots[0], nil
}

func DecodeBase64(s string) (*Cell, error) {
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.URLEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("%w: bad base64: %v", ErrMalformedBoc, err)
		}
	}
	return Decode(data)
}

func DecodeHex(s string) (*Cell, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex: %v", ErrMalformedBoc, err)
	}
	return Decode(data)
}

// DecodeAll parses a serialized bag of cells and returns all of its roots.
func DecodeAll(data []byte) ([]*Cell, error) {
	r := &reader{buf: data}
	magic, err := r.take(4)
	if err != nil {
		return nil, err
	}

	var hasIdx, hasCrc, generic bool
	var refSize int
	switch {
	case bytes.Equal(magic, magicGeneric):
		flags, err := r.uint(1)
		if err != nil {
			return nil, err
		}
		generic = true
		hasIdx = flags&0x80 != 0
		hasCrc = flags&0x40 != 0
		refSize = int(flags & 0x07)
	case bytes.Equal(magic, magicIndexed), bytes.Equal(magic, magicIndexedCrc):
		size, err := r.uint(1)
		if err != nil {
			return nil, err
		}
		hasIdx = true
		hasCrc = bytes.Equal(magic, magicIndexedCrc)
		refSize = int(size)
	default:
		return nil, fmt.Errorf("%w: unknown magic %x", ErrMalformedBoc, magic)
	}
	if refSize < 1 || refSize > 4 {
		return nil, fmt.Errorf("%w: ref size %d", ErrMalformedBoc, refSize)
	}

	offSize, err := r.uint(1)
	if err != nil {
		return nil, err
	}
	if offSize < 1 || offSize > 8 {
		return nil, fmt.Errorf("%w: offset size %d", ErrMalformedBoc, offSize)
	}

	cellsNum, err := r.uint(refSize)
	if err != nil {
		return nil, err
	}
	rootsNum, err := r.uint(refSize)
	if err != nil {
		return nil, err
	}
	if _, err = r.uint(refSize); err != nil { // absent
		return nil, err
	}
	totSize, err := r.uint(int(offSize))
	if err != nil {
		return nil, err
	}
	if rootsNum == 0 || rootsNum > cellsNum {
		return nil, fmt.Errorf("%w: %d roots for %d cells", ErrMalformedBoc, rootsNum, cellsNum)
	}
	// every cell takes at least two descriptor bytes
	if cellsNum*2 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d cells declared in %d bytes", ErrCellUnderflow, cellsNum, len(data))
	}

	rootIdx := make([]uint64, 0, rootsNum)
	if generic {
		for i := uint64(0); i < rootsNum; i++ {
			idx, err := r.uint(refSize)
			if err != nil {
				return nil, err
			}
			if idx >= cellsNum {
				return nil, fmt.Errorf("%w: root index %d out of range", ErrMalformedBoc, idx)
			}
			rootIdx = append(rootIdx, idx)
		}
	} else {
		if rootsNum != 1 {
			return nil, fmt.Errorf("%w: indexed boc with %d roots", ErrMalformedBoc, rootsNum)
		}
		rootIdx = append(rootIdx, 0)
	}

	if hasIdx {
		if _, err = r.take(cellsNum * offSize); err != nil {
			return nil, err
		}
	}

	cellData, err := r.take(totSize)
	if err != nil {
		return nil, err
	}

	if hasCrc {
		end := r.pos
		sum, err := r.take(4)
		if err != nil {
			return nil, err
		}
		if crc32.Checksum(data[:end], castagnoli) != binary.LittleEndian.Uint32(sum) {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformedBoc)
		}
	}

	raws, err := parseCells(&reader{buf: cellData}, cellsNum, refSize)
	if err != nil {
		return nil, err
	}

	cells := make([]*Cell, cellsNum)
	for i := len(raws) - 1; i >= 0; i-- {
		rc := raws[i]
		c := &Cell{data: rc.data, bits: rc.bits, exotic: rc.exotic, level: rc.level}
		for _, ref := range rc.refs {
			c.refs = append(c.refs, cells[ref])
		}
		cells[i] = c
	}

	roots := make([]*Cell, 0, len(rootIdx))
	for _, idx := range rootIdx {
		roots = append(roots, cells[idx])
	}
	return roots, nil
}

func parseCells(r *reader, cellsNum uint64, refSize int) ([]rawCell, error) {
	raws := make([]rawCell, 0, cellsNum)
	for i := uint64(0); i < cellsNum; i++ {
		d1, err := r.uint(1)
		if err != nil {
			return nil, err
		}
		d2, err := r.uint(1)
		if err != nil {
			return nil, err
		}

		refsNum := int(d1 & 0x07)
		exotic := d1&0x08 != 0
		withHashes := d1&0x10 != 0
		levelMask := byte(d1 >> 5)
		if refsNum > 4 {
			return nil, fmt.Errorf("%w: cell %d has %d refs", ErrMalformedBoc, i, refsNum)
		}
		if withHashes {
			hashesNum := uint64(bits.OnesCount8(levelMask) + 1)
			if _, err = r.take(hashesNum * (32 + 2)); err != nil {
				return nil, err
			}
		}

		dataLen := (d2 + 1) / 2
		payload, err := r.take(dataLen)
		if err != nil {
			return nil, err
		}
		bitsNum := int(dataLen) * 8
		if d2%2 == 1 {
			last := payload[dataLen-1]
			if last == 0 {
				return nil, fmt.Errorf("%w: cell %d has no completion tag", ErrMalformedBoc, i)
			}
			bitsNum -= bits.TrailingZeros8(last) + 1
		}
		if bitsNum > MaxCellBits {
			return nil, fmt.Errorf("%w: cell %d has %d bits", ErrMalformedBoc, i, bitsNum)
		}

		rc := rawCell{
			data:   make([]byte, dataLen),
			bits:   bitsNum,
			exotic: exotic,
			level:  levelMask,
		}
		copy(rc.data, payload)
		if rem := bitsNum % 8; rem != 0 {
			rc.data[dataLen-1] &= byte(0xff << (8 - rem))
		} else if d2%2 == 1 {
			rc.data = rc.data[:bitsNum/8]
		}

		for j := 0; j < refsNum; j++ {
			ref, err := r.uint(refSize)
			if err != nil {
				return nil, err
			}
			if ref >= cellsNum || ref <= i {
				return nil, fmt.Errorf("%w: cell %d refers to %d", ErrMalformedBoc, i, ref)
			}
			rc.refs = append(rc.refs, ref)
		}
		raws = append(raws, rc)
	}
	return raws, nil
}
