package parse

import (
	"fmt"
	"unicode/utf8"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// MaxBodyBitsForOpcode is the largest body, rounded up to whole bytes, that
// still takes a prepended 32-bit op code.
const MaxBodyBitsForOpcode = 991

func byteAligned(bits int) int {
	return (bits + 7) / 8 * 8
}

// ReassembleBody restores a body whose leading op code was reported
// separately by the backend. It returns the rebuilt cell and true, or the
// original body and false when the body has no room for the op code.
func ReassembleBody(op OpcodeType, body *boc.Cell) (*boc.Cell, bool, error) {
	if byteAligned(body.BitsSize()) > MaxBodyBitsForOpcode {
		return body, false, nil
	}
	orig, err := body.ToTonutils()
	if err != nil {
		return nil, false, err
	}
	b := cell.BeginCell()
	if err := b.StoreUInt(uint64(op), 32); err != nil {
		return nil, false, err
	}
	if err := b.StoreBuilder(orig.ToBuilder()); err != nil {
		return nil, false, fmt.Errorf("failed to prepend op code: %w", err)
	}
	res, err := boc.FromCell(b.EndCell())
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// MessageOpcode reads the leading 32-bit op code of a body. Bodies shorter
// than 32 bits have none.
func MessageOpcode(body *boc.Cell) *OpcodeType {
	if body == nil || body.BitsSize() < 32 {
		return nil
	}
	v, err := body.BeginParse().ReadUint(32)
	if err != nil {
		return nil
	}
	op := OpcodeType(v)
	return &op
}

// TextComment decodes a text comment body (op code 0 followed by snake text).
func TextComment(body *boc.Cell) (string, bool) {
	if op := MessageOpcode(body); op == nil || *op != 0 {
		return "", false
	}
	s := body.BeginParse()
	if err := s.Skip(32); err != nil {
		return "", false
	}
	data, err := s.ReadSnake()
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// DescribeBody stores body into msg together with its op code and text
// comment.
func DescribeBody(msg *Message, body *boc.Cell) error {
	if body == nil {
		return nil
	}
	data, err := body.ToBOC()
	if err != nil {
		return err
	}
	msg.Body = data
	msg.Opcode = MessageOpcode(body)
	if text, ok := TextComment(body); ok {
		text = CleanComment(text)
		msg.Comment = &text
	}
	return nil
}
