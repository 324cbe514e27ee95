package lite

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// stdAddress converts standard addresses and drops none and external ones.
func stdAddress(a *address.Address) (*Address, error) {
	if a == nil || a.Type() != address.StdAddress {
		return nil, nil
	}
	res, err := FromTonutils(a)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func convertMessage(m *tlb.Message) (*Message, error) {
	var src, dst *address.Address
	var body *cell.Cell
	msg := &Message{}
	switch m.MsgType {
	case tlb.MsgTypeInternal:
		in := m.AsInternal()
		src, dst, body = in.SrcAddr, in.DstAddr, in.Body
		msg.CreatedLt = in.CreatedLT
		msg.Value = NewBigInt(in.Amount.Nano())
	case tlb.MsgTypeExternalIn:
		in := m.AsExternalIn()
		dst, body = in.DstAddr, in.Body
	case tlb.MsgTypeExternalOut:
		out := m.AsExternalOut()
		src, body = out.SrcAddr, out.Body
		msg.CreatedLt = out.CreatedLT
	default:
		return nil, fmt.Errorf("unknown message type %s", m.MsgType)
	}
	var err error
	if msg.Source, err = stdAddress(src); err != nil {
		return nil, err
	}
	if msg.Destination, err = stdAddress(dst); err != nil {
		return nil, err
	}
	if body == nil || (body.BitsSize() == 0 && body.RefsNum() == 0) {
		return msg, nil
	}
	decoded, err := boc.FromCell(body)
	if err != nil {
		return nil, fmt.Errorf("message body: %w", err)
	}
	return msg, parse.DescribeBody(msg, decoded)
}

func convertTransaction(tx *tlb.Transaction) (*Transaction, error) {
	fee := tx.TotalFees.Coins.Nano()
	if fee == nil {
		fee = new(big.Int)
	}
	res := &Transaction{
		Utime:    tx.Now,
		Lt:       tx.LT,
		Hash:     HashType(hex.EncodeToString(tx.Hash)),
		Fee:      NewBigInt(fee),
		Success:  parse.TlbTransactionSuccess(tx),
		PrevLt:   tx.PrevTxLT,
		PrevHash: tx.PrevTxHash,
	}
	var err error
	if tx.IO.In != nil {
		if res.InMsg, err = convertMessage(tx.IO.In); err != nil {
			return nil, err
		}
	}
	if tx.IO.Out != nil {
		out, err := tx.IO.Out.ToSlice()
		if err != nil {
			return nil, fmt.Errorf("%w: out messages: %v", ErrMalformedBoc, err)
		}
		for i := range out {
			msg, err := convertMessage(&out[i])
			if err != nil {
				return nil, err
			}
			res.OutMsgs = append(res.OutMsgs, msg)
		}
	}
	return res, nil
}
