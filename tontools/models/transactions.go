package models

import (
	"fmt"
	"strings"
)

type Message struct {
	CreatedLt   uint64      `json:"created_lt,string"`
	Source      *Address    `json:"source"`
	Destination *Address    `json:"destination"`
	Value       BigInt      `json:"value"`
	Opcode      *OpcodeType `json:"opcode"`
	Body        []byte      `json:"body"`
	Comment     *string     `json:"comment"`
}

// Type returns the message type derived from its opcode.
func (m *Message) Type() string {
	if m.Opcode == nil {
		return ""
	}
	return m.Opcode.Name()
}

type Transaction struct {
	Utime    uint32     `json:"utime"`
	Lt       uint64     `json:"lt,string"`
	Hash     HashType   `json:"hash"`
	Fee      BigInt     `json:"fee"`
	Success  bool       `json:"success"`
	InMsg    *Message   `json:"in_msg"`
	OutMsgs  []*Message `json:"out_msgs"`
	Data     []byte     `json:"data,omitempty"`
	PrevLt   uint64     `json:"-"`
	PrevHash []byte     `json:"-"`
}

// Key identifies a transaction for deduplication.
func (t *Transaction) Key() string {
	return fmt.Sprintf("%d:%s", t.Lt, t.Hash)
}

// Direction is "in" when the transaction has no outgoing messages.
func (t *Transaction) Direction() string {
	if len(t.OutMsgs) == 0 {
		return "in"
	}
	return "out"
}

type TransactionSummary struct {
	Type    string   `json:"type"`
	Utime   uint32   `json:"utime"`
	Status  bool     `json:"status"`
	Hash    HashType `json:"hash"`
	Value   []string `json:"value"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Comment []string `json:"comment"`
}

// Summary returns the user facing view of a transaction. Incoming transactions
// describe the in message, outgoing ones describe every out message.
func (t *Transaction) Summary(r Rendering) TransactionSummary {
	s := TransactionSummary{
		Type:   t.Direction(),
		Utime:  t.Utime,
		Status: t.Success,
		Hash:   t.Hash,
	}
	msgs := t.OutMsgs
	if s.Type == "in" {
		if t.InMsg == nil {
			return s
		}
		msgs = []*Message{t.InMsg}
	}
	if len(msgs) > 0 && msgs[0].Source != nil {
		s.From = msgs[0].Source.Format(r)
	}
	for _, m := range msgs {
		s.Value = append(s.Value, m.Value.Shift(9).String())
		to := ""
		if m.Destination != nil {
			to = m.Destination.Format(r)
		}
		s.To = append(s.To, to)
		comment := ""
		if m.Comment != nil {
			comment = *m.Comment
		}
		s.Comment = append(s.Comment, comment)
	}
	return s
}

// CleanComment strips the control prefix that some backends leave in text comments.
func CleanComment(s string) string {
	if i := strings.LastIndexByte(s, 0); i >= 0 {
		s = s[i+1:]
	}
	return s
}
