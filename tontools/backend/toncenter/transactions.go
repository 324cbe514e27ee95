package toncenter

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	"github.com/toncenter/ton-tools-go/tontools/history"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
)

type v2MsgData struct {
	Type string `json:"@type"`
	Body string `json:"body"`
	Text string `json:"text"`
}

type v2Message struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Value       string    `json:"value"`
	CreatedLt   string    `json:"created_lt"`
	MsgData     v2MsgData `json:"msg_data"`
}

type v2TransactionId struct {
	Lt   string `json:"lt"`
	Hash string `json:"hash"`
}

type v2Transaction struct {
	Utime         uint32          `json:"utime"`
	Data          string          `json:"data"`
	TransactionId v2TransactionId `json:"transaction_id"`
	Fee           string          `json:"fee"`
	InMsg         *v2Message      `json:"in_msg"`
	OutMsgs       []v2Message     `json:"out_msgs"`
}

func parseLt(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func (m *v2Message) convert() (*Message, error) {
	var msg Message
	var err error
	if msg.Source, err = ParseAddressOrNone(m.Source); err != nil {
		return nil, err
	}
	if msg.Destination, err = ParseAddressOrNone(m.Destination); err != nil {
		return nil, err
	}
	if msg.Value, err = ParseBigInt(m.Value); err != nil {
		return nil, err
	}
	if msg.CreatedLt, err = parseLt(m.CreatedLt); err != nil {
		return nil, fmt.Errorf("failed to parse created_lt: %w", err)
	}

	switch {
	case len(m.MsgData.Text) > 0:
		text := m.MsgData.Text
		if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
			text = string(decoded)
		}
		text = CleanComment(text)
		op := OpcodeType(0)
		msg.Opcode = &op
		msg.Comment = &text
	case len(m.MsgData.Body) > 0:
		body, err := boc.DecodeBase64(m.MsgData.Body)
		if err != nil {
			return nil, fmt.Errorf("message body: %w", err)
		}
		if err := parse.DescribeBody(&msg, body); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

func (t *v2Transaction) convert() (*Transaction, error) {
	lt, err := parseLt(t.TransactionId.Lt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lt: %w", err)
	}
	tx := &Transaction{
		Utime: t.Utime,
		Lt:    lt,
		Hash:  NormalizeHash(t.TransactionId.Hash),
	}
	if tx.Fee, err = ParseBigInt(t.Fee); err != nil {
		return nil, err
	}
	if len(t.Data) > 0 {
		if tx.Data, err = base64.StdEncoding.DecodeString(t.Data); err != nil {
			return nil, fmt.Errorf("%w: transaction data: %v", ErrMalformedBoc, err)
		}
	}
	if tx.Success, err = parse.SuccessFromData(t.Data); err != nil {
		return nil, fmt.Errorf("transaction %d: %w", lt, err)
	}
	if t.InMsg != nil {
		if tx.InMsg, err = t.InMsg.convert(); err != nil {
			return nil, err
		}
	}
	for i := range t.OutMsgs {
		msg, err := t.OutMsgs[i].convert()
		if err != nil {
			return nil, err
		}
		tx.OutMsgs = append(tx.OutMsgs, msg)
	}
	return tx, nil
}

func (c *Client) fetchTransactions(ctx context.Context, addr Address, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
	params := url.Values{}
	params.Add("address", addr.Raw())
	params.Add("limit", strconv.Itoa(pageSize))
	params.Add("archival", "true")
	if cursor != nil {
		params.Add("lt", strconv.FormatUint(cursor.Lt, 10))
		params.Add("hash", string(cursor.Hash))
	}
	var raw []v2Transaction
	if err := c.call(ctx, fiber.MethodGet, "getTransactions", params, nil, &raw); err != nil {
		return nil, err
	}
	res := make([]*Transaction, 0, len(raw))
	for i := range raw {
		tx, err := raw[i].convert()
		if err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	return res, nil
}

// GetTransactions returns up to limit transactions, newest first. Each page
// starts with the last transaction of the previous one.
func (c *Client) GetTransactions(ctx context.Context, addr Address, limit, pageSize int) ([]*Transaction, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	} else if pageSize < history.MinAfterLastPageSize {
		pageSize = history.MinAfterLastPageSize
	}
	p := history.Paginator{
		Fetch: func(ctx context.Context, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
			return c.fetchTransactions(ctx, addr, cursor, pageSize)
		},
		Advance:  history.AfterLast,
		PageSize: pageSize,
		Limit:    limit,
	}
	return p.Collect(ctx)
}
