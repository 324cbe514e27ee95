package tonapi

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	"github.com/toncenter/ton-tools-go/tontools/history"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
)

type message struct {
	CreatedLt   backend.Number  `json:"created_lt"`
	Source      *accountAddress `json:"source"`
	Destination *accountAddress `json:"destination"`
	Value       backend.Number  `json:"value"`
	MsgData     string          `json:"msg_data"`
}

type transaction struct {
	Utime   uint32         `json:"utime"`
	Fee     backend.Number `json:"fee"`
	Data    string         `json:"data"`
	Hash    string         `json:"hash"`
	Lt      backend.Number `json:"lt"`
	InMsg   *message       `json:"in_msg"`
	OutMsgs []*message     `json:"out_msgs"`
}

type transactions struct {
	Transactions []transaction `json:"transactions"`
}

func optionalAddress(a *accountAddress) (*Address, error) {
	if a == nil {
		return nil, nil
	}
	return ParseAddressOrNone(a.Address)
}

func (m *message) convert() (*Message, error) {
	var msg Message
	var err error
	if msg.Source, err = optionalAddress(m.Source); err != nil {
		return nil, err
	}
	if msg.Destination, err = optionalAddress(m.Destination); err != nil {
		return nil, err
	}
	if msg.Value, err = m.Value.BigInt(); err != nil {
		return nil, err
	}
	if len(m.CreatedLt) > 0 {
		if msg.CreatedLt, err = strconv.ParseUint(string(m.CreatedLt), 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse created_lt: %w", err)
		}
	}
	if len(m.MsgData) > 0 {
		body, err := boc.DecodeBase64(m.MsgData)
		if err != nil {
			return nil, fmt.Errorf("message body: %w", err)
		}
		if err := parse.DescribeBody(&msg, body); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

func (t *transaction) convert() (*Transaction, error) {
	lt, err := strconv.ParseUint(string(t.Lt), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lt: %w", err)
	}
	tx := &Transaction{
		Utime: t.Utime,
		Lt:    lt,
		Hash:  NormalizeHash(t.Hash),
	}
	if tx.Fee, err = t.Fee.BigInt(); err != nil {
		return nil, err
	}
	if len(t.Data) > 0 {
		if tx.Data, err = hex.DecodeString(t.Data); err != nil {
			if tx.Data, err = base64.StdEncoding.DecodeString(t.Data); err != nil {
				return nil, fmt.Errorf("%w: transaction data: %v", ErrMalformedBoc, err)
			}
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
	for _, m := range t.OutMsgs {
		msg, err := m.convert()
		if err != nil {
			return nil, err
		}
		tx.OutMsgs = append(tx.OutMsgs, msg)
	}
	return tx, nil
}

func (c *Client) fetchTransactions(ctx context.Context, addr Address, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
	params := url.Values{}
	params.Add("account", addr.Raw())
	params.Add("limit", strconv.Itoa(pageSize))
	params.Add("minLt", "0")
	if cursor != nil {
		params.Add("maxLt", strconv.FormatUint(cursor.Lt, 10))
	}
	var raw transactions
	if err := c.call(ctx, fiber.MethodGet, "v1/blockchain/getTransactions", params, nil, &raw); err != nil {
		return nil, err
	}
	res := make([]*Transaction, 0, len(raw.Transactions))
	for i := range raw.Transactions {
		tx, err := raw.Transactions[i].convert()
		if err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	return res, nil
}

// GetTransactions returns up to limit transactions, newest first, paging
// down by maxLt.
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
