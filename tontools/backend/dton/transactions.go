package dton

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	"github.com/toncenter/ton-tools-go/tontools/history"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/parse"
)

const transactionsQuery = `query get_transactions($address: String, $limit: Int, $page: Int) {
	transactions(address_friendly: $address, page_size: $limit, page: $page) {
		utime: gen_utime
		fee: total_fees_grams
		hash
		lt
		compute_ph_success
		action_ph_success

		in_msg_created_lt
		in_src_wc: in_msg_src_addr_workchain_id
		in_src_hex: in_msg_src_addr_address_hex
		in_dest_wc: in_msg_dest_addr_workchain_id
		in_dest_hex: in_msg_dest_addr_address_hex
		in_msg_value_grams
		in_msg_body
		in_msg_op_code

		outmsg_cnt
		out_msg_created_lt
		out_dest_wc: out_msg_dest_addr_workchain_id
		out_dest_hex: out_msg_dest_addr_address_hex
		out_msg_value_grams
		out_msg_body
		out_msg_op_code
	}
}`

// The dton clock runs at UTC+3 and gen_utime carries no zone.
var genUtimeZone = time.FixedZone("MSK", 3*60*60)

var genUtimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type transactionRow struct {
	Utime          string         `json:"utime"`
	Fee            backend.Number `json:"fee"`
	Hash           string         `json:"hash"`
	Lt             backend.Number `json:"lt"`
	ComputeSuccess backend.Number `json:"compute_ph_success"`
	ActionSuccess  backend.Number `json:"action_ph_success"`

	InCreatedLt backend.Number `json:"in_msg_created_lt"`
	InSrcWc     *int32         `json:"in_src_wc"`
	InSrcHex    *string        `json:"in_src_hex"`
	InDestWc    *int32         `json:"in_dest_wc"`
	InDestHex   *string        `json:"in_dest_hex"`
	InValue     backend.Number `json:"in_msg_value_grams"`
	InBody      *string        `json:"in_msg_body"`
	InOpcode    backend.Number `json:"in_msg_op_code"`

	OutCount     int              `json:"outmsg_cnt"`
	OutCreatedLt []backend.Number `json:"out_msg_created_lt"`
	OutDestWc    []*int32         `json:"out_dest_wc"`
	OutDestHex   []*string        `json:"out_dest_hex"`
	OutValue     []backend.Number `json:"out_msg_value_grams"`
	OutBody      []*string        `json:"out_msg_body"`
	OutOpcode    []backend.Number `json:"out_msg_op_code"`
}

func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}

func parseGenUtime(s string) (uint32, error) {
	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(v), nil
	}
	for _, layout := range genUtimeLayouts {
		if t, err := time.ParseInLocation(layout, s, genUtimeZone); err == nil {
			return uint32(t.Unix()), nil
		}
	}
	return 0, fmt.Errorf("failed to parse gen_utime %q", s)
}

func flag(n backend.Number) *bool {
	if n.IsEmpty() {
		return nil
	}
	v := n.Bool()
	return &v
}

// opcode reads an op code column. dton reports op codes as signed 32-bit
// integers.
func opcode(n backend.Number) (*OpcodeType, error) {
	if n.IsEmpty() {
		return nil, nil
	}
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse op code %q: %w", n, err)
	}
	op := OpcodeType(uint32(v))
	return &op, nil
}

type messageRow struct {
	createdLt backend.Number
	src, dest *Address
	value     backend.Number
	body      *string
	op        backend.Number
}

// convert rebuilds the message body. dton cuts the leading op code out of
// bodies, so it is put back when the body has room for it.
func (m *messageRow) convert() (*Message, error) {
	msg := &Message{Source: m.src, Destination: m.dest}
	var err error
	if msg.CreatedLt, err = m.createdLt.Uint64(); err != nil {
		return nil, fmt.Errorf("failed to parse created_lt: %w", err)
	}
	if msg.Value, err = m.value.BigInt(); err != nil {
		return nil, err
	}
	op, err := opcode(m.op)
	if err != nil {
		return nil, err
	}
	if m.body == nil || len(*m.body) == 0 {
		msg.Opcode = op
		return msg, nil
	}
	body, err := boc.DecodeBase64(*m.body)
	if err != nil {
		return nil, fmt.Errorf("message body: %w", err)
	}
	if op == nil {
		return msg, parse.DescribeBody(msg, body)
	}
	full, ok, err := parse.ReassembleBody(*op, body)
	if err != nil {
		return nil, err
	}
	if err := parse.DescribeBody(msg, full); err != nil {
		return nil, err
	}
	if !ok {
		msg.Opcode = op
		msg.Comment = nil
	}
	return msg, nil
}

func (r *transactionRow) convert(account Address) (*Transaction, error) {
	tx := &Transaction{Hash: NormalizeHash(r.Hash)}
	var err error
	if tx.Lt, err = r.Lt.Uint64(); err != nil {
		return nil, fmt.Errorf("failed to parse lt: %w", err)
	}
	if tx.Utime, err = parseGenUtime(r.Utime); err != nil {
		return nil, err
	}
	if tx.Fee, err = r.Fee.BigInt(); err != nil {
		return nil, err
	}
	flags := parse.PhaseFlags{Compute: flag(r.ComputeSuccess), Action: flag(r.ActionSuccess)}
	tx.Success = true
	if flags.Compute != nil || flags.Action != nil {
		if tx.Success, err = parse.TransactionSuccess(flags, nil); err != nil {
			return nil, err
		}
	}

	in := messageRow{createdLt: r.InCreatedLt, value: r.InValue, body: r.InBody, op: r.InOpcode}
	if in.src, err = addressOf(r.InSrcWc, r.InSrcHex); err != nil {
		return nil, fmt.Errorf("in message source: %w", err)
	}
	if in.dest, err = addressOf(r.InDestWc, r.InDestHex); err != nil {
		return nil, fmt.Errorf("in message destination: %w", err)
	}
	if in.dest != nil {
		if tx.InMsg, err = in.convert(); err != nil {
			return nil, err
		}
	}

	for i := 0; i < r.OutCount; i++ {
		src := account
		out := messageRow{
			createdLt: at(r.OutCreatedLt, i),
			src:       &src,
			value:     at(r.OutValue, i),
			body:      at(r.OutBody, i),
			op:        at(r.OutOpcode, i),
		}
		if out.dest, err = addressOf(at(r.OutDestWc, i), at(r.OutDestHex, i)); err != nil {
			return nil, fmt.Errorf("out message destination: %w", err)
		}
		msg, err := out.convert()
		if err != nil {
			return nil, err
		}
		tx.OutMsgs = append(tx.OutMsgs, msg)
	}
	return tx, nil
}

func (c *Client) fetchTransactions(ctx context.Context, addr Address, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
	page := 0
	if cursor != nil {
		page = cursor.Page
	}
	var res struct {
		Transactions []transactionRow `json:"transactions"`
	}
	vars := map[string]interface{}{
		"address": friendly(addr),
		"limit":   pageSize,
		"page":    page,
	}
	if err := c.graphql.Execute(ctx, transactionsQuery, vars, &res); err != nil {
		return nil, err
	}
	txs := make([]*Transaction, 0, len(res.Transactions))
	for i := range res.Transactions {
		tx, err := res.Transactions[i].convert(addr)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// GetTransactions walks page indexes, newest first.
func (c *Client) GetTransactions(ctx context.Context, addr Address, limit, pageSize int) ([]*Transaction, error) {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	p := history.Paginator{
		Fetch: func(ctx context.Context, cursor *history.Cursor, pageSize int) ([]*Transaction, error) {
			return c.fetchTransactions(ctx, addr, cursor, pageSize)
		},
		Advance:  history.NextPage,
		PageSize: pageSize,
		Limit:    limit,
	}
	return p.Collect(ctx)
}
