package toncenter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/backend/backendtest"
	"github.com/toncenter/ton-tools-go/tontools/content"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const endpoint = "https://toncenter.test/api/v2"

func setup() (*Client, *backendtest.Transport) {
	transport := backendtest.NewTransport()
	resolver := content.NewResolver(transport, content.Options{})
	return New(transport, resolver, nil, Settings{Endpoint: endpoint + "/", ApiKey: "secret"}), transport
}

func ok(result string) string {
	return `{"ok": true, "result": ` + result + `}`
}

type runRequest struct {
	Address string          `json:"address"`
	Method  string          `json:"method"`
	Stack   [][]interface{} `json:"stack"`
}

func decodeRun(t *testing.T, req backend.Request) runRequest {
	var r runRequest
	require.NoError(t, json.Unmarshal(req.Body, &r))
	return r
}

func stackCell(tc *cell.Cell) string {
	return fmt.Sprintf(`["cell", {"bytes": "%s"}]`, backendtest.Base64(tc))
}

func TestRunGetMethod(t *testing.T) {
	c, transport := setup()
	addr := backendtest.Addr(0x11)
	owner := backendtest.Addr(0x22)
	transport.HandleFunc("POST", endpoint+"/runGetMethod", func(req backend.Request) (int, string) {
		assert.Equal(t, "secret", req.Headers["X-API-Key"])
		r := decodeRun(t, req)
		assert.Equal(t, addr.Raw(), r.Address)
		assert.Equal(t, "get_wallet_address", r.Method)
		require.Len(t, r.Stack, 1)
		assert.Equal(t, "tvm.Slice", r.Stack[0][0])
		return 200, ok(`{"gas_used": 100, "exit_code": 0, "stack": [["num", "0x7"], ` + stackCell(backendtest.AddrCell(owner)) + `]}`)
	})

	arg, err := stack.AddressSlice(owner)
	require.NoError(t, err)
	values, err := c.RunGetMethod(context.Background(), addr, "get_wallet_address", []stack.Value{arg})
	require.NoError(t, err)
	require.Len(t, values, 2)
	n, err := values[0].Int()
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.Int64())
	got, err := values[1].Address()
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestRunGetMethodExitCode(t *testing.T) {
	c, transport := setup()
	transport.Handle("POST", endpoint+"/runGetMethod", 200, ok(`{"gas_used": 100, "exit_code": 11, "stack": []}`))

	_, err := c.RunGetMethod(context.Background(), backendtest.Addr(1), "get_sale_data", nil)
	var readErr *ReadMethodError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, int64(11), readErr.ExitCode)
	assert.Equal(t, 409, AsIndexError(err).Code)
}

func TestErrorResponse(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/getAddressBalance", 416, `{"ok": false, "error": "Incorrect address", "code": 416}`)
	transport.Handle("GET", endpoint+"/getAddressState", 429, `{"ok": false, "error": "Ratelimit exceed", "code": 429}`)

	_, err := c.GetBalance(context.Background(), backendtest.Addr(1))
	assert.Equal(t, 416, AsIndexError(err).Code)

	_, err = c.GetState(context.Background(), backendtest.Addr(1))
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestBalanceAndState(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/getAddressBalance", 200, ok(`"123456789"`))
	transport.Handle("GET", endpoint+"/getAddressState", 200, ok(`"uninitialized"`))

	balance, err := c.GetBalance(context.Background(), backendtest.Addr(1))
	require.NoError(t, err)
	assert.Equal(t, "123456789", balance.String())

	state, err := c.GetState(context.Background(), backendtest.Addr(1))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, state)

	req := transport.Requests(endpoint + "/getAddressState")[0]
	assert.Equal(t, backendtest.Addr(1).Raw(), req.Query.Get("address"))
}

func hashOf(lt int) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune('a'+lt)), 32)))
}

func transactionJson(lt int, from Address) string {
	comment := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("payment %d", lt)))
	return fmt.Sprintf(`{
		"@type": "raw.transaction",
		"utime": %d,
		"data": "",
		"transaction_id": {"lt": "%d", "hash": "%s"},
		"fee": "1000",
		"in_msg": {
			"source": "%s", "destination": "%s", "value": "%d000000000", "created_lt": "%d",
			"msg_data": {"@type": "msg.dataText", "text": "%s"}
		},
		"out_msgs": []
	}`, 1700000000+lt, lt*1000, hashOf(lt), from.Raw(), backendtest.Addr(0x11).Raw(), lt, lt*1000-1, comment)
}

func TestGetTransactionsPagination(t *testing.T) {
	c, transport := setup()
	from := backendtest.Addr(0x22)
	var all []string
	for lt := 7; lt >= 1; lt-- {
		all = append(all, transactionJson(lt, from))
	}
	transport.HandleFunc("GET", endpoint+"/getTransactions", func(req backend.Request) (int, string) {
		start := 0
		if lt := req.Query.Get("lt"); lt != "" {
			var v int
			fmt.Sscanf(lt, "%d", &v)
			start = 7 - v/1000
		}
		end := start + 3
		if end > len(all) {
			end = len(all)
		}
		return 200, ok("[" + strings.Join(all[start:end], ",") + "]")
	})

	txs, err := c.GetTransactions(context.Background(), backendtest.Addr(0x11), 0, 3)
	require.NoError(t, err)
	require.Len(t, txs, 7)
	for i, tx := range txs {
		assert.Equal(t, uint64((7-i)*1000), tx.Lt)
		assert.True(t, tx.Success)
		assert.Len(t, string(tx.Hash), 64)
	}
	assert.Len(t, transport.Requests(endpoint+"/getTransactions"), 4)

	in := txs[0].InMsg
	require.NotNil(t, in.Comment)
	assert.Equal(t, "payment 7", *in.Comment)
	assert.Equal(t, "comment", in.Type())
	assert.Equal(t, from, *in.Source)
	assert.Equal(t, "in", txs[0].Summary(RawForm).Type)
	assert.Equal(t, "7", txs[0].Summary(RawForm).Value[0])

	second := transport.Requests(endpoint + "/getTransactions")[1]
	assert.Equal(t, "5000", second.Query.Get("lt"))
	assert.Equal(t, string(txs[2].Hash), second.Query.Get("hash"))
}

func TestGetTransactionsSmallPage(t *testing.T) {
	c, transport := setup()
	from := backendtest.Addr(0x22)
	transport.HandleFunc("GET", endpoint+"/getTransactions", func(req backend.Request) (int, string) {
		if req.Query.Get("lt") == "" {
			return 200, ok("[" + transactionJson(3, from) + "," + transactionJson(2, from) + "]")
		}
		return 200, ok("[" + transactionJson(2, from) + "," + transactionJson(1, from) + "]")
	})

	txs, err := c.GetTransactions(context.Background(), backendtest.Addr(0x11), 10, 1)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	requests := transport.Requests(endpoint + "/getTransactions")
	require.NotEmpty(t, requests)
	assert.Equal(t, "2", requests[0].Query.Get("limit"))
	assert.LessOrEqual(t, len(requests), 3)
}

func TestGetTransactionsLimit(t *testing.T) {
	c, transport := setup()
	from := backendtest.Addr(0x22)
	transport.Handle("GET", endpoint+"/getTransactions", 200,
		ok("["+transactionJson(3, from)+","+transactionJson(2, from)+","+transactionJson(1, from)+"]"))

	txs, err := c.GetTransactions(context.Background(), backendtest.Addr(0x11), 2, 3)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Len(t, transport.Requests(endpoint+"/getTransactions"), 1)
}

func TestGetTransactionsBodyMessage(t *testing.T) {
	c, transport := setup()
	body := cell.BeginCell().MustStoreUInt(0x0f8a7ea5, 32).MustStoreUInt(5, 64).EndCell()
	tx := fmt.Sprintf(`{
		"utime": 1, "data": "", "fee": "0",
		"transaction_id": {"lt": "10", "hash": "%s"},
		"in_msg": {"source": "", "destination": "%s", "value": "0", "created_lt": "0",
			"msg_data": {"@type": "msg.dataRaw", "body": "%s"}},
		"out_msgs": [{"source": "%s", "destination": "%s", "value": "5", "created_lt": "11",
			"msg_data": {"@type": "msg.dataRaw", "body": "%s"}}]
	}`, hashOf(1), backendtest.Addr(1).Raw(), backendtest.Base64(cell.BeginCell().EndCell()),
		backendtest.Addr(1).Raw(), backendtest.Addr(2).Raw(), backendtest.Base64(body))
	transport.Handle("GET", endpoint+"/getTransactions", 200, ok("["+tx+"]"))

	txs, err := c.GetTransactions(context.Background(), backendtest.Addr(1), 10, 3)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Nil(t, txs[0].InMsg.Source)
	assert.Nil(t, txs[0].InMsg.Opcode)
	require.Len(t, txs[0].OutMsgs, 1)
	assert.Equal(t, "jetton-transfer", txs[0].OutMsgs[0].Type())
	assert.Nil(t, txs[0].OutMsgs[0].Comment)
	assert.Equal(t, "out", txs[0].Direction())
}

func TestGetTransactionsBadData(t *testing.T) {
	c, transport := setup()
	tx := fmt.Sprintf(`{"utime": 1, "data": "dGVzdA==", "fee": "0",
		"transaction_id": {"lt": "10", "hash": "%s"}, "in_msg": null, "out_msgs": []}`, hashOf(1))
	transport.Handle("GET", endpoint+"/getTransactions", 200, ok("["+tx+"]"))

	_, err := c.GetTransactions(context.Background(), backendtest.Addr(1), 10, 3)
	assert.True(t, errors.Is(err, ErrMalformedBoc))
}

func TestSendRawMessage(t *testing.T) {
	c, transport := setup()
	payload := []byte{0xb5, 0xee}
	transport.HandleFunc("POST", endpoint+"/sendBocReturnHash", func(req backend.Request) (int, string) {
		var body map[string]string
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, base64.StdEncoding.EncodeToString(payload), body["boc"])
		return 200, ok(`{"@type": "raw.extMessageInfo", "hash": "` + hashOf(2) + `"}`)
	})

	hash, err := c.SendRawMessage(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, string(NormalizeHash(hashOf(2))), hash)
}

// The item below is listed on a 10-entry sale contract. Stack numbers come
// back in hex as api/v2 reports them.
func TestGetNftItemOnSale(t *testing.T) {
	c, transport := setup()
	item := backendtest.Addr(0x01)
	collection := backendtest.Addr(0x02)
	sale := backendtest.Addr(0x03)
	seller := backendtest.Addr(0x04)
	market := MustAddress("0:eb2eaf97ea32993470127208218748758a88374ad2bbd739fc75c9ab3a3f233d")

	transport.Handle("GET", "https://example.com/meta/5.json", 200, `{"name": "Item 5"}`)
	transport.HandleFunc("POST", endpoint+"/runGetMethod", func(req backend.Request) (int, string) {
		r := decodeRun(t, req)
		switch r.Method {
		case "get_nft_data":
			return 200, ok(`{"exit_code": 0, "stack": [["num", "-0x1"], ["num", "0x5"], ` +
				stackCell(backendtest.AddrCell(collection)) + `, ` + stackCell(backendtest.AddrCell(sale)) + `, ` +
				stackCell(cell.BeginCell().MustStoreSlice([]byte("5.json"), 48).EndCell()) + `]}`)
		case "get_nft_content":
			assert.Equal(t, collection.Raw(), r.Address)
			assert.Equal(t, []interface{}{"num", "5"}, r.Stack[0])
			return 200, ok(`{"exit_code": 0, "stack": [` + stackCell(backendtest.SnakeURL(1, "https://example.com/meta/", "5.json")) + `]}`)
		case "get_sale_data":
			assert.Equal(t, sale.Raw(), r.Address)
			entries := []string{`["num", "0x0"]`, `["num", "0x0"]`, `["num", "0x0"]`,
				stackCell(backendtest.AddrCell(market)), stackCell(backendtest.AddrCell(item)),
				stackCell(backendtest.AddrCell(seller)), `["num", "0x2E90EDD000"]`,
				`["num", "0x0"]`, `["num", "0x0"]`, `["num", "0x0"]`}
			return 200, ok(`{"exit_code": 0, "stack": [` + strings.Join(entries, ",") + `]}`)
		}
		return 200, ok(`{"exit_code": 11, "stack": []}`)
	})

	res, err := c.GetNftItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "5", res.Info.Index.String())
	assert.Equal(t, "Item 5", res.Info.Metadata["name"])
	require.NotNil(t, res.Info.Sale)
	assert.Equal(t, sale, res.Info.Sale.Address)
	assert.Equal(t, "200000000000", res.Info.Sale.Info.Price.Value.String())
	assert.Equal(t, "Disintar Marketplace", res.Info.Sale.Info.Market.Name)
	assert.Equal(t, seller, res.Info.Sale.Info.Owner)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":"200000000000"`)
}
