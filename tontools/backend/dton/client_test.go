package dton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/backend/backendtest"
	"github.com/toncenter/ton-tools-go/tontools/boc"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const endpoint = "https://dton.test/graphql/"

var (
	itemAddr   = backendtest.Addr(0x01)
	collection = backendtest.Addr(0x02)
	saleAddr   = backendtest.Addr(0x03)
	sellerAddr = backendtest.Addr(0x04)
	marketAddr = backendtest.Addr(0x09)
	walletAddr = backendtest.Addr(0x05)
	masterAddr = backendtest.Addr(0x06)
)

var operationName = regexp.MustCompile(`^\s*(?:query|mutation)\s+(\w+)`)

type operation func(vars map[string]interface{}) string

func hexOf(a Address) string {
	return strings.ToUpper(fmt.Sprintf("%x", a.Hash[:]))
}

// serve answers graphql posts by operation name with {"data": ...}.
func serve(t *testing.T, transport *backendtest.Transport, ops map[string]operation) {
	transport.HandleFunc("POST", endpoint, func(req backend.Request) (int, string) {
		var body struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(req.Body, &body))
		m := operationName.FindStringSubmatch(body.Query)
		require.NotNil(t, m, "no operation name in %q", body.Query)
		op, ok := ops[m[1]]
		if !ok {
			return 200, fmt.Sprintf(`{"data": null, "errors": [{"message": "unexpected operation %s"}]}`, m[1])
		}
		return 200, `{"data": ` + op(body.Variables) + `}`
	})
}

func setup(t *testing.T, ops map[string]operation) (*Client, *backendtest.Transport) {
	transport := backendtest.NewTransport()
	serve(t, transport, ops)
	resolver := content.NewResolver(transport, content.Options{})
	names := markets.New(map[Address]string{marketAddr: "Test Market"})
	return New(transport, resolver, names, Settings{Endpoint: "https://dton.test/graphql"}), transport
}

func TestRunGetMethod(t *testing.T) {
	c, transport := setup(t, map[string]operation{
		"get_method": func(vars map[string]interface{}) string {
			if vars["method"] == "seqno" {
				return `{"run_method": {"exit_code": 0, "success": true, "stack": [{"value_type": "num", "value": "17"}]}}`
			}
			return `{"run_method": {"exit_code": 11, "success": false, "stack": []}}`
		},
	})

	seqno, err := c.GetWalletSeqno(context.Background(), walletAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), seqno)

	reqs := transport.Requests(endpoint)
	require.Len(t, reqs, 1)
	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, walletAddr.Format(FriendlyBounceable), body.Variables["address"])
	assert.Equal(t, []interface{}{}, body.Variables["stack"])

	_, err = c.RunGetMethod(context.Background(), walletAddr, "get_wallet_data", nil)
	var readErr *ReadMethodError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, int64(11), readErr.ExitCode)
	assert.Equal(t, "get_wallet_data", readErr.Method)
}

func TestGraphQLErrors(t *testing.T) {
	c, _ := setup(t, map[string]operation{})
	_, err := c.GetBalance(context.Background(), walletAddr)
	var gerr *backend.GraphQLError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Error(), "unexpected operation account")
}

func TestLogin(t *testing.T) {
	transport := backendtest.NewTransport()
	transport.Cookies = []string{"sessionid=abc", "csrftoken=def"}
	transport.HandleFunc("GET", endpoint+"login", func(req backend.Request) (int, string) {
		if req.Query.Get("token") == "good" {
			return 200, `{"success": true}`
		}
		return 200, `{"success": false}`
	})
	serve(t, transport, map[string]operation{
		"account": func(map[string]interface{}) string {
			return `{"transactions": [{"balance": "1", "state": "active"}]}`
		},
	})

	c := New(transport, nil, nil, Settings{Endpoint: endpoint, ApiKey: "good"})
	require.NoError(t, c.Login(context.Background()))
	_, err := c.GetBalance(context.Background(), walletAddr)
	require.NoError(t, err)
	reqs := transport.Requests(endpoint)
	require.Len(t, reqs, 1)
	assert.Equal(t, "sessionid=abc; csrftoken=def", reqs[0].Headers["Cookie"])

	bad := New(transport, nil, nil, Settings{Endpoint: endpoint, ApiKey: "bad"})
	err = bad.Login(context.Background())
	assert.Equal(t, 401, AsIndexError(err).Code)

	anonymous := New(transport, nil, nil, Settings{Endpoint: endpoint})
	require.NoError(t, anonymous.Login(context.Background()))
	assert.Len(t, transport.Requests(endpoint+"login"), 2)
}

func TestAccount(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"account": func(vars map[string]interface{}) string {
			if vars["address"] == walletAddr.Format(FriendlyBounceable) {
				return `{"transactions": [{"balance": "123456789", "state": "active"}]}`
			}
			return `{"transactions": []}`
		},
	})
	ctx := context.Background()

	balance, err := c.GetBalance(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, "123456789", balance.String())
	state, err := c.GetState(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)

	balance, err = c.GetBalance(ctx, masterAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Int64())
	state, err = c.GetState(ctx, masterAddr)
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, state)
}

func itemRow(onSale bool) string {
	owner := sellerAddr
	if onSale {
		owner = saleAddr
	}
	return fmt.Sprintf(`{"transactions": [{
		"index": "42",
		"collection_wc": 0, "collection_hex": "%s",
		"owner_wc": 0, "owner_hex": "%s",
		"is_on_sale": %t,
		"content_url": "https://meta.test/42.json"
	}]}`, hexOf(collection), hexOf(owner), onSale)
}

func TestGetNftItemOnSale(t *testing.T) {
	c, transport := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return itemRow(true) },
		"get_sale": func(vars map[string]interface{}) string {
			return fmt.Sprintf(`{"transactions": [{
				"owner_wc": 0, "owner_hex": "%s",
				"market_wc": 0, "market_hex": "%s",
				"price": "0", "min_bid": "2500000000"
			}]}`, hexOf(sellerAddr), hexOf(marketAddr))
		},
	})
	transport.Handle("GET", "https://meta.test/42.json", 200, `{"name": "Item 42"}`)

	item, err := c.GetNftItem(context.Background(), itemAddr)
	require.NoError(t, err)
	require.True(t, item.IsFull())
	assert.Equal(t, "42", item.Info.Index.String())
	require.NotNil(t, item.Info.CollectionAddress)
	assert.Equal(t, collection, *item.Info.CollectionAddress)
	assert.False(t, item.Info.Collection.IsFull())
	assert.Equal(t, "Item 42", item.Info.Metadata["name"])
	assert.Equal(t, saleAddr, item.Info.Owner)

	require.NotNil(t, item.Info.Sale)
	sale := item.Info.Sale.Info
	assert.Equal(t, "Test Market", sale.Market.Name)
	assert.Equal(t, sellerAddr, sale.Owner)
	assert.Equal(t, "2500000000", sale.Price.Value.String())
	assert.Equal(t, "TON", sale.Price.TokenName)

	owner, ok := item.RealOwner()
	assert.True(t, ok)
	assert.Equal(t, sellerAddr, owner)
}

func TestGetNftItemMetadataDegrades(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return itemRow(false) },
	})
	item, err := c.GetNftItem(context.Background(), itemAddr)
	require.NoError(t, err)
	assert.Empty(t, item.Info.Metadata)
	assert.Nil(t, item.Info.Sale)
	assert.Equal(t, sellerAddr, item.Info.Owner)
}

func TestGetNftItemMissingSaleData(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return itemRow(true) },
		"get_sale":     func(map[string]interface{}) string { return `{"transactions": []}` },
	})
	item, err := c.GetNftItem(context.Background(), itemAddr)
	require.NoError(t, err)
	assert.Nil(t, item.Info.Sale)
}

func TestGetNftItemUnreadableSale(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return itemRow(true) },
		"get_sale": func(map[string]interface{}) string {
			return fmt.Sprintf(`{"transactions": [{
				"owner_wc": 0, "owner_hex": "%s",
				"market_wc": null, "market_hex": null,
				"price": "0", "min_bid": "0"
			}]}`, hexOf(sellerAddr))
		},
	})
	item, err := c.GetNftItem(context.Background(), itemAddr)
	require.NoError(t, err)
	assert.Nil(t, item.Info.Sale)
	assert.Equal(t, saleAddr, item.Info.Owner)
}

func TestGetNftItemNotFound(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return `{"transactions": []}` },
	})
	_, err := c.GetNftItem(context.Background(), itemAddr)
	assert.Equal(t, 404, AsIndexError(err).Code)
}

func TestGetNftItems(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_item": func(map[string]interface{}) string { return itemRow(false) },
	})
	addrs := []Address{backendtest.Addr(0x11), backendtest.Addr(0x12), backendtest.Addr(0x13)}
	items, err := c.GetNftItems(context.Background(), addrs, 2)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, addrs[i], item.Address)
	}
}

func TestGetNftOwner(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_nft_owner": func(vars map[string]interface{}) string {
			switch vars["address_hex"] {
			case hexOf(itemAddr):
				return fmt.Sprintf(`{"account_states": [{"owner_wc": 0, "owner_hex": "%s", "owner_is_seller": 1}]}`, hexOf(saleAddr))
			case hexOf(saleAddr):
				return fmt.Sprintf(`{"account_states": [{"prev_owner_wc": 0, "prev_owner_hex": "%s"}]}`, hexOf(sellerAddr))
			case hexOf(collection):
				return fmt.Sprintf(`{"account_states": [{"owner_wc": 0, "owner_hex": "%s", "owner_is_seller": 0}]}`, hexOf(sellerAddr))
			}
			return `{"account_states": []}`
		},
	})
	ctx := context.Background()

	owner, err := c.GetNftOwner(ctx, itemAddr)
	require.NoError(t, err)
	assert.Equal(t, sellerAddr, owner)

	owner, err = c.GetNftOwner(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, sellerAddr, owner)

	_, err = c.GetNftOwner(ctx, masterAddr)
	assert.Equal(t, 404, AsIndexError(err).Code)
}

func TestGetCollectionItems(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_collection": func(map[string]interface{}) string {
			return fmt.Sprintf(`{"transactions": [{
				"next_item_index": 3,
				"content_url": null,
				"owner_wc": 0, "owner_hex": "%s"
			}]}`, hexOf(sellerAddr))
		},
		"get_collection_items": func(vars map[string]interface{}) string {
			if vars["address_hex"] != hexOf(collection) {
				return `{"account_states": []}`
			}
			if vars["page"].(float64) > 0 {
				return `{"account_states": []}`
			}
			return fmt.Sprintf(`{"account_states": [{"address": "%s"}, {"address": "%s"}, {"address": "%s"}]}`,
				hexOf(backendtest.Addr(0x21)), hexOf(backendtest.Addr(0x22)), hexOf(backendtest.Addr(0x23)))
		},
	})

	stub := NewNftCollectionStub(collection)
	items, err := c.GetCollectionItems(context.Background(), stub, 150)
	require.NoError(t, err)
	require.True(t, stub.IsFull())
	assert.Equal(t, "3", stub.Info.NextItemIndex.String())
	require.NotNil(t, stub.Info.Owner)
	assert.Equal(t, sellerAddr, *stub.Info.Owner)
	assert.Empty(t, stub.Info.Metadata)

	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, backendtest.Addr(byte(0x21+i)), item.Address)
		assert.False(t, item.IsFull())
	}
}

func TestGetCollectionItemsRejectsHugeIndex(t *testing.T) {
	pages := 0
	c, _ := setup(t, map[string]operation{
		"get_collection": func(map[string]interface{}) string {
			return fmt.Sprintf(`{"transactions": [{
				"next_item_index": 1099511627776,
				"content_url": null,
				"owner_wc": 0, "owner_hex": "%s"
			}]}`, hexOf(sellerAddr))
		},
		"get_collection_items": func(map[string]interface{}) string {
			pages++
			return `{"account_states": []}`
		},
	})
	_, err := c.GetCollectionItems(context.Background(), NewNftCollectionStub(collection), 0)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.Zero(t, pages)
}

func TestGetJettonData(t *testing.T) {
	c, _ := setup(t, map[string]operation{
		"get_jetton": func(map[string]interface{}) string {
			return `{"transactions": [{
				"supply": "1500000",
				"offchain_url": null,
				"name": "Coin",
				"description": null,
				"image": "https://img.test/coin.png",
				"image_data": null,
				"symbol": "CN",
				"decimals": "6"
			}]}`
		},
	})
	jetton, err := c.GetJettonData(context.Background(), masterAddr)
	require.NoError(t, err)
	assert.Equal(t, "Coin", jetton.Info.Name)
	assert.Equal(t, "CN", jetton.Info.Symbol)
	assert.Equal(t, int32(6), jetton.Info.Decimals)
	assert.Equal(t, "1.5", jetton.Info.TokenSupply())
	assert.NotContains(t, jetton.Info.Metadata, "description")
}

func TestGetJettonDataOffchain(t *testing.T) {
	c, transport := setup(t, map[string]operation{
		"get_jetton": func(map[string]interface{}) string {
			return `{"transactions": [{"supply": "10", "offchain_url": "https://meta.test/jetton.json", "symbol": "ONC", "decimals": null}]}`
		},
	})
	transport.Handle("GET", "https://meta.test/jetton.json", 200, `{"name": "Off", "decimals": 0}`)
	jetton, err := c.GetJettonData(context.Background(), masterAddr)
	require.NoError(t, err)
	assert.Equal(t, "Off", jetton.Info.Name)
	assert.Equal(t, "ONC", jetton.Info.Symbol)
	assert.Equal(t, int32(0), jetton.Info.Decimals)
}

func TestJettonWallet(t *testing.T) {
	code := cell.BeginCell().MustStoreUInt(0xff00, 16).EndCell()
	c, _ := setup(t, map[string]operation{
		"get_jetton_wallet": func(vars map[string]interface{}) string {
			assert.Equal(t, hexOf(walletAddr), vars["address_hex"])
			return fmt.Sprintf(`{"account_states": [{
				"balance": "777",
				"owner_wc": 0, "owner_hex": "%s",
				"master_wc": 0, "master_hex": "%s",
				"code": "%s"
			}]}`, hexOf(sellerAddr), hexOf(masterAddr), backendtest.Base64(code))
		},
		"get_jetton_wallet_address": func(vars map[string]interface{}) string {
			assert.Equal(t, masterAddr.Format(FriendlyBounceable), vars["minter"])
			assert.Equal(t, sellerAddr.Format(FriendlyBounceable), vars["user"])
			return fmt.Sprintf(`{"getJettonWalletAddress": "%s"}`, walletAddr.Format(FriendlyBounceable))
		},
	})
	ctx := context.Background()

	wallet, err := c.GetJettonWallet(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, "777", wallet.Info.Balance.String())
	assert.Equal(t, sellerAddr, wallet.Info.Owner)
	assert.Equal(t, masterAddr, wallet.Info.Jetton.Address)
	assert.False(t, wallet.Info.Jetton.IsFull())
	assert.Equal(t, code.ToBOC(), wallet.Info.Code)

	addr, err := c.GetJettonWalletAddress(ctx, masterAddr, sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, addr)
}

type txFixture struct {
	lt      int
	compute string
	action  string
	inBody  string
	inOp    string
}

func (f txFixture) json() string {
	return fmt.Sprintf(`{
		"utime": "2023-01-01T03:00:00",
		"fee": "1000",
		"hash": "%s",
		"lt": "%d",
		"compute_ph_success": %s,
		"action_ph_success": %s,
		"in_msg_created_lt": "%d",
		"in_src_wc": 0, "in_src_hex": "%s",
		"in_dest_wc": 0, "in_dest_hex": "%s",
		"in_msg_value_grams": "5000",
		"in_msg_body": %s,
		"in_msg_op_code": %s,
		"outmsg_cnt": 1,
		"out_msg_created_lt": ["%d"],
		"out_dest_wc": [0],
		"out_dest_hex": ["%s"],
		"out_msg_value_grams": ["4000"],
		"out_msg_body": [null],
		"out_msg_op_code": ["-718113061"]
	}`, strings.Repeat(fmt.Sprintf("%02X", f.lt%256), 32), f.lt, f.compute, f.action, f.lt-1,
		hexOf(sellerAddr), hexOf(walletAddr), f.inBody, f.inOp, f.lt+1, hexOf(sellerAddr))
}

func TestGetTransactions(t *testing.T) {
	transfer := cell.BeginCell().MustStoreUInt(7, 64).EndCell()
	comment := cell.BeginCell().MustStoreSlice([]byte("hello"), 40).EndCell()
	pages := [][]txFixture{
		{
			{lt: 100, compute: "true", action: "true", inBody: `"` + backendtest.Base64(transfer) + `"`, inOp: "260734629"},
			{lt: 90, compute: "true", action: "false", inBody: `"` + backendtest.Base64(comment) + `"`, inOp: "0"},
		},
		{
			{lt: 80, compute: "null", action: "null", inBody: "null", inOp: "null"},
			{lt: 70, compute: "false", action: "null", inBody: "null", inOp: "null"},
		},
		{
			{lt: 60, compute: "1", action: "1", inBody: "null", inOp: "null"},
		},
	}
	var requested []float64
	c, _ := setup(t, map[string]operation{
		"get_transactions": func(vars map[string]interface{}) string {
			assert.Equal(t, float64(2), vars["limit"])
			page := int(vars["page"].(float64))
			requested = append(requested, vars["page"].(float64))
			var rows []string
			if page < len(pages) {
				for _, f := range pages[page] {
					rows = append(rows, f.json())
				}
			}
			return `{"transactions": [` + strings.Join(rows, ",") + `]}`
		},
	})

	txs, err := c.GetTransactions(context.Background(), walletAddr, 0, 2)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, []float64{0, 1, 2}, requested)

	first := txs[0]
	assert.Equal(t, uint64(100), first.Lt)
	assert.Equal(t, HashType(strings.Repeat("64", 32)), first.Hash)
	assert.Equal(t, uint32(1672531200), first.Utime)
	assert.Equal(t, "1000", first.Fee.String())
	assert.True(t, first.Success)
	require.NotNil(t, first.InMsg)
	assert.Equal(t, sellerAddr, *first.InMsg.Source)
	assert.Equal(t, walletAddr, *first.InMsg.Destination)
	require.NotNil(t, first.InMsg.Opcode)
	assert.Equal(t, "jetton-transfer", first.InMsg.Type())
	body, err := boc.Decode(first.InMsg.Body)
	require.NoError(t, err)
	assert.Equal(t, 96, body.BitsSize())
	s := body.BeginParse()
	op, err := s.ReadUint(32)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0f8a7ea5), op)
	queryId, err := s.ReadUint(64)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), queryId)

	require.Len(t, first.OutMsgs, 1)
	out := first.OutMsgs[0]
	assert.Equal(t, walletAddr, *out.Source)
	assert.Equal(t, sellerAddr, *out.Destination)
	assert.Equal(t, uint64(101), out.CreatedLt)
	require.NotNil(t, out.Opcode)
	assert.Equal(t, OpcodeType(0xd53276db), *out.Opcode)
	assert.Nil(t, out.Body)

	assert.False(t, txs[1].Success)
	require.NotNil(t, txs[1].InMsg.Comment)
	assert.Equal(t, "hello", *txs[1].InMsg.Comment)

	assert.True(t, txs[2].Success)
	assert.Nil(t, txs[2].InMsg.Opcode)
	assert.False(t, txs[3].Success)
	assert.True(t, txs[4].Success)
}

func TestGetTransactionsLimit(t *testing.T) {
	calls := 0
	c, _ := setup(t, map[string]operation{
		"get_transactions": func(vars map[string]interface{}) string {
			calls++
			page := int(vars["page"].(float64))
			rows := []string{
				txFixture{lt: 1000 - page*10, compute: "true", action: "true", inBody: "null", inOp: "null"}.json(),
				txFixture{lt: 995 - page*10, compute: "true", action: "true", inBody: "null", inOp: "null"}.json(),
			}
			return `{"transactions": [` + strings.Join(rows, ",") + `]}`
		},
	})
	txs, err := c.GetTransactions(context.Background(), walletAddr, 3, 2)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Equal(t, 2, calls)
}

func TestReassembleSkipsFullBody(t *testing.T) {
	full := cell.BeginCell().MustStoreSlice(make([]byte, 124), 992).EndCell()
	body := backendtest.Base64(full)
	m := messageRow{body: &body, op: "260734629"}
	msg, err := m.convert()
	require.NoError(t, err)
	require.NotNil(t, msg.Opcode)
	assert.Equal(t, OpcodeType(260734629), *msg.Opcode)
	assert.Nil(t, msg.Comment)
	decoded, err := boc.Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, 992, decoded.BitsSize())
}

func TestParseGenUtime(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint32
	}{
		{"2023-01-01T03:00:00", 1672531200},
		{"2023-01-01 03:00:00", 1672531200},
		{"2023-01-01T03:00:00.5", 1672531200},
		{"1672531200", 1672531200},
	} {
		got, err := parseGenUtime(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := parseGenUtime("yesterday")
	assert.Error(t, err)
}

func TestSendUnsupported(t *testing.T) {
	c, _ := setup(t, nil)
	_, err := c.SendRawMessage(context.Background(), []byte{1})
	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
}
