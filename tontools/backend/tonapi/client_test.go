package tonapi

import (
	"context"
	"encoding/hex"
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

const endpoint = "https://tonapi.test"

var (
	itemAddr    = backendtest.Addr(0x01)
	collection  = backendtest.Addr(0x02)
	saleAddr    = backendtest.Addr(0x03)
	sellerAddr  = backendtest.Addr(0x04)
	getgemsAddr = MustAddress("0:584ee61b2dff0837116d0fcb5078d93964bcbe9c05fd6a141b1bfca5d6a43e18")
)

func setup() (*Client, *backendtest.Transport) {
	transport := backendtest.NewTransport()
	resolver := content.NewResolver(transport, content.Options{})
	return New(transport, resolver, nil, Settings{Endpoint: endpoint, ApiKey: "token"}), transport
}

func itemJson(addr Address, withSale bool) string {
	sale := ""
	if withSale {
		sale = fmt.Sprintf(`, "sale": {
			"address": "%s",
			"market": {"address": "%s", "name": ""},
			"owner": {"address": "%s"},
			"price": {"token_name": "TON", "value": "5000000000"}
		}`, saleAddr.Raw(), getgemsAddr.Raw(), sellerAddr.Raw())
	}
	owner := sellerAddr
	if withSale {
		owner = saleAddr
	}
	return fmt.Sprintf(`{
		"address": "%s",
		"collection": {"address": "%s", "name": "Test"},
		"index": 3,
		"metadata": {"name": "Item 3"},
		"owner": {"address": "%s"}%s
	}`, addr.Raw(), collection.Raw(), owner.Raw(), sale)
}

func TestGetNftItem(t *testing.T) {
	c, transport := setup()
	transport.HandleFunc("GET", endpoint+"/v1/nft/getItems", func(req backend.Request) (int, string) {
		assert.Equal(t, "Bearer token", req.Headers["Authorization"])
		assert.Equal(t, itemAddr.Raw(), req.Query.Get("addresses"))
		return 200, `{"nft_items": [` + itemJson(itemAddr, true) + `]}`
	})

	item, err := c.GetNftItem(context.Background(), itemAddr)
	require.NoError(t, err)
	assert.Equal(t, "3", item.Info.Index.String())
	assert.Equal(t, "Item 3", item.Info.Metadata["name"])
	assert.Equal(t, collection, *item.Info.CollectionAddress)
	require.NotNil(t, item.Info.Sale)
	assert.Equal(t, "Getgems Sales", item.Info.Sale.Info.Market.Name)
	assert.Equal(t, "5000000000", item.Info.Sale.Info.Price.Value.String())

	owner, err := c.GetNftOwner(context.Background(), itemAddr)
	require.NoError(t, err)
	assert.Equal(t, sellerAddr, owner)
}

func TestGetNftItemsChunksAndDedup(t *testing.T) {
	c, transport := setup()
	var addrs []Address
	for i := 0; i < 150; i++ {
		addrs = append(addrs, backendtest.Addr(byte(i)))
	}
	addrs = append(addrs, addrs[0])
	transport.HandleFunc("GET", endpoint+"/v1/nft/getItems", func(req backend.Request) (int, string) {
		var items []string
		for _, raw := range strings.Split(req.Query.Get("addresses"), ",") {
			items = append(items, itemJson(MustAddress(raw), false))
		}
		return 200, `{"nft_items": [` + strings.Join(items, ",") + `]}`
	})

	items, err := c.GetNftItems(context.Background(), addrs, 2)
	require.NoError(t, err)
	require.Len(t, items, 151)
	for i, item := range items {
		assert.Equal(t, addrs[i], item.Address)
	}
	assert.Len(t, transport.Requests(endpoint+"/v1/nft/getItems"), 2)
}

func TestGetNftItemMissing(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/v1/nft/getItems", 200, `{"nft_items": []}`)

	_, err := c.GetNftItem(context.Background(), itemAddr)
	assert.Equal(t, 404, AsIndexError(err).Code)
}

func TestGetCollectionItems(t *testing.T) {
	c, transport := setup()
	transport.HandleFunc("GET", endpoint+"/v1/nft/searchItems", func(req backend.Request) (int, string) {
		assert.Equal(t, collection.Raw(), req.Query.Get("collection"))
		var offset int
		fmt.Sscanf(req.Query.Get("offset"), "%d", &offset)
		count := 2
		if offset >= 4 {
			count = 1
		}
		var items []string
		for i := 0; i < count; i++ {
			items = append(items, fmt.Sprintf(`{"address": "%s"}`, backendtest.Addr(byte(offset+i)).Raw()))
		}
		return 200, `{"nft_items": [` + strings.Join(items, ",") + `]}`
	})

	items, err := c.GetCollectionItems(context.Background(), NewNftCollectionStub(collection), 2)
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.False(t, items[4].IsFull())
	assert.Equal(t, backendtest.Addr(4), items[4].Address)
	assert.Len(t, transport.Requests(endpoint+"/v1/nft/searchItems"), 3)
}

func TestGetCollection(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/v1/nft/getCollection", 200, fmt.Sprintf(`{
		"address": "%s", "metadata": {"name": "Test"}, "next_item_index": 12, "owner": {"address": "%s"}
	}`, collection.Raw(), sellerAddr.Raw()))

	res, err := c.GetCollection(context.Background(), collection)
	require.NoError(t, err)
	assert.Equal(t, "12", res.Info.NextItemIndex.String())
	assert.Equal(t, sellerAddr, *res.Info.Owner)
	assert.Equal(t, "Test", res.Info.Metadata["name"])
}

func TestGetJettonData(t *testing.T) {
	c, transport := setup()
	master := backendtest.Addr(0x05)
	transport.Handle("GET", endpoint+"/v1/jetton/getInfo", 200, fmt.Sprintf(`{
		"metadata": {"address": "%s", "name": "Token", "symbol": "TKN", "decimals": "9"},
		"total_supply": "2500000000"
	}`, master.Raw()))

	jetton, err := c.GetJettonData(context.Background(), master)
	require.NoError(t, err)
	assert.Equal(t, "TKN", jetton.Info.Symbol)
	assert.Equal(t, "2.5", jetton.Info.TokenSupply())
	assert.NotContains(t, jetton.Info.Metadata, "address")
}

func TestAccountInfo(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/v1/account/getInfo", 200, `{"balance": 42, "status": "uninit"}`)
	transport.Handle("GET", endpoint+"/v1/wallet/getSeqno", 200, `{"seqno": 17}`)

	balance, err := c.GetBalance(context.Background(), sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())

	state, err := c.GetState(context.Background(), sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, state)

	seqno, err := c.GetWalletSeqno(context.Background(), sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), seqno)
}

func TestErrors(t *testing.T) {
	c, transport := setup()
	transport.Handle("GET", endpoint+"/v1/account/getInfo", 400, `{"error": "bad address"}`)
	transport.Handle("GET", endpoint+"/v1/wallet/getSeqno", 429, `{"error": "rate limit"}`)

	_, err := c.GetBalance(context.Background(), sellerAddr)
	assert.Equal(t, 400, AsIndexError(err).Code)

	_, err = c.GetWalletSeqno(context.Background(), sellerAddr)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestRunGetMethod(t *testing.T) {
	c, transport := setup()
	master := backendtest.Addr(0x05)
	wallet := backendtest.Addr(0x06)
	path := fmt.Sprintf("%s/v2/blockchain/accounts/%s/methods/get_wallet_address", endpoint, master.Raw())
	transport.HandleFunc("POST", path, func(req backend.Request) (int, string) {
		var body struct {
			Args []stack.TonapiArg `json:"args"`
		}
		require.NoError(t, json.Unmarshal(req.Body, &body))
		require.Len(t, body.Args, 1)
		assert.Equal(t, "slice_boc_hex", body.Args[0].Type)
		return 200, fmt.Sprintf(`{"success": true, "exit_code": 0, "stack": [{"type": "cell", "cell": "%s"}]}`,
			hex.EncodeToString(backendtest.AddrCell(wallet).ToBOC()))
	})

	res, err := c.GetJettonWalletAddress(context.Background(), master, sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, wallet, res)
}

func TestRunGetMethodExitCode(t *testing.T) {
	c, transport := setup()
	path := fmt.Sprintf("%s/v2/blockchain/accounts/%s/methods/get_sale_data", endpoint, sellerAddr.Raw())
	transport.Handle("POST", path, 200, `{"success": false, "exit_code": 11, "stack": []}`)

	_, err := c.GetNftSale(context.Background(), sellerAddr)
	var readErr *ReadMethodError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "get_sale_data", readErr.Method)
}

func txJson(lt int) string {
	body := cell.BeginCell().MustStoreUInt(0, 32).MustStoreStringSnake(fmt.Sprintf("tx %d", lt)).EndCell()
	return fmt.Sprintf(`{
		"utime": %d, "fee": %d, "data": "", "hash": "%s", "lt": %d,
		"in_msg": {"created_lt": %d, "source": {"address": "%s"}, "destination": {"address": "%s"},
			"value": 1000000000, "msg_data": "%s"},
		"out_msgs": []
	}`, 1700000000+lt, lt, strings.Repeat(fmt.Sprintf("%02x", lt), 32), lt*10, lt*10-1,
		sellerAddr.Raw(), itemAddr.Raw(), backendtest.Base64(body))
}

func TestGetTransactions(t *testing.T) {
	c, transport := setup()
	transport.HandleFunc("GET", endpoint+"/v1/blockchain/getTransactions", func(req backend.Request) (int, string) {
		assert.Equal(t, "0", req.Query.Get("minLt"))
		top := 5
		if maxLt := req.Query.Get("maxLt"); maxLt != "" {
			fmt.Sscanf(maxLt, "%d", &top)
			top /= 10
		}
		var txs []string
		for lt := top; lt >= 1 && lt > top-2; lt-- {
			txs = append(txs, txJson(lt))
		}
		return 200, `{"transactions": [` + strings.Join(txs, ",") + `]}`
	})

	txs, err := c.GetTransactions(context.Background(), itemAddr, 0, 2)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	for i, tx := range txs {
		assert.Equal(t, uint64((5-i)*10), tx.Lt)
	}
	require.NotNil(t, txs[0].InMsg.Comment)
	assert.Equal(t, "tx 5", *txs[0].InMsg.Comment)
	assert.Equal(t, sellerAddr, *txs[0].InMsg.Source)
	assert.Equal(t, "1", txs[0].Summary(RawForm).Value[0])
}

func TestSendRawMessage(t *testing.T) {
	c, transport := setup()
	msg := cell.BeginCell().MustStoreUInt(1, 8).EndCell()
	transport.Handle("POST", endpoint+"/v1/send/boc", 200, `{}`)

	hash, err := c.SendRawMessage(context.Background(), msg.ToBOC())
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(msg.Hash()), hash)

	_, err = c.SendRawMessage(context.Background(), []byte("junk"))
	assert.True(t, errors.Is(err, ErrMalformedBoc))
}
