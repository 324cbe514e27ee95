// Package tonapi implements backend.Provider over the tonapi REST api.
package tonapi

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/backend/contracts"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	MainnetEndpoint = "https://tonapi.io"
	TestnetEndpoint = "https://testnet.tonapi.io"

	DefaultPageSize   = 100
	DefaultItemsLimit = 1000
)

type Settings struct {
	Endpoint string
	ApiKey   string
}

// Client answers nft, jetton and account queries from tonapi indexes and
// falls back to get-methods for the rest.
type Client struct {
	*contracts.Contracts
	settings  Settings
	transport backend.Transport
	markets   *markets.Registry
}

var _ backend.Provider = (*Client)(nil)

func New(transport backend.Transport, resolver *content.Resolver, names *markets.Registry, settings Settings) *Client {
	if len(settings.Endpoint) == 0 {
		settings.Endpoint = MainnetEndpoint
	}
	settings.Endpoint = strings.TrimSuffix(settings.Endpoint, "/")
	if names == nil {
		names = markets.Default()
	}
	c := &Client{settings: settings, transport: transport, markets: names}
	c.Contracts = contracts.New(c, resolver, names)
	return c
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	req := backend.Request{
		Method: method,
		URL:    c.settings.Endpoint + "/" + path,
		Query:  params,
	}
	if len(c.settings.ApiKey) > 0 {
		req.Headers = map[string]string{"Authorization": "Bearer " + c.settings.ApiKey}
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		req.Body = data
	}
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status != fiber.StatusOK {
		var e errorResponse
		if err := json.Unmarshal(resp.Body, &e); err != nil || len(e.Error) == 0 {
			e.Error = string(resp.Body)
		}
		if resp.Status == fiber.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, path, e.Error)
		}
		return IndexError{Code: resp.Status, Message: fmt.Sprintf("%s: %s", path, e.Error)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

func accountParams(addr Address) url.Values {
	params := url.Values{}
	params.Add("account", addr.Raw())
	return params
}

type methodResult struct {
	Success  bool                `json:"success"`
	ExitCode int64               `json:"exit_code"`
	Stack    []stack.TonapiEntry `json:"stack"`
}

func (c *Client) RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error) {
	encoded, err := stack.ToTonapi(args)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("v2/blockchain/accounts/%s/methods/%s", url.PathEscape(addr.Raw()), url.PathEscape(method))
	var res methodResult
	if err := c.call(ctx, fiber.MethodPost, path, nil, map[string]interface{}{"args": encoded}, &res); err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, &ReadMethodError{Method: method, ExitCode: res.ExitCode}
	}
	return stack.FromTonapi(res.Stack)
}

type accountInfo struct {
	Balance backend.Number `json:"balance"`
	Status  string         `json:"status"`
}

func (c *Client) accountInfo(ctx context.Context, addr Address) (*accountInfo, error) {
	var res accountInfo
	if err := c.call(ctx, fiber.MethodGet, "v1/account/getInfo", accountParams(addr), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetBalance(ctx context.Context, addr Address) (*big.Int, error) {
	info, err := c.accountInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	balance, err := info.Balance.BigInt()
	if err != nil {
		return nil, err
	}
	return &balance.Int, nil
}

func (c *Client) GetState(ctx context.Context, addr Address) (AccountState, error) {
	info, err := c.accountInfo(ctx, addr)
	if err != nil {
		return "", err
	}
	return ParseAccountState(info.Status)
}

func (c *Client) GetWalletSeqno(ctx context.Context, addr Address) (uint32, error) {
	var res struct {
		Seqno uint32 `json:"seqno"`
	}
	if err := c.call(ctx, fiber.MethodGet, "v1/wallet/getSeqno", accountParams(addr), nil, &res); err != nil {
		return 0, err
	}
	return res.Seqno, nil
}

// SendRawMessage submits a serialized external message. tonapi does not
// report a hash, so the hash of the message cell is returned.
func (c *Client) SendRawMessage(ctx context.Context, boc []byte) (string, error) {
	msg, err := cell.FromBOC(boc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedBoc, err)
	}
	body := map[string]string{"boc": base64.StdEncoding.EncodeToString(boc)}
	if err := c.call(ctx, fiber.MethodPost, "v1/send/boc", nil, body, nil); err != nil {
		return "", err
	}
	return hex.EncodeToString(msg.Hash()), nil
}
