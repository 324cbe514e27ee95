// Package dton implements backend.Provider over the dton.io GraphQL api.
// Most lookups read the parsed_* columns dton keeps for every account, so
// only get-method calls touch the virtual machine.
package dton

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/markets"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

const (
	MainnetEndpoint = "https://dton.io/graphql/"
	TestnetEndpoint = "https://testnet.dton.io/graphql/"

	// DefaultPageSize is the largest page dton serves.
	DefaultPageSize = 150
)

type Settings struct {
	Endpoint string
	ApiKey   string
	Testnet  bool
}

type Client struct {
	settings  Settings
	transport backend.Transport
	graphql   *backend.GraphQLClient
	content   *content.Resolver
	markets   *markets.Registry
}

var _ backend.Provider = (*Client)(nil)

func New(transport backend.Transport, resolver *content.Resolver, names *markets.Registry, settings Settings) *Client {
	if len(settings.Endpoint) == 0 {
		settings.Endpoint = MainnetEndpoint
		if settings.Testnet {
			settings.Endpoint = TestnetEndpoint
		}
	}
	if !strings.HasSuffix(settings.Endpoint, "/") {
		settings.Endpoint += "/"
	}
	if names == nil {
		names = markets.Default()
	}
	return &Client{
		settings:  settings,
		transport: transport,
		graphql:   &backend.GraphQLClient{Endpoint: settings.Endpoint, Transport: transport},
		content:   resolver,
		markets:   names,
	}
}

type loginResponse struct {
	Success bool `json:"success"`
}

// Login exchanges the api key for a session cookie that is sent with every
// following query. It must run before the client is shared between
// goroutines. Without an api key it does nothing.
func (c *Client) Login(ctx context.Context) error {
	if len(c.settings.ApiKey) == 0 {
		return nil
	}
	params := url.Values{}
	params.Add("token", c.settings.ApiKey)
	resp, err := c.transport.Do(ctx, backend.Request{
		Method: fiber.MethodGet,
		URL:    c.settings.Endpoint + "login",
		Query:  params,
	})
	if err != nil {
		return err
	}
	var res loginResponse
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return fmt.Errorf("%w: failed to parse login response: %v", ErrBackendUnavailable, err)
	}
	if !res.Success {
		return IndexError{Code: fiber.StatusUnauthorized, Message: "dton: invalid api token"}
	}
	c.graphql.Headers = map[string]string{"Cookie": strings.Join(resp.Cookies, "; ")}
	return nil
}

// friendly is the address form dton accepts in address_friendly filters.
func friendly(addr Address) string {
	return addr.Format(FriendlyBounceable)
}

func hexPart(addr Address) string {
	return strings.ToUpper(fmt.Sprintf("%x", addr.Hash[:]))
}

// addressOf joins the workchain and hex columns dton splits addresses into.
// Missing columns give nil.
func addressOf(wc *int32, hex *string) (*Address, error) {
	if wc == nil || hex == nil || len(*hex) == 0 {
		return nil, nil
	}
	addr, err := ParseAddress(fmt.Sprintf("%d:%s", *wc, *hex))
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func requireAddress(wc *int32, hex *string, what string) (Address, error) {
	addr, err := addressOf(wc, hex)
	if err != nil {
		return Address{}, fmt.Errorf("%s: %w", what, err)
	}
	if addr == nil {
		return Address{}, fmt.Errorf("%w: %s is missing", ErrNotAnAddress, what)
	}
	return *addr, nil
}

func notFound(kind string, addr Address) error {
	return IndexError{Code: fiber.StatusNotFound, Message: fmt.Sprintf("%s not found: %s", kind, addr)}
}

const runMethodQuery = `mutation get_method($address: String, $method: String, $stack: [StackEntryInput]) {
	run_method(
		account_search_by_address: {address_friendly: $address}
		method_name: $method
		stack: $stack
	) {
		exit_code
		success
		stack {
			value_type
			value
		}
	}
}`

type runMethodResult struct {
	RunMethod struct {
		ExitCode int64                `json:"exit_code"`
		Success  bool                 `json:"success"`
		Stack    []stack.GraphQLEntry `json:"stack"`
	} `json:"run_method"`
}

func (c *Client) RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error) {
	encoded, err := stack.ToGraphQL(args)
	if err != nil {
		return nil, err
	}
	var res runMethodResult
	vars := map[string]interface{}{
		"address": friendly(addr),
		"method":  method,
		"stack":   encoded,
	}
	if err := c.graphql.Execute(ctx, runMethodQuery, vars, &res); err != nil {
		return nil, err
	}
	if !res.RunMethod.Success {
		return nil, &ReadMethodError{Method: method, ExitCode: res.RunMethod.ExitCode}
	}
	return stack.FromGraphQL(res.RunMethod.Stack)
}

const accountQuery = `query account($address: String) {
	transactions(address_friendly: $address, page_size: 1) {
		balance: account_storage_balance_grams
		state: account_state_type
	}
}`

type accountRow struct {
	Balance backend.Number `json:"balance"`
	State   string         `json:"state"`
}

// account returns nil for an address dton has never seen.
func (c *Client) account(ctx context.Context, addr Address) (*accountRow, error) {
	var res struct {
		Transactions []accountRow `json:"transactions"`
	}
	if err := c.graphql.Execute(ctx, accountQuery, map[string]interface{}{"address": friendly(addr)}, &res); err != nil {
		return nil, err
	}
	if len(res.Transactions) == 0 {
		return nil, nil
	}
	return &res.Transactions[0], nil
}

func (c *Client) GetBalance(ctx context.Context, addr Address) (*big.Int, error) {
	row, err := c.account(ctx, addr)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return new(big.Int), nil
	}
	balance, err := row.Balance.BigInt()
	if err != nil {
		return nil, err
	}
	return &balance.Int, nil
}

func (c *Client) GetState(ctx context.Context, addr Address) (AccountState, error) {
	row, err := c.account(ctx, addr)
	if err != nil {
		return "", err
	}
	if row == nil || len(row.State) == 0 {
		return StateUninitialized, nil
	}
	return ParseAccountState(row.State)
}

func (c *Client) GetWalletSeqno(ctx context.Context, addr Address) (uint32, error) {
	values, err := c.RunGetMethod(ctx, addr, "seqno", nil)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: seqno returned an empty stack", ErrUnexpectedStack)
	}
	seqno, err := values[0].Int()
	if err != nil {
		return 0, err
	}
	return uint32(seqno.Uint64()), nil
}

func (c *Client) SendRawMessage(ctx context.Context, boc []byte) (string, error) {
	return "", fmt.Errorf("%w: dton does not accept messages", ErrUnsupportedOperation)
}
