// Package toncenter implements backend.Provider over toncenter api/v2.
package toncenter

import (
	"context"
	"encoding/base64"
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
)

const (
	MainnetEndpoint = "https://toncenter.com/api/v2"
	TestnetEndpoint = "https://testnet.toncenter.com/api/v2"

	DefaultPageSize = 100
)

type Settings struct {
	Endpoint string
	ApiKey   string
}

type Client struct {
	*contracts.Contracts
	settings  Settings
	transport backend.Transport
}

var _ backend.Provider = (*Client)(nil)

func New(transport backend.Transport, resolver *content.Resolver, names *markets.Registry, settings Settings) *Client {
	if len(settings.Endpoint) == 0 {
		settings.Endpoint = MainnetEndpoint
	}
	settings.Endpoint = strings.TrimSuffix(settings.Endpoint, "/")
	c := &Client{settings: settings, transport: transport}
	c.Contracts = contracts.New(c, resolver, names)
	return c
}

type v2Response struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	req := backend.Request{
		Method: method,
		URL:    c.settings.Endpoint + "/" + path,
		Query:  params,
	}
	if len(c.settings.ApiKey) > 0 {
		req.Headers = map[string]string{"X-API-Key": c.settings.ApiKey}
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

	var res v2Response
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return fmt.Errorf("%w: failed to parse %s response (status %d): %v", ErrBackendUnavailable, path, resp.Status, err)
	}
	if !res.Ok {
		code := res.Code
		if code == 0 {
			code = resp.Status
		}
		if code == fiber.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, path, res.Error)
		}
		return IndexError{Code: code, Message: fmt.Sprintf("%s: %s", path, res.Error)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", path, err)
	}
	return nil
}

type runGetMethodResult struct {
	GasUsed  int64         `json:"gas_used"`
	ExitCode int64         `json:"exit_code"`
	Stack    []interface{} `json:"stack"`
}

func (c *Client) RunGetMethod(ctx context.Context, addr Address, method string, args []stack.Value) ([]stack.Value, error) {
	encoded, err := stack.ToPositional(args)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"address": addr.Raw(),
		"method":  method,
		"stack":   encoded,
	}
	var res runGetMethodResult
	if err := c.call(ctx, fiber.MethodPost, "runGetMethod", nil, body, &res); err != nil {
		return nil, err
	}
	// exit code 1 is the alternative success code of the TVM
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, &ReadMethodError{Method: method, ExitCode: res.ExitCode}
	}
	values, err := stack.FromPositional(res.Stack)
	if err != nil {
		return nil, fmt.Errorf("failed to decode api/v2 stack: %w", err)
	}
	return values, nil
}

func addressParams(addr Address) url.Values {
	params := url.Values{}
	params.Add("address", addr.Raw())
	return params
}

// amount accepts both quoted and bare numbers.
func amount(raw json.RawMessage) (*big.Int, error) {
	v, err := ParseBigInt(strings.Trim(string(raw), "\""))
	if err != nil {
		return nil, err
	}
	return &v.Int, nil
}

func (c *Client) GetBalance(ctx context.Context, addr Address) (*big.Int, error) {
	var res json.RawMessage
	if err := c.call(ctx, fiber.MethodGet, "getAddressBalance", addressParams(addr), nil, &res); err != nil {
		return nil, err
	}
	return amount(res)
}

func (c *Client) GetState(ctx context.Context, addr Address) (AccountState, error) {
	var res string
	if err := c.call(ctx, fiber.MethodGet, "getAddressState", addressParams(addr), nil, &res); err != nil {
		return "", err
	}
	return ParseAccountState(res)
}

type sendResult struct {
	Hash string `json:"hash"`
}

// SendRawMessage submits a serialized external message and returns its hash.
func (c *Client) SendRawMessage(ctx context.Context, boc []byte) (string, error) {
	body := map[string]string{"boc": base64.StdEncoding.EncodeToString(boc)}
	var res sendResult
	if err := c.call(ctx, fiber.MethodPost, "sendBocReturnHash", nil, body, &res); err != nil {
		return "", err
	}
	return string(NormalizeHash(res.Hash)), nil
}
