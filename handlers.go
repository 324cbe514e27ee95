package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/toncenter/ton-tools-go/tontools/account"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/toncenter/ton-tools-go/tontools/stack"
)

type AddressRequest struct {
	Address string `query:"address"`
}

type AddressesRequest struct {
	Address []string `query:"address"`
}

type TransactionsRequest struct {
	Address  string `query:"address"`
	Limit    int    `query:"limit"`
	PageSize int    `query:"page_size"`
	Summary  bool   `query:"summary"`
}

type CollectionItemsRequest struct {
	Address  string `query:"address"`
	PageSize int    `query:"page_size"`
}

type JettonWalletAddressRequest struct {
	Master string `query:"master"`
	Owner  string `query:"owner"`
}

type RunGetMethodRequest struct {
	Address string        `json:"address"`
	Method  string        `json:"method"`
	Stack   []interface{} `json:"stack"`
}

type SendBocRequest struct {
	Boc string `json:"boc"`
}

type Handlers struct {
	provider backend.Provider
	settings Settings
}

func (h *Handlers) Register(app *fiber.App) {
	app.Get("/healthcheck", HealthCheck)

	v1 := app.Group("/api/v1")
	v1.Get("/account/balance", h.GetBalance)
	v1.Get("/account/state", h.GetState)
	v1.Get("/account/transactions", h.GetTransactions)
	v1.Get("/wallet/seqno", h.GetWalletSeqno)
	v1.Post("/runGetMethod", h.PostRunGetMethod)

	v1.Get("/nft/item", h.GetNftItem)
	v1.Get("/nft/items", h.GetNftItems)
	v1.Get("/nft/owner", h.GetNftOwner)
	v1.Get("/nft/collection", h.GetCollection)
	v1.Get("/nft/collectionItems", h.GetCollectionItems)

	v1.Get("/jetton/master", h.GetJettonMaster)
	v1.Get("/jetton/wallet", h.GetJettonWallet)
	v1.Get("/jetton/walletAddress", h.GetJettonWalletAddress)

	v1.Post("/sendBoc", h.PostSendBoc)
}

func parseQueryAddress(c *fiber.Ctx) (Address, error) {
	var req AddressRequest
	if err := c.QueryParser(&req); err != nil {
		return Address{}, IndexError{Code: 422, Message: err.Error()}
	}
	if len(req.Address) == 0 {
		return Address{}, IndexError{Code: 401, Message: "address is required"}
	}
	return ParseAddress(req.Address)
}

func (h *Handlers) GetBalance(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	balance, err := account.New(h.provider, addr).Balance(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"address": addr, "balance": balance.String()})
}

func (h *Handlers) GetState(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	state, err := account.New(h.provider, addr).State(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"address": addr, "state": state})
}

func (h *Handlers) GetTransactions(c *fiber.Ctx) error {
	var req TransactionsRequest
	if err := c.QueryParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	addr, err := ParseAddress(req.Address)
	if err != nil {
		return err
	}
	if req.Limit < 0 || req.PageSize < 0 {
		return IndexError{Code: 422, Message: "limit and page_size must be non-negative"}
	}
	if req.Limit == 0 || req.Limit > h.settings.MaxLimit {
		req.Limit = h.settings.MaxLimit
	}
	txs, err := account.New(h.provider, addr).Transactions(c.UserContext(), req.Limit, req.PageSize)
	if err != nil {
		return err
	}
	if !req.Summary {
		return c.JSON(fiber.Map{"transactions": txs})
	}
	summaries := make([]TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		summaries = append(summaries, tx.Summary(FriendlyBounceable))
	}
	return c.JSON(fiber.Map{"transactions": summaries})
}

func (h *Handlers) GetWalletSeqno(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	seqno, err := account.NewWallet(h.provider, addr).Seqno(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"address": addr, "seqno": seqno})
}

func (h *Handlers) PostRunGetMethod(c *fiber.Ctx) error {
	var req RunGetMethodRequest
	if err := c.BodyParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	if len(req.Address) == 0 {
		return IndexError{Code: 401, Message: "address is required"}
	}
	if len(req.Method) == 0 {
		return IndexError{Code: 401, Message: "method is required"}
	}
	addr, err := ParseAddress(req.Address)
	if err != nil {
		return err
	}
	args, err := stack.FromPositional(req.Stack)
	if err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	res, err := account.New(h.provider, addr).RunGetMethod(c.UserContext(), req.Method, args...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"stack": res})
}

func (h *Handlers) GetNftItem(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	item, err := h.provider.GetNftItem(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *Handlers) GetNftItems(c *fiber.Ctx) error {
	var req AddressesRequest
	if err := c.QueryParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	if len(req.Address) == 0 {
		return IndexError{Code: 401, Message: "address is required"}
	}
	if len(req.Address) > h.settings.MaxLimit {
		return IndexError{Code: 422, Message: fmt.Sprintf("at most %d addresses are allowed", h.settings.MaxLimit)}
	}
	addrs := make([]Address, 0, len(req.Address))
	for _, s := range req.Address {
		addr, err := ParseAddress(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	items, err := h.provider.GetNftItems(c.UserContext(), addrs, h.settings.Concurrency)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"nft_items": items})
}

func (h *Handlers) GetNftOwner(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	owner, err := h.provider.GetNftOwner(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"address": addr, "owner": owner})
}

func (h *Handlers) GetCollection(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	collection, err := h.provider.GetCollection(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(collection)
}

func (h *Handlers) GetCollectionItems(c *fiber.Ctx) error {
	var req CollectionItemsRequest
	if err := c.QueryParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	addr, err := ParseAddress(req.Address)
	if err != nil {
		return err
	}
	if req.PageSize <= 0 {
		req.PageSize = h.settings.Concurrency
	}
	items, err := h.provider.GetCollectionItems(c.UserContext(), NewNftCollectionStub(addr), req.PageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"nft_items": items})
}

func (h *Handlers) GetJettonMaster(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	jetton, err := h.provider.GetJettonData(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(jetton)
}

func (h *Handlers) GetJettonWallet(c *fiber.Ctx) error {
	addr, err := parseQueryAddress(c)
	if err != nil {
		return err
	}
	wallet, err := h.provider.GetJettonWallet(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(wallet)
}

func (h *Handlers) GetJettonWalletAddress(c *fiber.Ctx) error {
	var req JettonWalletAddressRequest
	if err := c.QueryParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	master, err := ParseAddress(req.Master)
	if err != nil {
		return err
	}
	owner, err := ParseAddress(req.Owner)
	if err != nil {
		return err
	}
	addr, err := h.provider.GetJettonWalletAddress(c.UserContext(), master, owner)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"jetton_wallet": addr})
}

func (h *Handlers) PostSendBoc(c *fiber.Ctx) error {
	var req SendBocRequest
	if err := c.BodyParser(&req); err != nil {
		return IndexError{Code: 422, Message: err.Error()}
	}
	if len(req.Boc) == 0 {
		return IndexError{Code: 401, Message: "boc is required"}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Boc))
	if err != nil {
		return IndexError{Code: 422, Message: fmt.Sprintf("boc is not base64: %v", err)}
	}
	hash, err := h.provider.SendRawMessage(c.UserContext(), data)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"hash": hash})
}

func HealthCheck(c *fiber.Ctx) error {
	return c.Status(200).SendString("OK")
}

func ExtractParam(ctx *fiber.Ctx, header string, query string) (string, bool) {
	result := ``
	found := false
	if val := ctx.GetReqHeaders()[header]; len(val) > 0 {
		result = val[0]
		found = true
	}
	if val, ok := ctx.Queries()[query]; len(query) > 0 && ok {
		result = val
		found = true
	}
	return result, found
}

func ErrorHandlerFunc(ctx *fiber.Ctx, err error) error {
	api_key, _ := ExtractParam(ctx, "X-Api-Key", "api_key")
	ip := ctx.IP()
	if ips := ctx.IPs(); len(ips) > 0 {
		ip = ips[0]
	}

	if fe, ok := err.(*fiber.Error); ok {
		return ctx.Status(fe.Code).JSON(IndexError{Code: fe.Code, Message: fe.Message})
	}

	e := AsIndexError(err)
	switch {
	case e.Code == 404:
	case e.Code >= 500:
		log.Errorf("Code: %d Path: %s IP: %s API Key: %s Queries: %v Body: %s Error: %s",
			e.Code, ctx.Path(), ip, api_key, ctx.Queries(), string(ctx.Body()), err.Error())
	default:
		log.Warnf("Code: %d Path: %s IP: %s Queries: %v Error: %s",
			e.Code, ctx.Path(), ip, ctx.Queries(), err.Error())
	}
	return ctx.Status(e.Code).JSON(e)
}
