package dton

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/toncenter/ton-tools-go/tontools/backend"
	. "github.com/toncenter/ton-tools-go/tontools/models"
)

const jettonQuery = `query get_jetton($address: String) {
	transactions(account: {address_friendly: $address}, page_size: 1) {
		supply: parsed_jetton_total_supply
		offchain_url: parsed_jetton_content_offchain_url
		name: parsed_jetton_content_name_value
		description: parsed_jetton_content_description_value
		image: parsed_jetton_content_image_value
		image_data: parsed_jetton_content_image_data_value
		symbol: parsed_jetton_content_symbol_value
		decimals: parsed_jetton_content_decimals_value
	}
}`

type jettonRow struct {
	Supply      backend.Number `json:"supply"`
	OffchainUrl *string        `json:"offchain_url"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Image       *string        `json:"image"`
	ImageData   *string        `json:"image_data"`
	Symbol      *string        `json:"symbol"`
	Decimals    backend.Number `json:"decimals"`
}

func (r *jettonRow) onchain() map[string]interface{} {
	res := map[string]interface{}{}
	for key, v := range map[string]*string{
		"name":        r.Name,
		"description": r.Description,
		"image":       r.Image,
		"image_data":  r.ImageData,
		"symbol":      r.Symbol,
	} {
		if v != nil && len(*v) > 0 {
			res[key] = *v
		}
	}
	if !r.Decimals.IsEmpty() {
		res["decimals"] = string(r.Decimals)
	}
	return res
}

// GetJettonData prefers the off-chain json and fills keys it lacks from the
// on-chain content.
func (c *Client) GetJettonData(ctx context.Context, master Address) (*Jetton, error) {
	row, err := latest[jettonRow](ctx, c, jettonQuery, master, "jetton")
	if err != nil {
		return nil, err
	}
	supply, err := row.Supply.BigInt()
	if err != nil {
		return nil, fmt.Errorf("jetton supply: %w", err)
	}
	meta := c.metadata(ctx, row.OffchainUrl)
	for k, v := range row.onchain() {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	return &Jetton{Address: master, Info: NewJettonInfo(supply, meta)}, nil
}

const jettonWalletQuery = `query get_jetton_wallet($address_hex: String, $address_wc: Int) {
	account_states(address: $address_hex, workchain: $address_wc) {
		balance: parsed_jetton_wallet_balance
		owner_wc: parsed_jetton_wallet_owner_address_workchain
		owner_hex: parsed_jetton_wallet_owner_address_address
		master_wc: parsed_jetton_wallet_jetton_address_workchain
		master_hex: parsed_jetton_wallet_jetton_address_address
		code: account_state_state_init_code
	}
}`

type jettonWalletRow struct {
	Balance   backend.Number `json:"balance"`
	OwnerWc   *int32         `json:"owner_wc"`
	OwnerHex  *string        `json:"owner_hex"`
	MasterWc  *int32         `json:"master_wc"`
	MasterHex *string        `json:"master_hex"`
	Code      string         `json:"code"`
}

func (c *Client) GetJettonWallet(ctx context.Context, addr Address) (*JettonWallet, error) {
	var res struct {
		AccountStates []jettonWalletRow `json:"account_states"`
	}
	if err := c.accountState(ctx, jettonWalletQuery, addr, &res); err != nil {
		return nil, err
	}
	if len(res.AccountStates) == 0 {
		return nil, notFound("jetton wallet", addr)
	}
	row := res.AccountStates[0]
	info := &JettonWalletInfo{}
	var err error
	if info.Balance, err = row.Balance.BigInt(); err != nil {
		return nil, fmt.Errorf("jetton wallet balance: %w", err)
	}
	if info.Owner, err = requireAddress(row.OwnerWc, row.OwnerHex, "jetton wallet owner"); err != nil {
		return nil, err
	}
	master, err := requireAddress(row.MasterWc, row.MasterHex, "jetton master")
	if err != nil {
		return nil, err
	}
	info.Jetton = NewJettonStub(master)
	if len(row.Code) > 0 {
		if info.Code, err = base64.StdEncoding.DecodeString(row.Code); err != nil {
			return nil, fmt.Errorf("%w: jetton wallet code: %v", ErrMalformedBoc, err)
		}
	}
	return &JettonWallet{Address: addr, Info: info}, nil
}

const jettonWalletAddressQuery = `query get_jetton_wallet_address($minter: String, $user: String) {
	getJettonWalletAddress(minter_address: $minter, user_address: $user)
}`

func (c *Client) GetJettonWalletAddress(ctx context.Context, master, owner Address) (Address, error) {
	var res struct {
		Address string `json:"getJettonWalletAddress"`
	}
	vars := map[string]interface{}{
		"minter": friendly(master),
		"user":   friendly(owner),
	}
	if err := c.graphql.Execute(ctx, jettonWalletAddressQuery, vars, &res); err != nil {
		return Address{}, err
	}
	return ParseAddress(res.Address)
}
