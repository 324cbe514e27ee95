package models

import (
	"context"
	"encoding/json"
	"strconv"
)

const DefaultJettonDecimals = 9

type JettonSource interface {
	GetJettonData(ctx context.Context, master Address) (*Jetton, error)
}

type JettonWalletSource interface {
	GetJettonWallet(ctx context.Context, addr Address) (*JettonWallet, error)
}

type Jetton struct {
	Address Address
	Info    *JettonInfo
}

type JettonInfo struct {
	Supply      BigInt
	Decimals    int32
	Name        string
	Symbol      string
	Description string
	Image       string
	Metadata    map[string]interface{}
}

func NewJettonStub(addr Address) *Jetton {
	return &Jetton{Address: addr}
}

func (j *Jetton) IsFull() bool {
	return j.Info != nil
}

func (j *Jetton) Refresh(ctx context.Context, src JettonSource) error {
	jetton, err := src.GetJettonData(ctx, j.Address)
	if err != nil {
		return err
	}
	j.Info = jetton.Info
	return nil
}

// TokenSupply is the total supply expressed in whole tokens.
func (j *JettonInfo) TokenSupply() string {
	return j.Supply.Shift(j.Decimals).String()
}

func (j *Jetton) MarshalJSON() ([]byte, error) {
	if j.Info == nil {
		return json.Marshal(addressOnly{j.Address})
	}
	return json.Marshal(struct {
		Address     Address `json:"address"`
		Supply      BigInt  `json:"supply"`
		Decimals    int32   `json:"decimals"`
		Symbol      string  `json:"symbol"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Image       string  `json:"image"`
		TokenSupply string  `json:"token_supply"`
	}{j.Address, j.Info.Supply, j.Info.Decimals, j.Info.Symbol, j.Info.Name, j.Info.Description, j.Info.Image, j.Info.TokenSupply()})
}

// NewJettonInfo builds jetton info from a content map, falling back to the
// default number of decimals when the content does not specify it.
func NewJettonInfo(supply BigInt, content map[string]interface{}) *JettonInfo {
	info := &JettonInfo{
		Supply:   supply,
		Decimals: DefaultJettonDecimals,
		Metadata: content,
	}
	info.Name, _ = content["name"].(string)
	info.Symbol, _ = content["symbol"].(string)
	info.Description, _ = content["description"].(string)
	info.Image, _ = content["image"].(string)
	switch v := content["decimals"].(type) {
	case float64:
		info.Decimals = int32(v)
	case int:
		info.Decimals = int32(v)
	case int32:
		info.Decimals = v
	case string:
		if d, err := strconv.Atoi(v); err == nil {
			info.Decimals = int32(d)
		}
	}
	return info
}

type JettonWallet struct {
	Address Address
	Info    *JettonWalletInfo
}

type JettonWalletInfo struct {
	Balance BigInt
	Owner   Address
	Jetton  *Jetton
	Code    []byte
}

func NewJettonWalletStub(addr Address) *JettonWallet {
	return &JettonWallet{Address: addr}
}

func (w *JettonWallet) IsFull() bool {
	return w.Info != nil
}

func (w *JettonWallet) Refresh(ctx context.Context, src JettonWalletSource) error {
	wallet, err := src.GetJettonWallet(ctx, w.Address)
	if err != nil {
		return err
	}
	w.Info = wallet.Info
	return nil
}

func (w *JettonWallet) MarshalJSON() ([]byte, error) {
	if w.Info == nil {
		return json.Marshal(addressOnly{w.Address})
	}
	var master *Address
	if w.Info.Jetton != nil {
		master = &w.Info.Jetton.Address
	}
	return json.Marshal(struct {
		Address             Address  `json:"address"`
		Balance             BigInt   `json:"balance"`
		Owner               Address  `json:"owner"`
		JettonMasterAddress *Address `json:"jetton_master_address"`
	}{w.Address, w.Info.Balance, w.Info.Owner, master})
}
