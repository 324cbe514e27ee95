package account

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const defaultMode = wallet.PayGasSeparately + wallet.IgnoreErrors

var (
	DefaultJettonFee = decimal.RequireFromString("0.06")
	DefaultNftFee    = decimal.RequireFromString("0.02")
)

type jettonTransfer struct {
	_                   tlb.Magic        `tlb:"#0f8a7ea5"`
	QueryID             uint64           `tlb:"## 64"`
	Amount              tlb.Coins        `tlb:"."`
	Destination         *address.Address `tlb:"addr"`
	ResponseDestination *address.Address `tlb:"addr"`
	CustomPayload       *cell.Cell       `tlb:"maybe ^"`
	ForwardTONAmount    tlb.Coins        `tlb:"."`
	ForwardPayload      *cell.Cell       `tlb:"either . ^"`
}

type nftTransfer struct {
	_                   tlb.Magic        `tlb:"#5fcc3d14"`
	QueryID             uint64           `tlb:"## 64"`
	NewOwner            *address.Address `tlb:"addr"`
	ResponseDestination *address.Address `tlb:"addr"`
	CustomPayload       *cell.Cell       `tlb:"maybe ^"`
	ForwardTONAmount    tlb.Coins        `tlb:"."`
	ForwardPayload      *cell.Cell       `tlb:"either . ^"`
}

// Wallet is an account that can send messages when it holds a Signer.
type Wallet struct {
	*Account
	signer Signer
}

// NewWallet gives read-only access to the wallet at addr.
func NewWallet(provider backend.Provider, addr Address) *Wallet {
	return &Wallet{Account: New(provider, addr)}
}

// FromSigner binds a signer to the provider. The wallet address is the one
// the signer derives.
func FromSigner(provider backend.Provider, signer Signer) *Wallet {
	return &Wallet{Account: New(provider, signer.Address()), signer: signer}
}

func FromSeed(provider backend.Provider, words []string, version wallet.Version) (*Wallet, error) {
	signer, err := NewSeedSigner(words, version)
	if err != nil {
		return nil, err
	}
	return FromSigner(provider, signer), nil
}

// Create generates a new mnemonic and the wallet it controls. The words are
// the only way to restore the wallet later.
func Create(provider backend.Provider, version wallet.Version) (*Wallet, []string, error) {
	words := wallet.NewSeed()
	w, err := FromSeed(provider, words, version)
	if err != nil {
		return nil, nil, err
	}
	return w, words, nil
}

func (w *Wallet) HasAccess() bool {
	return w.signer != nil
}

// Seqno returns zero for wallets that are not deployed yet.
func (w *Wallet) Seqno(ctx context.Context) (uint32, error) {
	state, err := w.State(ctx)
	if err != nil {
		return 0, err
	}
	if state != StateActive {
		return 0, nil
	}
	return w.provider.GetWalletSeqno(ctx, w.Address)
}

// send signs messages with the current seqno and submits them. A wallet
// that is not deployed yet is deployed by the same message.
func (w *Wallet) send(ctx context.Context, messages ...*wallet.Message) (string, error) {
	if !w.HasAccess() {
		return "", ErrNoAccess
	}
	state, err := w.State(ctx)
	if err != nil {
		return "", err
	}
	if state == StateFrozen {
		return "", fmt.Errorf("%w: wallet %s is frozen", ErrUnsupportedOperation, w.Address)
	}
	deploy := state != StateActive
	var seqno uint32
	if !deploy {
		if seqno, err = w.provider.GetWalletSeqno(ctx, w.Address); err != nil {
			return "", err
		}
	}
	boc, err := w.signer.SignExternal(ctx, seqno, deploy, messages)
	if err != nil {
		return "", err
	}
	log.Debugf("sending %d messages from %s seqno %d deploy %v", len(messages), w.Address, seqno, deploy)
	return w.provider.SendRawMessage(ctx, boc)
}

func toCoins(amount decimal.Decimal) (tlb.Coins, error) {
	if amount.IsNegative() {
		return tlb.Coins{}, fmt.Errorf("negative amount %s", amount)
	}
	return tlb.FromTON(amount.String())
}

func internal(to Address, bounce bool, amount tlb.Coins, body *cell.Cell) *wallet.Message {
	return &wallet.Message{
		Mode: defaultMode,
		InternalMessage: &tlb.InternalMessage{
			IHRDisabled: true,
			Bounce:      bounce,
			DstAddr:     to.ToTonutils(),
			Amount:      amount,
			Body:        body,
		},
	}
}

// TransferTon sends amount TON with an optional text comment. Transfers to
// accounts that are not deployed are not bounceable.
func (w *Wallet) TransferTon(ctx context.Context, to Address, amount decimal.Decimal, comment string) (string, error) {
	if !w.HasAccess() {
		return "", ErrNoAccess
	}
	coins, err := toCoins(amount)
	if err != nil {
		return "", err
	}
	var body *cell.Cell
	if comment != "" {
		if body, err = wallet.CreateCommentCell(comment); err != nil {
			return "", err
		}
	}
	state, err := w.provider.GetState(ctx, to)
	if err != nil {
		return "", err
	}
	return w.send(ctx, internal(to, state == StateActive, coins, body))
}

// TransferJetton sends amount whole tokens of the jetton to the owner at
// to. The transfer goes to the sender's own jetton wallet with fee TON
// attached, and the excess comes back to this wallet.
func (w *Wallet) TransferJetton(ctx context.Context, to, master Address, amount, fee decimal.Decimal) (string, error) {
	if !w.HasAccess() {
		return "", ErrNoAccess
	}
	feeCoins, err := toCoins(fee)
	if err != nil {
		return "", err
	}
	jetton, err := w.provider.GetJettonData(ctx, master)
	if err != nil {
		return "", err
	}
	units := amount.Shift(jetton.Info.Decimals)
	if !units.IsInteger() || units.IsNegative() {
		return "", fmt.Errorf("amount %s does not fit %d decimals", amount, jetton.Info.Decimals)
	}
	jettonWallet, err := w.provider.GetJettonWalletAddress(ctx, master, w.Address)
	if err != nil {
		return "", err
	}
	body, err := tlb.ToCell(jettonTransfer{
		Amount:              tlb.FromNanoTON(units.BigInt()),
		Destination:         to.ToTonutils(),
		ResponseDestination: w.Address.ToTonutils(),
		ForwardTONAmount:    tlb.ZeroCoins,
		ForwardPayload:      cell.BeginCell().EndCell(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build jetton transfer: %w", err)
	}
	return w.send(ctx, internal(jettonWallet, true, feeCoins, body))
}

// TransferNft hands the item over to newOwner. The excess of fee comes
// back to this wallet.
func (w *Wallet) TransferNft(ctx context.Context, item, newOwner Address, fee decimal.Decimal) (string, error) {
	if !w.HasAccess() {
		return "", ErrNoAccess
	}
	feeCoins, err := toCoins(fee)
	if err != nil {
		return "", err
	}
	body, err := tlb.ToCell(nftTransfer{
		NewOwner:            newOwner.ToTonutils(),
		ResponseDestination: w.Address.ToTonutils(),
		ForwardTONAmount:    tlb.ZeroCoins,
		ForwardPayload:      cell.BeginCell().EndCell(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build nft transfer: %w", err)
	}
	return w.send(ctx, internal(item, true, feeCoins, body))
}

// Deploy sends the state init with no outgoing messages. On a deployed
// wallet it only increments the seqno.
func (w *Wallet) Deploy(ctx context.Context) (string, error) {
	return w.send(ctx)
}
