package account

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"sync"

	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

// Signer wraps internal messages into signed external messages for one
// wallet contract.
type Signer interface {
	Address() Address
	// SignExternal returns the serialized external message. With deploy set
	// the message carries the wallet state init.
	SignExternal(ctx context.Context, seqno uint32, deploy bool, messages []*wallet.Message) ([]byte, error)
}

var versions = map[string]wallet.Version{
	"v3r1": wallet.V3R1,
	"v3r2": wallet.V3R2,
	"v4r2": wallet.V4R2,
}

// ParseVersion accepts v3r1, v3r2 and v4r2 in any case.
func ParseVersion(s string) (wallet.Version, error) {
	v, ok := versions[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: wallet version %q", ErrUnsupportedOperation, s)
	}
	return v, nil
}

type seedSigner struct {
	mu      sync.Mutex
	w       *wallet.Wallet
	version wallet.Version
	addr    Address
}

// NewSeedSigner derives the key and wallet address from a mnemonic. The
// wallet is never bound to a lite client: seqno and account state come
// from the caller.
func NewSeedSigner(words []string, version wallet.Version) (Signer, error) {
	w, err := wallet.FromSeed(nil, words, version)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet: %w", err)
	}
	addr, err := FromTonutils(w.WalletAddress())
	if err != nil {
		return nil, err
	}
	return &seedSigner{w: w, version: version, addr: addr}, nil
}

func (s *seedSigner) Address() Address {
	return s.addr
}

type seqnoSetter interface {
	SetSeqnoFetcher(func(ctx context.Context, subWallet uint32) (uint32, error))
}

func (s *seedSigner) SignExternal(ctx context.Context, seqno uint32, deploy bool, messages []*wallet.Message) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := s.w.GetSpec()
	setter, ok := spec.(seqnoSetter)
	if !ok {
		return nil, fmt.Errorf("%w: wallet %v has no seqno", ErrUnsupportedOperation, s.version)
	}
	setter.SetSeqnoFetcher(func(context.Context, uint32) (uint32, error) {
		return seqno, nil
	})
	builder, ok := spec.(wallet.RegularBuilder)
	if !ok {
		return nil, fmt.Errorf("%w: wallet %v", ErrUnsupportedOperation, s.version)
	}
	body, err := builder.BuildMessage(ctx, !deploy, nil, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet message: %w", err)
	}

	ext := &tlb.ExternalMessage{
		DstAddr: s.w.WalletAddress(),
		Body:    body,
	}
	if deploy {
		pub := s.w.PrivateKey().Public().(ed25519.PublicKey)
		ext.StateInit, err = wallet.GetStateInit(pub, s.version, wallet.DefaultSubwallet)
		if err != nil {
			return nil, fmt.Errorf("failed to build state init: %w", err)
		}
	}
	root, err := tlb.ToCell(ext)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize external message: %w", err)
	}
	return root.ToBOC(), nil
}
