package models

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

type HashType string
type OpcodeType uint32

// NormalizeHash renders a 32-byte hash given in base64 or hex as lowercase
// hex. Other input is returned unchanged.
func NormalizeHash(s string) HashType {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return HashType(hex.EncodeToString(b))
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == 32 {
			return HashType(hex.EncodeToString(b))
		}
	}
	return HashType(s)
}

type AccountState string

const (
	StateUninitialized AccountState = "uninitialized"
	StateActive        AccountState = "active"
	StateFrozen        AccountState = "frozen"
)

// ParseAccountState normalizes the state names used by the different backends.
func ParseAccountState(s string) (AccountState, error) {
	switch s {
	case "active":
		return StateActive, nil
	case "frozen":
		return StateFrozen, nil
	case "uninitialized", "uninit", "empty", "nonexist", "non_existing":
		return StateUninitialized, nil
	}
	return "", fmt.Errorf("unknown account state: %s", s)
}

var opcodeNames = map[OpcodeType]string{
	0x00000000: "comment",
	0x5fcc3d14: "nft-transfer",
	0xd53276db: "excesses",
	0x05138d91: "nft-ownership-assigned",
	0x2fcb26a2: "nft-get-static-data",
	0x8b771735: "nft-report-static-data",
	0x0f8a7ea5: "jetton-transfer",
	0x7362d09c: "jetton-transfer-notification",
	0x595f07bc: "jetton-burn",
	0x178d4519: "jetton-internal-transfer",
	0x7bdd97de: "jetton-burn-notification",
}

// Name returns the message type for a known opcode and an empty string otherwise.
func (v OpcodeType) Name() string {
	return opcodeNames[v]
}

func (v OpcodeType) String() string {
	return fmt.Sprintf("0x%08x", uint32(v))
}

func (v OpcodeType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", v.String())), nil
}

// BigInt is an arbitrary precision integer marshaled as a decimal string.
type BigInt struct {
	big.Int
}

func NewBigInt(v *big.Int) BigInt {
	var n BigInt
	if v != nil {
		n.Set(v)
	}
	return n
}

func BigIntFromInt64(v int64) BigInt {
	var n BigInt
	n.SetInt64(v)
	return n
}

func ParseBigInt(s string) (BigInt, error) {
	var n BigInt
	if s == "" {
		return n, nil
	}
	if _, ok := n.SetString(s, 10); !ok {
		return n, fmt.Errorf("failed to parse amount %q", s)
	}
	return n, nil
}

func (n BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", n.Int.String())), nil
}

func (n *BigInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "null" {
		return nil
	}
	parsed, err := ParseBigInt(s)
	if err != nil {
		return err
	}
	n.Set(&parsed.Int)
	return nil
}

// Shift returns n / 10^decimals.
func (n BigInt) Shift(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(&n.Int, -decimals)
}
