package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// Address is a standard account address. Two addresses are equal iff
// their workchain and hash are equal, so the type is safe to use with ==
// and as a map key.
type Address struct {
	Workchain int32
	Hash      [32]byte
}

// Rendering selects a textual form of an Address.
type Rendering struct {
	Raw        bool
	Bounceable bool
	Testnet    bool
	StdBase64  bool
}

var (
	RawForm               = Rendering{Raw: true}
	FriendlyBounceable    = Rendering{Bounceable: true}
	FriendlyNonBounceable = Rendering{}
)

func NewAddress(workchain int32, hash []byte) (Address, error) {
	if workchain < math.MinInt8 || workchain > math.MaxInt8 {
		return Address{}, fmt.Errorf("%w: workchain %d out of range", ErrInvalidAddress, workchain)
	}
	if len(hash) != 32 {
		return Address{}, fmt.Errorf("%w: hash length %d", ErrInvalidAddress, len(hash))
	}
	a := Address{Workchain: workchain}
	copy(a.Hash[:], hash)
	return a, nil
}

func MustAddress(text string) Address {
	a, err := ParseAddress(text)
	if err != nil {
		panic(err)
	}
	return a
}

func ParseAddress(text string) (Address, error) {
	a, _, err := ParseAddressRendering(text)
	return a, err
}

// ParseAddressOrNone is ParseAddress that returns nil for empty text, which
// backends use for external message endpoints.
func ParseAddressOrNone(text string) (*Address, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	a, err := ParseAddress(text)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ParseAddressRendering parses raw (wc:hex) and friendly (base64) forms and
// reports the rendering the text was written in.
func ParseAddressRendering(text string) (Address, Rendering, error) {
	text = strings.TrimSpace(text)
	if strings.Contains(text, ":") {
		addr, err := address.ParseRawAddr(text)
		if err != nil {
			return Address{}, Rendering{}, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, text, err)
		}
		a, err := FromTonutils(addr)
		return a, RawForm, err
	}
	if len(text) != 48 {
		return Address{}, Rendering{}, fmt.Errorf("%w: %s", ErrInvalidAddress, text)
	}
	std := strings.ContainsAny(text, "+/")
	urlSafe := strings.NewReplacer("+", "-", "/", "_").Replace(text)
	addr, err := address.ParseAddr(urlSafe)
	if err != nil {
		return Address{}, Rendering{}, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, text, err)
	}
	a, err := FromTonutils(addr)
	if err != nil {
		return Address{}, Rendering{}, err
	}
	return a, Rendering{Bounceable: addr.IsBounceable(), Testnet: addr.IsTestnetOnly(), StdBase64: std}, nil
}

func FromTonutils(addr *address.Address) (Address, error) {
	if addr == nil || addr.Type() != address.StdAddress {
		return Address{}, fmt.Errorf("%w: not a standard address", ErrInvalidAddress)
	}
	return NewAddress(addr.Workchain(), addr.Data())
}

func (a Address) ToTonutils() *address.Address {
	return address.NewAddress(0, byte(int8(a.Workchain)), a.Hash[:])
}

func (a Address) Format(r Rendering) string {
	if r.Raw {
		return a.Raw()
	}
	addr := a.ToTonutils()
	addr.SetBounce(r.Bounceable)
	addr.SetTestnetOnly(r.Testnet)
	s := addr.String()
	if r.StdBase64 {
		s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	}
	return s
}

func (a Address) Raw() string {
	return fmt.Sprintf("%d:%x", a.Workchain, a.Hash[:])
}

func (a Address) String() string {
	return a.Raw()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", a.Raw())), nil
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := ParseAddress(text)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
