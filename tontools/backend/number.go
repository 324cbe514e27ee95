package backend

import (
	"strconv"
	"strings"

	. "github.com/toncenter/ton-tools-go/tontools/models"
)

// Number is a json scalar that backends send either bare or quoted. Null
// decodes to the empty value.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "null" {
		s = ""
	}
	*n = Number(s)
	return nil
}

func (n Number) IsEmpty() bool {
	return len(n) == 0
}

func (n Number) BigInt() (BigInt, error) {
	return ParseBigInt(string(n))
}

func (n Number) Uint64() (uint64, error) {
	if n.IsEmpty() {
		return 0, nil
	}
	return strconv.ParseUint(string(n), 10, 64)
}

func (n Number) Int64() (int64, error) {
	if n.IsEmpty() {
		return 0, nil
	}
	return strconv.ParseInt(string(n), 10, 64)
}

// Bool accepts true/false and 1/0.
func (n Number) Bool() bool {
	return n == "true" || n == "1"
}
