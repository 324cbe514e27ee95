package parse

import (
	"fmt"

	"github.com/toncenter/ton-tools-go/tontools/boc"
	. "github.com/toncenter/ton-tools-go/tontools/models"
	"github.com/xssnick/tonutils-go/tlb"
)

// PhaseFlags are the explicit success flags some backends report.
type PhaseFlags struct {
	Compute *bool
	Action  *bool
}

func (f PhaseFlags) known() bool {
	return f.Compute != nil || f.Action != nil
}

// TransactionSuccess prefers explicit flags and falls back to decoding the
// raw transaction cell.
func TransactionSuccess(flags PhaseFlags, raw *boc.Cell) (bool, error) {
	if flags.known() {
		ok := true
		if flags.Compute != nil {
			ok = ok && *flags.Compute
		}
		if flags.Action != nil {
			ok = ok && *flags.Action
		}
		return ok, nil
	}
	if raw == nil {
		return false, fmt.Errorf("%w: no phase flags and no transaction data", ErrMalformedBoc)
	}
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return false, err
	}
	return TlbTransactionSuccess(tx), nil
}

func DecodeTransaction(raw *boc.Cell) (*tlb.Transaction, error) {
	c, err := raw.ToTonutils()
	if err != nil {
		return nil, err
	}
	var tx tlb.Transaction
	if err := tlb.LoadFromCell(&tx, c.BeginParse()); err != nil {
		return nil, fmt.Errorf("%w: transaction: %v", ErrMalformedBoc, err)
	}
	return &tx, nil
}

// TlbTransactionSuccess reports false when the compute phase ran with a
// non-zero exit code or the action phase has a non-zero result code.
func TlbTransactionSuccess(tx *tlb.Transaction) bool {
	desc, ok := tx.Description.(*tlb.TransactionDescriptionOrdinary)
	if !ok {
		return true
	}
	if cp, ok := desc.ComputePhase.Phase.(*tlb.ComputePhaseVM); ok {
		if cp.Details.ExitCode != 0 {
			return false
		}
	}
	if desc.ActionPhase != nil && desc.ActionPhase.ResultCode != 0 {
		return false
	}
	return true
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// SuccessFromData classifies a transaction from its raw cell encoded in hex
// or base64. Empty data is reported as successful.
func SuccessFromData(data string) (bool, error) {
	if data == "" {
		return true, nil
	}
	var raw *boc.Cell
	var err error
	if isHex(data) {
		raw, err = boc.DecodeHex(data)
	} else {
		raw, err = boc.DecodeBase64(data)
	}
	if err != nil {
		return false, err
	}
	return TransactionSuccess(PhaseFlags{}, raw)
}
