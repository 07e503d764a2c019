package enums

import "fmt"

// TransactionKind classifies a signed balance transaction row.
type TransactionKind string

const (
	TransactionKindSaleCredit          TransactionKind = "sale_credit"
	TransactionKindCommissionCredit    TransactionKind = "commission_credit"
	TransactionKindCommissionReversal  TransactionKind = "commission_reversal"
	TransactionKindWithdrawalPending   TransactionKind = "withdrawal_pending"
	TransactionKindWithdrawalCompleted TransactionKind = "withdrawal_completed"
	TransactionKindWithdrawalFailed    TransactionKind = "withdrawal_failed"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindSaleCredit,
	TransactionKindCommissionCredit,
	TransactionKindCommissionReversal,
	TransactionKindWithdrawalPending,
	TransactionKindWithdrawalCompleted,
	TransactionKindWithdrawalFailed,
}

// String implements fmt.Stringer.
func (t TransactionKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionKind.
func (t TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
