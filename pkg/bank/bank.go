// Package bank wraps the corporate banking API used for seller and referrer
// payouts. The bank reports outcomes through a numeric result code; transport
// success alone never means the money moved.
package bank

// Result codes returned by the transfer endpoints. Negative codes are
// terminal rejections.
const (
	ResultCodePendingSignature = 0
	ResultCodeCompleted        = 1

	ResultCodeInvalidAccount    = -1
	ResultCodeInsufficientFunds = -2
	ResultCodeLimitExceeded     = -3
	ResultCodeAccountFrozen     = -4
	ResultCodeExpiredDocument   = -5
)

var resultMessages = map[int]string{
	ResultCodePendingSignature:  "transfer document awaiting signature",
	ResultCodeCompleted:         "transfer completed",
	ResultCodeInvalidAccount:    "recipient account rejected by bank",
	ResultCodeInsufficientFunds: "insufficient funds in withdrawal account",
	ResultCodeLimitExceeded:     "daily transfer limit exceeded",
	ResultCodeAccountFrozen:     "recipient account is frozen",
	ResultCodeExpiredDocument:   "transfer document expired before signature",
}

// ResultMessage translates a bank result code into an operator-facing message.
func ResultMessage(code int) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return "unrecognized bank result code"
}

// TransferRequest describes one outbound payout.
type TransferRequest struct {
	BankCode      string
	AccountNo     string
	AccountHolder string
	AmountCents   int64
	Reference     string
}

// TransferResult is the bank's answer to a transfer document submission.
// DocumentKey is the correlation handle for later status lookups.
type TransferResult struct {
	DocumentID  string
	DocumentKey string
	ResultCode  int
	Message     string
}

// DocumentStatus is the authoritative state of a previously submitted
// transfer document.
type DocumentStatus struct {
	DocumentKey string
	ResultCode  int
	Message     string
}

// IsTerminal reports whether the document reached a final state.
func (s DocumentStatus) IsTerminal() bool {
	return s.ResultCode != ResultCodePendingSignature
}

// Completed reports whether the transfer settled successfully.
func (s DocumentStatus) Completed() bool {
	return s.ResultCode == ResultCodeCompleted
}
