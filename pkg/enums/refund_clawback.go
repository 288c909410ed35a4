package enums

import "fmt"

// RefundClawback selects what happens when a transaction already claimed by a
// processed payout is refunded.
type RefundClawback string

const (
	// RefundClawbackOutOfBand only raises a reconciliation event.
	RefundClawbackOutOfBand RefundClawback = "out_of_band"
	// RefundClawbackDebitNextPayout appends a reversal row that the next payout nets out.
	RefundClawbackDebitNextPayout RefundClawback = "debit_next_payout"
)

// ParseRefundClawback converts raw configuration into a RefundClawback.
func ParseRefundClawback(value string) (RefundClawback, error) {
	switch RefundClawback(value) {
	case RefundClawbackOutOfBand, RefundClawbackDebitNextPayout:
		return RefundClawback(value), nil
	case "":
		return RefundClawbackOutOfBand, nil
	default:
		return "", fmt.Errorf("invalid refund clawback policy %q", value)
	}
}
