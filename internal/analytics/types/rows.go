package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// LedgerEventRow mirrors the ledger_events BigQuery schema. Amounts are
// NUMERIC columns; nil leaves them NULL.
type LedgerEventRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	TransactionID   *string            `bigquery:"transaction_id"`
	PayoutRequestID *string            `bigquery:"payout_request_id"`
	MemberID        *string            `bigquery:"member_id"`
	CreatorID       string             `bigquery:"creator_id"`
	TransactionType *string            `bigquery:"transaction_type"`
	Status          string             `bigquery:"status"`
	Amount          *big.Rat           `bigquery:"amount"`
	CreatorEarnings *big.Rat           `bigquery:"creator_earnings"`
	Currency        *string            `bigquery:"currency"`
	Reason          *string            `bigquery:"reason"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// LedgerEventSchema is the column layout LedgerEventRow is written against.
var LedgerEventSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "transaction_id", Type: cbigquery.StringFieldType},
	{Name: "payout_request_id", Type: cbigquery.StringFieldType},
	{Name: "member_id", Type: cbigquery.StringFieldType},
	{Name: "creator_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "transaction_type", Type: cbigquery.StringFieldType},
	{Name: "status", Type: cbigquery.StringFieldType, Required: true},
	{Name: "amount", Type: cbigquery.NumericFieldType},
	{Name: "creator_earnings", Type: cbigquery.NumericFieldType},
	{Name: "currency", Type: cbigquery.StringFieldType},
	{Name: "reason", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}
