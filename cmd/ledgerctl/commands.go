package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorvault-backend/internal/app"
	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	"github.com/angelmondragon/creatorvault-backend/internal/payouts"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/pagination"
)

type command func(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error)

var commands = map[string]command{
	"get":             getTransaction,
	"refund":          refund,
	"dispute":         dispute,
	"access":          access,
	"balance":         balance,
	"creator-stats":   creatorStats,
	"payouts":         listPayouts,
	"payout-request":  requestPayout,
	"payout-approve":  approvePayout,
	"payout-reject":   rejectPayout,
	"payout-complete": completePayout,
	"payout-cancel":   cancelPayout,
	"dead-letters":    listDeadLetters,
	"dead-letter":     getDeadLetter,
}

var errUsage = errors.New("usage: ledgerctl <command> [flags]")

// run dispatches one command and writes its result to out as indented JSON.
func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w; commands: %s", errUsage, strings.Join(commandNames(), ", "))
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q; commands: %s", errUsage, args[0], strings.Join(commandNames(), ", "))
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	result, err := cmd(ctx, a, fs, args[1:])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getTransaction(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	id := fs.String("id", "", "transaction id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	txnID, err := parseID("id", *id)
	if err != nil {
		return nil, err
	}
	return a.Ledger.Get(ctx, txnID)
}

func refund(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	input, err := parseReversal(fs, args)
	if err != nil {
		return nil, err
	}
	return a.Ledger.Refund(ctx, ledger.RefundInput(input))
}

func dispute(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	input, err := parseReversal(fs, args)
	if err != nil {
		return nil, err
	}
	return a.Ledger.Dispute(ctx, input)
}

func parseReversal(fs *flag.FlagSet, args []string) (ledger.DisputeInput, error) {
	id := fs.String("id", "", "transaction id")
	reason := fs.String("reason", "", "reason recorded in the status history")
	actor := fs.String("admin", "", "acting admin id (empty for system)")
	if err := fs.Parse(args); err != nil {
		return ledger.DisputeInput{}, flagError{err}
	}
	txnID, err := parseID("id", *id)
	if err != nil {
		return ledger.DisputeInput{}, err
	}
	actorID, err := parseOptionalID("admin", *actor)
	if err != nil {
		return ledger.DisputeInput{}, err
	}
	return ledger.DisputeInput{TransactionID: txnID, Reason: *reason, ActorID: actorID}, nil
}

func access(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	member := fs.String("member", "", "member id")
	content := fs.String("content", "", "content id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	memberID, err := parseID("member", *member)
	if err != nil {
		return nil, err
	}
	contentID, err := parseID("content", *content)
	if err != nil {
		return nil, err
	}
	return a.Entitlements.Resolve(ctx, memberID, contentID)
}

func balance(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	creator := fs.String("creator", "", "creator id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	creatorID, err := parseID("creator", *creator)
	if err != nil {
		return nil, err
	}
	return a.Payouts.AvailableBalance(ctx, creatorID)
}

func creatorStats(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	creator := fs.String("creator", "", "creator id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	creatorID, err := parseID("creator", *creator)
	if err != nil {
		return nil, err
	}
	if a.Stats == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis is not available; creator stats are disabled")
	}
	stats, err := a.Stats.CreatorStats(ctx, creatorID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read creator stats")
	}
	return map[string]any{"creator_id": creatorID, "unlocks": stats.Unlocks, "earnings": stats.Earnings}, nil
}

func listPayouts(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	creator := fs.String("creator", "", "creator id")
	limit := fs.Int("limit", pagination.DefaultLimit, "page size")
	cursor := fs.String("cursor", "", "next_cursor from the previous page")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	creatorID, err := parseID("creator", *creator)
	if err != nil {
		return nil, err
	}
	return a.Payouts.ListByCreator(ctx, creatorID, pagination.Params{Limit: *limit, Cursor: *cursor})
}

func requestPayout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	creator := fs.String("creator", "", "creator id")
	amount := fs.String("amount", "", "requested amount")
	email := fs.String("email", "", "paypal email (defaults to creator settings)")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	creatorID, err := parseID("creator", *creator)
	if err != nil {
		return nil, err
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*amount))
	if err != nil {
		return nil, flagError{fmt.Errorf("invalid -amount %q: %w", *amount, err)}
	}
	return a.Payouts.RequestPayout(ctx, payouts.RequestPayoutInput{CreatorID: creatorID, Amount: value, PaypalEmail: *email})
}

func approvePayout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	id, admin := fs.String("id", "", "payout request id"), fs.String("admin", "", "admin id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	requestID, adminID, err := parseReview(*id, *admin)
	if err != nil {
		return nil, err
	}
	return a.Payouts.Approve(ctx, payouts.ReviewInput{RequestID: requestID, AdminID: adminID})
}

func rejectPayout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	id, admin := fs.String("id", "", "payout request id"), fs.String("admin", "", "admin id")
	reason := fs.String("reason", "", "rejection reason")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	requestID, adminID, err := parseReview(*id, *admin)
	if err != nil {
		return nil, err
	}
	return a.Payouts.Reject(ctx, payouts.RejectInput{RequestID: requestID, AdminID: adminID, Reason: *reason})
}

func completePayout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	id, admin := fs.String("id", "", "payout request id"), fs.String("admin", "", "admin id")
	ref := fs.String("ref", "", "external payment reference")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	requestID, err := parseID("id", *id)
	if err != nil {
		return nil, err
	}
	adminID, err := parseOptionalID("admin", *admin)
	if err != nil {
		return nil, err
	}
	return a.Payouts.MarkProcessed(ctx, payouts.MarkProcessedInput{RequestID: requestID, AdminID: adminID, PaymentReference: *ref})
}

func cancelPayout(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	id, creator := fs.String("id", "", "payout request id"), fs.String("creator", "", "creator id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	requestID, err := parseID("id", *id)
	if err != nil {
		return nil, err
	}
	creatorID, err := parseID("creator", *creator)
	if err != nil {
		return nil, err
	}
	return a.Payouts.Cancel(ctx, payouts.CancelInput{RequestID: requestID, CreatorID: creatorID})
}

func parseReview(id, admin string) (uuid.UUID, uuid.UUID, error) {
	requestID, err := parseID("id", id)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	adminID, err := parseID("admin", admin)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return requestID, adminID, nil
}

func parseID(flagName, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, flagError{fmt.Errorf("invalid -%s %q: %w", flagName, value, err)}
	}
	return id, nil
}

func parseOptionalID(flagName, value string) (uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return uuid.Nil, nil
	}
	return parseID(flagName, value)
}

func listDeadLetters(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	reason := fs.String("reason", "", "max_attempts or non_retryable")
	limit := fs.Int("limit", pagination.DefaultLimit, "page size")
	cursor := fs.String("cursor", "", "next_cursor from the previous page")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	return a.DeadLetters.List(ctx, enums.OutboxDLQErrorReason(*reason), pagination.Params{Limit: *limit, Cursor: *cursor})
}

func getDeadLetter(ctx context.Context, a *app.App, fs *flag.FlagSet, args []string) (any, error) {
	event := fs.String("event", "", "outbox event id")
	if err := fs.Parse(args); err != nil {
		return nil, flagError{err}
	}
	eventID, err := parseID("event", *event)
	if err != nil {
		return nil, err
	}
	return a.DeadLetters.Get(ctx, eventID)
}
