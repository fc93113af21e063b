// ABOUTME: Validates tool arguments and dispatches each call to the upstream client
// ABOUTME: Exhaustive switch over tool kinds; results become pretty-printed text blocks

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/2389/monarch-gateway/internal/monarch"
)

// Upstream is the slice of the session client the dispatcher needs. The
// concrete client in internal/monarch satisfies it.
type Upstream interface {
	Accounts(ctx context.Context) (json.RawMessage, error)
	Transactions(ctx context.Context, p monarch.TransactionsParams) (json.RawMessage, error)
	Budgets(ctx context.Context, p monarch.BudgetsParams) (json.RawMessage, error)
	Cashflow(ctx context.Context, p monarch.CashflowParams) (json.RawMessage, error)
	Holdings(ctx context.Context, accountID string) (json.RawMessage, error)
	CreateTransaction(ctx context.Context, p monarch.CreateTransactionParams) (json.RawMessage, error)
	UpdateTransaction(ctx context.Context, p monarch.UpdateTransactionParams) (json.RawMessage, error)
	RefreshAccounts(ctx context.Context, accountIDs []string) (json.RawMessage, error)
}

// Result is the payload of a successful tools/call.
type Result struct {
	Content []Content `json:"content"`
}

// Content is one MCP content block. This server only produces text blocks.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Call validates the arguments for the named tool and runs it against the
// upstream. Unknown names and schema violations return typed errors before
// any upstream traffic.
func (r *Registry) Call(ctx context.Context, up Upstream, name string, args json.RawMessage) (*Result, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	if err := e.validate(args); err != nil {
		return nil, err
	}

	raw, err := dispatch(ctx, up, e, args)
	if err != nil {
		return nil, err
	}
	return textResult(raw), nil
}

// validate checks the arguments against the tool's compiled schema. Absent
// or null arguments count as an empty object.
func (e *entry) validate(args json.RawMessage) error {
	var v any = map[string]any{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &v); err != nil {
			return &ArgumentError{Tool: e.def.name, Detail: "arguments are not valid JSON"}
		}
	}
	if err := e.compiled.Validate(v); err != nil {
		return &ArgumentError{Tool: e.def.name, Detail: schemaDetail(err)}
	}
	return nil
}

type transactionsArgs struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	AccountID string `json:"account_id"`
}

type dateWindowArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type holdingsArgs struct {
	AccountID string `json:"account_id"`
}

type createTransactionArgs struct {
	AccountID    string  `json:"account_id"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	Description  string  `json:"description"`
	CategoryID   string  `json:"category_id"`
	MerchantName string  `json:"merchant_name"`
}

type updateTransactionArgs struct {
	TransactionID string   `json:"transaction_id"`
	Amount        *float64 `json:"amount"`
	Date          string   `json:"date"`
	Description   string   `json:"description"`
	CategoryID    string   `json:"category_id"`
}

type refreshAccountsArgs struct {
	AccountIDs []string `json:"account_ids"`
}

// dispatch routes a validated call to the upstream operation for its kind.
// The switch is exhaustive over the catalog; a fallthrough here means a
// kind was added without a handler.
func dispatch(ctx context.Context, up Upstream, e *entry, args json.RawMessage) (json.RawMessage, error) {
	switch e.def.kind {
	case kindAccounts:
		return up.Accounts(ctx)

	case kindTransactions:
		var a transactionsArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.Transactions(ctx, monarch.TransactionsParams{
			Limit:     a.Limit,
			Offset:    a.Offset,
			StartDate: a.StartDate,
			EndDate:   a.EndDate,
			AccountID: a.AccountID,
		})

	case kindBudgets:
		var a dateWindowArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.Budgets(ctx, monarch.BudgetsParams{StartDate: a.StartDate, EndDate: a.EndDate})

	case kindCashflow:
		var a dateWindowArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.Cashflow(ctx, monarch.CashflowParams{StartDate: a.StartDate, EndDate: a.EndDate})

	case kindHoldings:
		var a holdingsArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.Holdings(ctx, a.AccountID)

	case kindCreateTransaction:
		var a createTransactionArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.CreateTransaction(ctx, monarch.CreateTransactionParams{
			AccountID:    a.AccountID,
			Amount:       a.Amount,
			Date:         a.Date,
			Description:  a.Description,
			CategoryID:   a.CategoryID,
			MerchantName: a.MerchantName,
		})

	case kindUpdateTransaction:
		var a updateTransactionArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.UpdateTransaction(ctx, monarch.UpdateTransactionParams{
			TransactionID: a.TransactionID,
			Amount:        a.Amount,
			Date:          a.Date,
			Description:   a.Description,
			CategoryID:    a.CategoryID,
		})

	case kindRefreshAccounts:
		var a refreshAccountsArgs
		if err := decodeInto(e.def.name, args, &a); err != nil {
			return nil, err
		}
		return up.RefreshAccounts(ctx, a.AccountIDs)
	}

	return nil, fmt.Errorf("no handler for tool %s", e.def.name)
}

func decodeInto(name string, args json.RawMessage, dst any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return &ArgumentError{Tool: name, Detail: fmt.Sprintf("decoding arguments: %v", err)}
	}
	return nil
}

func textResult(raw json.RawMessage) *Result {
	return &Result{Content: []Content{{Type: "text", Text: prettyJSON(raw)}}}
}

// prettyJSON re-indents the upstream payload so tool output reads well in a
// client. Payloads that will not indent cleanly pass through untouched.
func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// schemaDetail flattens a validation error into the leaf-level messages,
// which name the offending fields without the schema traversal noise.
func schemaDetail(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var parts []string
	collectLeaves(ve, &parts)
	if len(parts) == 0 {
		return ve.Message
	}
	return strings.Join(parts, "; ")
}

func collectLeaves(ve *jsonschema.ValidationError, parts *[]string) {
	if len(ve.Causes) == 0 {
		if ve.InstanceLocation == "" {
			*parts = append(*parts, ve.Message)
		} else {
			*parts = append(*parts, fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message))
		}
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, parts)
	}
}
