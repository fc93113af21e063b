// ABOUTME: The eight fixed upstream operations layered on Execute
// ABOUTME: Each pins an operation name, document, variable shape, and result unwrapping

package monarch

import (
	"context"
	"encoding/json"
	"time"
)

// Upstream operation names. These match the documents below and are sent as
// the GraphQL operationName on the wire.
const (
	opAccounts          = "GetAccounts"
	opTransactions      = "GetTransactionsList"
	opBudgets           = "GetBudgets"
	opCashflow          = "GetCashflow"
	opHoldings          = "GetHoldings"
	opCreateTransaction = "Common_CreateTransactionMutation"
	opUpdateTransaction = "Web_TransactionDrawerUpdateTransaction"
	opRefreshAccounts   = "ForceRefreshAccountsMutation"
)

// DefaultTransactionLimit caps the transaction list when the caller does
// not ask for a page size.
const DefaultTransactionLimit = 100

const dateLayout = "2006-01-02"

const queryAccounts = `query GetAccounts {
  accounts {
    id
    displayName
    isHidden
    isAsset
    includeInNetWorth
    currentBalance
    displayBalance
    updatedAt
    type { name display }
    subtype { name display }
    institution { id name }
  }
}`

// Accounts lists every account visible to the session.
func (c *Client) Accounts(ctx context.Context) (json.RawMessage, error) {
	data, err := c.Execute(ctx, opAccounts, queryAccounts, nil)
	if err != nil {
		return nil, err
	}
	return rootField(data, "accounts"), nil
}

const queryTransactions = `query GetTransactionsList($offset: Int, $limit: Int, $filters: TransactionFilterInput) {
  allTransactions(filters: $filters) {
    totalCount
    results(offset: $offset, limit: $limit) {
      id
      amount
      date
      pending
      notes
      isRecurring
      needsReview
      plaidName
      merchant { id name }
      category { id name }
      account { id displayName }
    }
  }
}`

// TransactionsParams filter and page the transaction list. StartDate and
// EndDate must be supplied together or not at all.
type TransactionsParams struct {
	Limit     int
	Offset    int
	StartDate string
	EndDate   string
	AccountID string
}

// Transactions lists transactions, newest first, honoring the optional
// date-window and account filters.
func (c *Client) Transactions(ctx context.Context, p TransactionsParams) (json.RawMessage, error) {
	if err := requireDatePair(p.StartDate, p.EndDate); err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}

	filters := map[string]any{}
	if p.StartDate != "" {
		filters["startDate"] = p.StartDate
		filters["endDate"] = p.EndDate
	}
	if p.AccountID != "" {
		filters["accounts"] = []string{p.AccountID}
	}

	vars := map[string]any{
		"offset":  p.Offset,
		"limit":   limit,
		"filters": filters,
	}

	data, err := c.Execute(ctx, opTransactions, queryTransactions, vars)
	if err != nil {
		return nil, err
	}
	return rootField(data, "allTransactions"), nil
}

const queryBudgets = `query GetBudgets($startDate: Date!, $endDate: Date!) {
  budgetData(startMonth: $startDate, endMonth: $endDate) {
    monthlyAmountsByCategory {
      category { id name }
      monthlyAmounts {
        month
        plannedCashFlowAmount
        actualAmount
        remainingAmount
      }
    }
    totalsByMonth {
      month
      totalIncome { plannedAmount actualAmount }
      totalExpenses { plannedAmount actualAmount }
    }
  }
  categoryGroups {
    id
    name
    type
  }
}`

// BudgetsParams bound the budget window. Both dates or neither.
type BudgetsParams struct {
	StartDate string
	EndDate   string
}

// Budgets fetches planned and actual budget amounts for a month window.
// With no window given it spans the previous month through the end of the
// next one, matching what the upstream web app requests by default.
func (c *Client) Budgets(ctx context.Context, p BudgetsParams) (json.RawMessage, error) {
	if err := requireDatePair(p.StartDate, p.EndDate); err != nil {
		return nil, err
	}

	start, end := p.StartDate, p.EndDate
	if start == "" {
		start, end = defaultBudgetWindow(time.Now())
	}

	vars := map[string]any{
		"startDate": start,
		"endDate":   end,
	}
	return c.Execute(ctx, opBudgets, queryBudgets, vars)
}

const queryCashflow = `query GetCashflow($filters: TransactionFilterInput) {
  summary: aggregates(filters: $filters, fillEmptyValues: true) {
    summary { sumIncome sumExpense savings savingsRate }
  }
  byCategory: aggregates(filters: $filters, groupBy: ["category"]) {
    groupBy {
      category {
        id
        name
        group { id type }
      }
    }
    summary { sum }
  }
}`

// CashflowParams bound the cashflow summary window. Both dates or neither.
type CashflowParams struct {
	StartDate string
	EndDate   string
}

// Cashflow summarizes income, expenses, and savings over a date window,
// defaulting to the current month.
func (c *Client) Cashflow(ctx context.Context, p CashflowParams) (json.RawMessage, error) {
	if err := requireDatePair(p.StartDate, p.EndDate); err != nil {
		return nil, err
	}

	start, end := p.StartDate, p.EndDate
	if start == "" {
		start, end = currentMonthWindow(time.Now())
	}

	vars := map[string]any{
		"filters": map[string]any{
			"search":     "",
			"categories": []string{},
			"accounts":   []string{},
			"tags":       []string{},
			"startDate":  start,
			"endDate":    end,
		},
	}
	return c.Execute(ctx, opCashflow, queryCashflow, vars)
}

const queryHoldings = `query GetHoldings($input: PortfolioInput) {
  portfolio(input: $input) {
    aggregateHoldings {
      edges {
        node {
          id
          quantity
          basis
          totalValue
          securityPriceChangeDollars
          securityPriceChangePercent
          lastSyncedAt
          holdings {
            id
            type
            typeDisplay
            name
            ticker
            closingPrice
            quantity
            value
          }
          security {
            id
            name
            type
            ticker
            currentPrice
          }
        }
      }
    }
  }
}`

// Holdings fetches investment holdings for a single account.
func (c *Client) Holdings(ctx context.Context, accountID string) (json.RawMessage, error) {
	vars := map[string]any{
		"input": map[string]any{
			"accountIds": []string{accountID},
		},
	}
	data, err := c.Execute(ctx, opHoldings, queryHoldings, vars)
	if err != nil {
		return nil, err
	}
	return rootField(data, "portfolio"), nil
}

const mutationCreateTransaction = `mutation Common_CreateTransactionMutation($input: CreateTransactionMutationInput!) {
  createTransaction(input: $input) {
    errors {
      message
      fieldErrors { field messages }
    }
    transaction { id }
  }
}`

// CreateTransactionParams describe a manual transaction to record.
type CreateTransactionParams struct {
	AccountID    string
	Amount       float64
	Date         string
	Description  string
	CategoryID   string
	MerchantName string
}

// CreateTransaction records a manual transaction. The upstream requires a
// merchant name on create, so the description doubles as the merchant when
// none is supplied separately.
func (c *Client) CreateTransaction(ctx context.Context, p CreateTransactionParams) (json.RawMessage, error) {
	merchant := p.MerchantName
	if merchant == "" {
		merchant = p.Description
	}

	input := map[string]any{
		"accountId":           p.AccountID,
		"amount":              p.Amount,
		"date":                p.Date,
		"merchantName":        merchant,
		"notes":               p.Description,
		"shouldUpdateBalance": false,
	}
	if p.CategoryID != "" {
		input["categoryId"] = p.CategoryID
	}

	data, err := c.Execute(ctx, opCreateTransaction, mutationCreateTransaction, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}
	return rootField(data, "createTransaction"), nil
}

const mutationUpdateTransaction = `mutation Web_TransactionDrawerUpdateTransaction($input: UpdateTransactionMutationInput!) {
  updateTransaction(input: $input) {
    errors {
      message
      fieldErrors { field messages }
    }
    transaction {
      id
      amount
      date
      notes
      category { id name }
    }
  }
}`

// UpdateTransactionParams carry the fields to change on an existing
// transaction. Amount is a pointer so zero is distinguishable from unset.
type UpdateTransactionParams struct {
	TransactionID string
	Amount        *float64
	Date          string
	Description   string
	CategoryID    string
}

// UpdateTransaction modifies an existing transaction, sending only the
// fields that were supplied.
func (c *Client) UpdateTransaction(ctx context.Context, p UpdateTransactionParams) (json.RawMessage, error) {
	input := map[string]any{"id": p.TransactionID}
	if p.Amount != nil {
		input["amount"] = *p.Amount
	}
	if p.Date != "" {
		input["date"] = p.Date
	}
	if p.Description != "" {
		input["notes"] = p.Description
	}
	if p.CategoryID != "" {
		input["categoryId"] = p.CategoryID
	}

	data, err := c.Execute(ctx, opUpdateTransaction, mutationUpdateTransaction, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}
	return rootField(data, "updateTransaction"), nil
}

const mutationRefreshAccounts = `mutation ForceRefreshAccountsMutation($input: ForceRefreshAccountsInput!) {
  forceRefreshAccounts(input: $input) {
    success
    errors { message }
  }
}`

// RefreshAccounts asks the upstream to re-sync account data from the
// institutions. An empty id list requests a refresh of everything; no extra
// round-trip is made here to enumerate accounts first.
func (c *Client) RefreshAccounts(ctx context.Context, accountIDs []string) (json.RawMessage, error) {
	if accountIDs == nil {
		accountIDs = []string{}
	}
	vars := map[string]any{
		"input": map[string]any{"accountIds": accountIDs},
	}
	data, err := c.Execute(ctx, opRefreshAccounts, mutationRefreshAccounts, vars)
	if err != nil {
		return nil, err
	}
	return rootField(data, "forceRefreshAccounts"), nil
}

// requireDatePair enforces the both-or-neither rule on a date window
// before any upstream call is made.
func requireDatePair(start, end string) error {
	switch {
	case start != "" && end == "":
		return &DateRangeError{Have: "start_date", Missing: "end_date"}
	case end != "" && start == "":
		return &DateRangeError{Have: "end_date", Missing: "start_date"}
	}
	return nil
}

// defaultBudgetWindow spans the first of the previous month through the
// last day of the next month.
func defaultBudgetWindow(now time.Time) (string, string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, -1, 0)
	end := first.AddDate(0, 2, -1)
	return start.Format(dateLayout), end.Format(dateLayout)
}

// currentMonthWindow spans the first through the last day of the current
// month.
func currentMonthWindow(now time.Time) (string, string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format(dateLayout), last.Format(dateLayout)
}
