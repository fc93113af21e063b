// ABOUTME: The fixed catalog of eight Monarch Money tools
// ABOUTME: Ties each published descriptor to a dispatch kind and a compiled input schema

package tools

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// toolKind tags each catalog entry for dispatch. Every kind must be handled
// in the dispatch switch; there is no generic handler path.
type toolKind int

const (
	kindAccounts toolKind = iota
	kindTransactions
	kindBudgets
	kindCashflow
	kindHoldings
	kindCreateTransaction
	kindUpdateTransaction
	kindRefreshAccounts
)

// definition ties a published tool to its dispatch kind and input schema.
type definition struct {
	kind        toolKind
	name        string
	description string
	schema      string
}

// definitions is the whole catalog. The gateway serves exactly these tools;
// nothing registers tools at runtime.
var definitions = []definition{
	{
		kind:        kindAccounts,
		name:        "get_accounts",
		description: "Get all financial accounts from Monarch Money with balances, types, and institutions.",
		schema:      `{"type":"object","properties":{}}`,
	},
	{
		kind:        kindTransactions,
		name:        "get_transactions",
		description: "Get transactions from Monarch Money, newest first. Supports paging, a YYYY-MM-DD date window (both ends or neither), and an account filter.",
		schema:      `{"type":"object","properties":{"limit":{"type":"integer","minimum":1},"offset":{"type":"integer","minimum":0},"start_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"end_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"account_id":{"type":"string"}}}`,
	},
	{
		kind:        kindBudgets,
		name:        "get_budgets",
		description: "Get budgeted versus actual amounts by category for a YYYY-MM-DD month window (both ends or neither).",
		schema:      `{"type":"object","properties":{"start_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"end_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"}}}`,
	},
	{
		kind:        kindCashflow,
		name:        "get_cashflow",
		description: "Get a cashflow analysis of income, expenses, and savings over a YYYY-MM-DD date window (both ends or neither).",
		schema:      `{"type":"object","properties":{"start_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"end_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"}}}`,
	},
	{
		kind:        kindHoldings,
		name:        "get_account_holdings",
		description: "Get investment holdings for a specific investment account.",
		schema:      `{"type":"object","properties":{"account_id":{"type":"string","minLength":1}},"required":["account_id"]}`,
	},
	{
		kind:        kindCreateTransaction,
		name:        "create_transaction",
		description: "Create a new transaction in Monarch Money. Amount is positive for income, negative for expenses; date is YYYY-MM-DD.",
		schema:      `{"type":"object","properties":{"account_id":{"type":"string","minLength":1},"amount":{"type":"number"},"date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"description":{"type":"string"},"category_id":{"type":"string"},"merchant_name":{"type":"string"}},"required":["account_id","amount","date","description"]}`,
	},
	{
		kind:        kindUpdateTransaction,
		name:        "update_transaction",
		description: "Update an existing transaction in Monarch Money. Only the supplied fields change; date is YYYY-MM-DD.",
		schema:      `{"type":"object","properties":{"transaction_id":{"type":"string","minLength":1},"amount":{"type":"number"},"date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"description":{"type":"string"},"category_id":{"type":"string"}},"required":["transaction_id"]}`,
	},
	{
		kind:        kindRefreshAccounts,
		name:        "refresh_accounts",
		description: "Request account data refresh from financial institutions. With no account_ids everything refreshes.",
		schema:      `{"type":"object","properties":{"account_ids":{"type":"array","items":{"type":"string"}}}}`,
	},
}

// Descriptor is the wire form of one tool in a tools/list response.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type entry struct {
	def      definition
	compiled *jsonschema.Schema
}

// Registry holds the compiled catalog and dispatches calls against it.
type Registry struct {
	order  []*entry
	byName map[string]*entry
}

// NewRegistry compiles the catalog. The schemas are compile-time constants,
// so a failure here is a programming error and panics.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*entry, len(definitions))}
	for _, def := range definitions {
		e := &entry{
			def:      def,
			compiled: jsonschema.MustCompileString(def.name+".json", def.schema),
		}
		r.order = append(r.order, e)
		r.byName[def.name] = e
	}
	return r
}

// Descriptors lists every tool in catalog order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, Descriptor{
			Name:        e.def.name,
			Description: e.def.description,
			InputSchema: json.RawMessage(e.def.schema),
		})
	}
	return out
}
