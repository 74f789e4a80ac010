package model

import "github.com/shopspring/decimal"

// IntentKind tags the variant carried by an Intent.
type IntentKind string

// Intent kinds.
const (
	IntentUnrecognized       IntentKind = "unrecognized"
	IntentSetLimit           IntentKind = "set_limit"
	IntentAddSubscription    IntentKind = "add_sub"
	IntentCancelSubscription IntentKind = "cancel_sub"
	IntentExpense            IntentKind = "expense"
)

// Intent is the structured meaning of a free-text chat message.
// Only the fields relevant to Kind are populated.
type Intent struct {
	Kind     IntentKind
	ItemName string // expense item or subscription service name
	Category Category
	Amount   decimal.Decimal
}

// Unrecognized is returned when a message could not be classified.
func Unrecognized() Intent {
	return Intent{Kind: IntentUnrecognized}
}

// SetLimit builds a weekly limit intent.
func SetLimit(amount decimal.Decimal) Intent {
	return Intent{Kind: IntentSetLimit, Amount: amount}
}

// AddSubscription builds a new-subscription intent.
func AddSubscription(serviceName string, amount decimal.Decimal) Intent {
	return Intent{Kind: IntentAddSubscription, ItemName: serviceName, Amount: amount}
}

// CancelSubscription builds a cancellation intent.
func CancelSubscription(serviceName string) Intent {
	return Intent{Kind: IntentCancelSubscription, ItemName: serviceName}
}

// Expense builds a one-off expense intent.
func Expense(itemName string, amount decimal.Decimal, category Category) Intent {
	return Intent{Kind: IntentExpense, ItemName: itemName, Amount: amount, Category: category}
}
