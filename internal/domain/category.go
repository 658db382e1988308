package domain

// Uncategorized is assigned when the classifier gives no usable label.
const Uncategorized = "Uncategorized"

// Categories is the closed set of spend labels a transaction can carry.
var Categories = []string{
	"Groceries",
	"Transport",
	"Utilities",
	"Insurance",
	"Shopping",
	"Subscriptions",
	"Entertainment",
	"Banking",
	"Income",
	"Fees",
	"Transfers",
	"Housing",
	"Cash Withdrawal",
	"Savings",
	Uncategorized,
}

// IsCategory reports whether label is an exact member of Categories.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}
