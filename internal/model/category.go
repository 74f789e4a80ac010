package model

import "strings"

// Category is one of the fixed spending categories a transaction can carry.
type Category string

// Spending categories.
const (
	CategoryFood            Category = "Food/Dining"
	CategoryLiving          Category = "Living/Utilities"
	CategoryTransport       Category = "Transport"
	CategoryShopping        Category = "Shopping"
	CategoryEntertainment   Category = "Entertainment"
	CategoryHealth          Category = "Health"
	CategorySpecialOccasion Category = "Special Occasion"
	CategorySubscription    Category = "Subscription"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryLiving,
	CategoryTransport,
	CategoryShopping,
	CategoryEntertainment,
	CategoryHealth,
	CategorySpecialOccasion,
	CategorySubscription,
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory matches a category name case-insensitively.
// The second return value is false when nothing matches.
func ParseCategory(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, known := range Categories {
		if strings.EqualFold(name, string(known)) {
			return known, true
		}
	}
	return "", false
}

// CategoryNames returns the category names as plain strings.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}
