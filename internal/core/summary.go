package core

// CategorySpend is the amount spent in one category during a month.
type CategorySpend struct {
	CategoryID string
	Name       string
	Slug       string
	Color      string
	Spent      Money
	Budget     Money
}

// Remaining is the budget left, negative when overspent. Zero budget means
// no budget and yields zero.
func (c CategorySpend) Remaining() Money {
	if c.Budget.Cents == 0 {
		return Money{}
	}
	return c.Budget.Sub(c.Spent)
}

// CategorySum is a raw per-category total as read from the store.
type CategorySum struct {
	CategoryID string
	Total      Money
	Count      int
}

// MonthOverview is a compact summary for one household in a specific year+month.
type MonthOverview struct {
	HouseholdID string
	Year        int
	Month       int // 1-12
	Total       Money
	Budget      Money
	ByCategory  []CategorySpend
}
