package domain

// AlphaUSDAddress is the token contract used to price every plan.
const AlphaUSDAddress = "0x20c0000000000000000000000000000000000001"

// MinorUnitsPerToken converts a plan price into the token's smallest unit.
const MinorUnitsPerToken = 1_000_000

// Plan is a subscription plan: a fixed price pulled every interval.
type Plan struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`           // whole tokens per charge
	CurrencyAddress string `json:"currencyAddress"` // token contract
	IntervalSeconds int64  `json:"intervalSeconds"` // seconds between charges
}

// AmountMinor returns the on-chain transfer amount in minor units.
func (p Plan) AmountMinor() int64 {
	return p.Price * MinorUnitsPerToken
}

// Catalog is an immutable plan lookup table, built once at startup and
// injected into whatever needs it.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

// NewCatalog builds a catalog from the given plans.
func NewCatalog(plans []Plan) *Catalog {
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &Catalog{plans: plans, byID: byID}
}

// DefaultCatalog returns the demo plan table.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Plan{
		{
			ID:              "hourly_rate",
			Name:            "Hourly Rate",
			Price:           12, // $12 AlphaUSD every 5 minutes ($60/hr)
			CurrencyAddress: AlphaUSDAddress,
			IntervalSeconds: 300,
		},
		{
			ID:              "daily_rate",
			Name:            "Daily Rate",
			Price:           50, // $50 AlphaUSD every hour ($1200/day)
			CurrencyAddress: AlphaUSDAddress,
			IntervalSeconds: 3600,
		},
		{
			ID:              "monthly_rate",
			Name:            "Monthly Rate",
			Price:           1000, // $1000 AlphaUSD every day ($30,000/mo)
			CurrencyAddress: AlphaUSDAddress,
			IntervalSeconds: 86400,
		},
	})
}

// Plans returns all plans in declaration order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Lookup returns the plan for the given ID.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}
