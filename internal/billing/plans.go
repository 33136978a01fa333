// Package billing holds the plan catalog and keeps subscription records in
// sync with Stripe.
package billing

import "math"

// Unlimited marks a limit with no cap.
const Unlimited = -1

type Limits struct {
	Customers    int `json:"customers"`
	Leads        int `json:"leads"`
	LandingPages int `json:"landingPages"`
	StorageMB    int `json:"storage"`
	TeamMembers  int `json:"teamMembers"`
}

// Plan is a subscription tier. Prices are in cents.
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PriceMonthly int      `json:"priceMonthly"`
	Features     []string `json:"features"`
	Limits       Limits   `json:"limits"`
	Popular      bool     `json:"isPopular,omitempty"`
}

var (
	PlanStarter = Plan{
		ID:           "starter",
		Name:         "Starter",
		PriceMonthly: 999,
		Features:     []string{"Up to 50 customers", "Up to 100 leads", "1 landing page", "Basic analytics", "Email support", "1GB storage"},
		Limits:       Limits{Customers: 50, Leads: 100, LandingPages: 1, StorageMB: 1024, TeamMembers: 1},
	}

	PlanProfessional = Plan{
		ID:           "professional",
		Name:         "Professional",
		PriceMonthly: 2999,
		Features: []string{
			"Up to 500 customers", "Up to 1000 leads", "5 landing pages", "Advanced analytics",
			"Priority support", "10GB storage", "Team collaboration", "Custom branding", "Data export",
		},
		Limits:  Limits{Customers: 500, Leads: 1000, LandingPages: 5, StorageMB: 10240, TeamMembers: 5},
		Popular: true,
	}

	PlanBusiness = Plan{
		ID:           "business",
		Name:         "Business",
		PriceMonthly: 7999,
		Features: []string{
			"Unlimited customers", "Unlimited leads", "Unlimited landing pages", "Advanced analytics & reporting",
			"24/7 priority support", "100GB storage", "Unlimited team members", "Custom integrations",
			"White-label options", "API access", "Advanced security",
		},
		Limits: Limits{Customers: Unlimited, Leads: Unlimited, LandingPages: Unlimited, StorageMB: 102400, TeamMembers: Unlimited},
	}

	PlanEnterprise = Plan{
		ID:           "enterprise",
		Name:         "Enterprise",
		PriceMonthly: 19999,
		Features: []string{
			"Everything in Business", "Custom pricing", "Dedicated account manager", "Custom development",
			"On-premise deployment", "Advanced security & compliance", "SLA guarantees", "Training & onboarding",
		},
		Limits: Limits{Customers: Unlimited, Leads: Unlimited, LandingPages: Unlimited, StorageMB: Unlimited, TeamMembers: Unlimited},
	}

	// AllPlans is the ordered catalog.
	AllPlans = []Plan{PlanStarter, PlanProfessional, PlanBusiness, PlanEnterprise}
)

// PlanByID looks up a plan by its identifier. Returns nil if not found.
func PlanByID(id string) *Plan {
	for i := range AllPlans {
		if AllPlans[i].ID == id {
			return &AllPlans[i]
		}
	}
	return nil
}

func ValidPlan(id string) bool {
	return PlanByID(id) != nil
}

// PriceYearly bills ten months for a year, rounded to whole currency units.
func (p Plan) PriceYearly() int {
	return int(math.Round(float64(p.PriceMonthly)*10/100)) * 100
}

// YearlySavings is the difference between twelve monthly payments and the
// yearly price.
func (p Plan) YearlySavings() int {
	return p.PriceMonthly*12 - p.PriceYearly()
}

func PopularPlan() *Plan {
	for i := range AllPlans {
		if AllPlans[i].Popular {
			return &AllPlans[i]
		}
	}
	return nil
}
