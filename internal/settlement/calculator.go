// Package settlement derives the monetary fields of an activation from its
// raw ledger inputs. Everything here is pure and safe for concurrent use.
package settlement

import (
	"fmt"
	"math"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// MaxAmount bounds every raw input so sums cannot overflow int64.
const MaxAmount int64 = 1_000_000_000_000

// basisPoints is the denominator of TaxRateBP.
const basisPoints = 10_000

// Input holds the raw, client-supplied amounts of one sale in minor units.
type Input struct {
	BasePrice      int64 `json:"base_price"`
	Verbal1        int64 `json:"verbal1"`
	Verbal2        int64 `json:"verbal2"`
	GradeAmount    int64 `json:"grade_amount"`
	AddonAmount    int64 `json:"addon_amount"`
	CashReceived   int64 `json:"cash_received"`
	UsimFee        int64 `json:"usim_fee"`
	NewMNPDiscount int64 `json:"new_mnp_discount"`
	Deduction      int64 `json:"deduction"`
	Payback        int64 `json:"payback"`
}

// Result holds the derived fields. Only the calculator produces them.
type Result struct {
	MarginBeforeTax  int64 `json:"margin_before_tax"`
	MarginAfterTax   int64 `json:"margin_after_tax"`
	SettlementAmount int64 `json:"settlement_amount"`
	Tax              int64 `json:"tax"`
}

// Side tells whether a ledger line adds to or subtracts from the margin.
type Side int

const (
	Credit Side = 1
	Debit  Side = -1
)

// Line is one signed contribution to the ledger.
type Line struct {
	Field      string `json:"field"`
	Amount     int64  `json:"amount"`
	Side       Side   `json:"side"`
	Settlement bool   `json:"settlement"`
}

// Lines lays the input out as a ledger. Settlement lines are the dealer-paid
// part that makes up settlement_amount.
func (in Input) Lines() []Line {
	return []Line{
		{Field: "base_price", Amount: in.BasePrice, Side: Credit, Settlement: true},
		{Field: "verbal1", Amount: in.Verbal1, Side: Credit, Settlement: true},
		{Field: "verbal2", Amount: in.Verbal2, Side: Credit, Settlement: true},
		{Field: "grade_amount", Amount: in.GradeAmount, Side: Credit, Settlement: true},
		{Field: "addon_amount", Amount: in.AddonAmount, Side: Credit, Settlement: true},
		{Field: "cash_received", Amount: in.CashReceived, Side: Credit},
		{Field: "usim_fee", Amount: in.UsimFee, Side: Debit},
		{Field: "new_mnp_discount", Amount: in.NewMNPDiscount, Side: Debit},
		{Field: "deduction", Amount: in.Deduction, Side: Debit},
		{Field: "payback", Amount: in.Payback, Side: Debit},
	}
}

// Calculator applies a Policy to inputs.
type Calculator struct {
	policy Policy
}

// New returns a calculator for policy.
func New(policy Policy) (Calculator, error) {
	if err := policy.Validate(); err != nil {
		return Calculator{}, err
	}
	return Calculator{policy: policy}, nil
}

// Policy returns the policy in effect.
func (c Calculator) Policy() Policy { return c.policy }

// Compute derives margin and settlement from the ledger. Identical input
// always yields identical output; negative margins are kept as-is.
func (c Calculator) Compute(in Input) (Result, error) {
	var settlementAmount, margin int64
	for _, line := range in.Lines() {
		if line.Amount > MaxAmount || line.Amount < -MaxAmount {
			return Result{}, shared.FieldErrors{line.Field: fmt.Sprintf("must be within ±%d", MaxAmount)}
		}
		signed := int64(line.Side) * line.Amount
		var ok bool
		if margin, ok = addChecked(margin, signed); !ok {
			return Result{}, shared.Validationf("ledger overflow at %s", line.Field)
		}
		if line.Settlement {
			if settlementAmount, ok = addChecked(settlementAmount, line.Amount); !ok {
				return Result{}, shared.Validationf("ledger overflow at %s", line.Field)
			}
		}
	}

	tax := c.policy.tax(margin)
	return Result{
		MarginBeforeTax:  margin,
		MarginAfterTax:   margin - tax,
		SettlementAmount: settlementAmount,
		Tax:              tax,
	}, nil
}

// Breakdown returns the ledger lines together with the computed result.
func (c Calculator) Breakdown(in Input) ([]Line, Result, error) {
	res, err := c.Compute(in)
	if err != nil {
		return nil, Result{}, err
	}
	return in.Lines(), res, nil
}

func addChecked(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// roundRate returns round_half_up(amount*bp/10000) for non-negative amounts and
// mirrors it for negative ones. amount is bounded by the ledger so the
// product stays inside int64.
func roundRate(amount, bp int64) int64 {
	if amount < 0 {
		return -roundRate(-amount, bp)
	}
	return (amount*bp + basisPoints/2) / basisPoints
}
