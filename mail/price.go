package mail

import "github.com/shopspring/decimal"

// PriceKey identifies a customer price. An empty Start matches any origin.
type PriceKey struct {
	Start    string
	End      string
	Priority Priority
}

// CustomerPrice is what KPSmart charges customers for mail between two
// locations at a given priority.
type CustomerPrice struct {
	Entity
	Start       string
	End         string          `validate:"required"`
	Priority    Priority        `validate:"required"`
	WeightPrice decimal.Decimal `validate:"gte=0"`
	VolumePrice decimal.Decimal `validate:"gte=0"`
}

func (p CustomerPrice) Key() PriceKey {
	return PriceKey{Start: p.Start, End: p.End, Priority: p.Priority}
}

// Cost is the customer price of a delivery of the given weight and volume.
func (p CustomerPrice) Cost(weight, volume decimal.Decimal) decimal.Decimal {
	return weight.Mul(p.WeightPrice).Add(volume.Mul(p.VolumePrice))
}

// DomesticCustomerPrice applies to all mail between domestic locations
// for one domestic priority.
type DomesticCustomerPrice struct {
	Entity
	Priority    Priority        `validate:"required"`
	WeightPrice decimal.Decimal `validate:"gte=0"`
	VolumePrice decimal.Decimal `validate:"gte=0"`
}

func (p DomesticCustomerPrice) Cost(weight, volume decimal.Decimal) decimal.Decimal {
	return weight.Mul(p.WeightPrice).Add(volume.Mul(p.VolumePrice))
}

// Price is the common surface of both price kinds.
type Price interface {
	Cost(weight, volume decimal.Decimal) decimal.Decimal
}

var (
	_ Price = CustomerPrice{}
	_ Price = DomesticCustomerPrice{}
)
