package enums

import "slices"

// DiscountType selects how a discount amount is derived.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

var validDiscountTypes = []DiscountType{DiscountTypePercentage, DiscountTypeFixed}

func (d DiscountType) IsValid() bool { return slices.Contains(validDiscountTypes, d) }

func ParseDiscountType(value string) (DiscountType, error) {
	return parse("discount type", validDiscountTypes, value)
}
