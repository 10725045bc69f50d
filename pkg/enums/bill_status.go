package enums

import "fmt"

// BillStatus tracks whether a bill still accepts mutations.
type BillStatus string

const (
	BillStatusOpen   BillStatus = "open"
	BillStatusClosed BillStatus = "closed"
)

// String implements fmt.Stringer.
func (b BillStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillStatus.
func (b BillStatus) IsValid() bool {
	return b == BillStatusOpen || b == BillStatusClosed
}

// ParseBillStatus converts raw input into a BillStatus.
func ParseBillStatus(value string) (BillStatus, error) {
	switch BillStatus(value) {
	case BillStatusOpen:
		return BillStatusOpen, nil
	case BillStatusClosed:
		return BillStatusClosed, nil
	default:
		return "", fmt.Errorf("invalid bill status %q", value)
	}
}
