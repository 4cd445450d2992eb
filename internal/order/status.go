package order

import "strings"

// Order statuses understood by the back-office.
const (
	StatusPending    = "PENDING"
	StatusPaid       = "PAID"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCanceled   = "CANCELED"
)

// NormalizeStatus upper-cases and trims a status value.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func orderStatusRank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusPaid:
		return 1
	case StatusProcessing:
		return 2
	case StatusShipped:
		return 3
	case StatusDelivered:
		return 4
	case StatusCanceled:
		return -1
	default:
		return -2
	}
}

// KnownStatus reports whether s is one of the order statuses.
func KnownStatus(s string) bool {
	return orderStatusRank(s) > -2
}

// Final reports whether no further transition is possible from s.
func Final(s string) bool {
	return s == StatusDelivered || s == StatusCanceled
}

// CanTransition reports whether an order may move from one status to another.
// Progress is forward only; cancellation is allowed from any non-final state.
func CanTransition(from, to string) bool {
	if !KnownStatus(from) || !KnownStatus(to) || Final(from) {
		return false
	}
	if to == StatusCanceled {
		return true
	}
	return orderStatusRank(to) > orderStatusRank(from)
}
