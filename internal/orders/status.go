package orders

type Status string

const (
	StatusPending       Status = "pending"
	StatusPaid          Status = "paid"
	StatusPaymentFailed Status = "payment_failed"
	StatusCancelled     Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:       {StatusPaid: true, StatusPaymentFailed: true, StatusCancelled: true},
	StatusPaid:          {},
	StatusPaymentFailed: {},
	StatusCancelled:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	next, known := validNext[s]
	return known && len(next) == 0
}
