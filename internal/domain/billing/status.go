package billing

import "strconv"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

var transitions = map[string][]string{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// CanTransition encodes the payment state machine:
// pending -> completed | failed, completed -> refunded. Nothing else moves.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
