package forecast

// MinHistory is the shortest series a learned model is trained on. Below it a
// sequence model cannot be fit reliably and the mean heuristic is used.
const MinHistory = 14

// Sufficient reports whether n observations justify training a learned model.
func Sufficient(n int) bool {
	return n >= MinHistory
}
