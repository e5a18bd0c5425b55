package types

// StrategyState is threaded through every decision so strategies stay free of hidden mutable state.
type StrategyState struct {
	// Wait is the number of upcoming decisions to skip before the next rebalance.
	Wait int
	// Step counts decisions made so far.
	Step uint64
}
