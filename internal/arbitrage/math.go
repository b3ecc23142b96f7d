package arbitrage

// Pairing is a candidate two-way bet: the home outcome backed at one
// bookmaker and the away outcome at another.
type Pairing struct {
	HomeBookmaker string
	AwayBookmaker string
	HomeOdds      float64
	AwayOdds      float64
}

// Margin is the combined market margin, the sum of both legs' implied
// probabilities.
func (p Pairing) Margin() float64 {
	return Margin(p.HomeOdds, p.AwayOdds)
}

// IsNetGain reports whether backing both legs guarantees a profit.
func (p Pairing) IsNetGain() bool {
	return p.Margin() < 1.0
}

// Stakes splits total across both legs so the payout is equal whichever
// outcome wins.
func (p Pairing) Stakes(total float64) (home, away float64) {
	return Stake(total, p.HomeOdds, p.Margin()), Stake(total, p.AwayOdds, p.Margin())
}

// ImpliedProbability converts decimal odds to the bookmaker's implied
// probability.
func ImpliedProbability(odds float64) float64 {
	return 1 / odds
}

// Margin returns 1/home + 1/away.
func Margin(home, away float64) float64 {
	return ImpliedProbability(home) + ImpliedProbability(away)
}

// Stake is the share of total placed on a leg priced at odds.
func Stake(total, odds, margin float64) float64 {
	return total * ImpliedProbability(odds) / margin
}

// GuaranteedPayout is the smaller of the two legs' payouts. A leg with nil
// odds was never placed and pays nothing.
func GuaranteedPayout(homeStake float64, homeOdds *float64, awayStake float64, awayOdds *float64) float64 {
	return min(payout(homeStake, homeOdds), payout(awayStake, awayOdds))
}

// GuaranteedProfit is the guaranteed payout less the stakes actually
// committed. Stakes on legs with nil odds are not committed.
func GuaranteedProfit(homeStake float64, homeOdds *float64, awayStake float64, awayOdds *float64) float64 {
	committed := 0.0
	if homeOdds != nil {
		committed += homeStake
	}
	if awayOdds != nil {
		committed += awayStake
	}
	return GuaranteedPayout(homeStake, homeOdds, awayStake, awayOdds) - committed
}

func payout(stake float64, odds *float64) float64 {
	if odds == nil {
		return 0
	}
	return stake * *odds
}
