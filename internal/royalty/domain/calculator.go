package domain

// RoyaltyDue computes the royalty owed on a net revenue figure at the given
// rate in basis points. Exact integer arithmetic, rounded half-up; a negative
// net (refund-heavy period) yields a negative due, rounded symmetrically.
func RoyaltyDue(netCents, rateBps int64) int64 {
	product := netCents * rateBps
	if product < 0 {
		return -((-product + 5000) / 10000)
	}
	return (product + 5000) / 10000
}

// ResolveRateBps picks the tenant override when present, otherwise the
// platform default.
func ResolveRateBps(override *int64, defaultBps int64) int64 {
	if override != nil {
		return *override
	}
	return defaultBps
}
