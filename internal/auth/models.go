// Package auth verifies the bearer tokens that authenticate API callers.
package auth

// Principal is the authenticated caller of a request.
type Principal struct {
	// UserID is the stable user identifier from the token's uid claim.
	UserID string

	// Premium users have no monthly generation limit.
	Premium bool
}
