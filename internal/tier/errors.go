package tier

import "errors"

var (
	ErrInvalidSpec   = errors.New("invalid tier spec")
	ErrTierNotFound  = errors.New("tier not found")
	ErrTierInactive  = errors.New("tier is not accepting new subscriptions")
	ErrTierImmutable = errors.New("tier price and interval are immutable while subscriptions reference it")
	ErrDuplicateRank = errors.New("creator already has a tier with this rank")
)
