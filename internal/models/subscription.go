package models

// SubscriptionTier is the paid visibility ladder. Each tier includes
// everything below it.
type SubscriptionTier string

const (
	TierNone     SubscriptionTier = "none"
	TierVerified SubscriptionTier = "verified"
	TierContact  SubscriptionTier = "contact"
	TierPromoted SubscriptionTier = "promoted"
)

var tierRank = map[SubscriptionTier]int{
	TierNone:     0,
	TierVerified: 1,
	TierContact:  2,
	TierPromoted: 3,
}

func (t SubscriptionTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Paid reports whether the tier needs a billing subscription.
func (t SubscriptionTier) Paid() bool {
	return tierRank[t] > 0
}

func (t SubscriptionTier) Rank() int {
	return tierRank[t]
}

func (t SubscriptionTier) AtLeast(other SubscriptionTier) bool {
	return t.Valid() && tierRank[t] >= tierRank[other]
}

// Stripe subscription statuses we act on.
const (
	SubscriptionActive            = "active"
	SubscriptionTrialing          = "trialing"
	SubscriptionIncomplete        = "incomplete"
	SubscriptionIncompleteExpired = "incomplete_expired"
	SubscriptionPastDue           = "past_due"
	SubscriptionCanceled          = "canceled"
	SubscriptionUnpaid            = "unpaid"
)

// SubscriptionLive reports whether a subscription in this status is still
// billing and should be changed in place rather than replaced.
func SubscriptionLive(status string) bool {
	switch status {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}
