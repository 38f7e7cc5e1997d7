package models

import (
	"fmt"
	"strings"
)

type ReferralStatus string

const (
	ReferralClicked   ReferralStatus = "CLICKED"
	ReferralConverted ReferralStatus = "CONVERTED"
	ReferralRejected  ReferralStatus = "REJECTED"
	ReferralExpired   ReferralStatus = "EXPIRED"
	ReferralCancelled ReferralStatus = "CANCELLED"
)

var referralTransitions = map[ReferralStatus][]ReferralStatus{
	ReferralClicked:   {ReferralConverted, ReferralRejected, ReferralExpired},
	ReferralConverted: {ReferralCancelled},
}

// ParseReferralStatus accepts any casing and rejects unknown values.
func ParseReferralStatus(s string) (ReferralStatus, error) {
	st := ReferralStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown referral status %q", s)
	}
	return st, nil
}

func (s ReferralStatus) Valid() bool {
	switch s {
	case ReferralClicked, ReferralConverted, ReferralRejected, ReferralExpired, ReferralCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	for _, allowed := range referralTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ReferralStatus) String() string { return string(s) }

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "PENDING"
	CommissionPaid      CommissionStatus = "PAID"
	CommissionCancelled CommissionStatus = "CANCELLED"
	CommissionFailed    CommissionStatus = "FAILED"
)

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionPending: {CommissionPaid, CommissionCancelled, CommissionFailed},
	CommissionFailed:  {CommissionPending, CommissionCancelled},
}

func ParseCommissionStatus(s string) (CommissionStatus, error) {
	st := CommissionStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown commission status %q", s)
	}
	return st, nil
}

func (s CommissionStatus) Valid() bool {
	switch s {
	case CommissionPending, CommissionPaid, CommissionCancelled, CommissionFailed:
		return true
	}
	return false
}

func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	for _, allowed := range commissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s CommissionStatus) String() string { return string(s) }

const (
	AffiliateActive   = "ACTIVE"
	AffiliatePending  = "PENDING"
	AffiliateInactive = "INACTIVE"
	AffiliateRejected = "REJECTED"
)
