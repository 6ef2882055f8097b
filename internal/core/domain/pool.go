package domain

import "time"

// Pool is a ROSCA ("sol") group-savings pool. Amounts are minor units
// (cents) to keep financial arithmetic exact.
type Pool struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Currency           string    `json:"currency"`
	Round              int       `json:"round"`
	MemberCount        int       `json:"memberCount"`
	ContributionAmount int64     `json:"contributionAmount"`
	TotalPot           int64     `json:"totalPot"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Enrollment is one member's participation in a pool.
type Enrollment struct {
	ID               string    `json:"id"`
	PoolID           string    `json:"poolId"`
	MemberID         string    `json:"memberId"`
	Position         int       `json:"position"`
	Status           string    `json:"status"`
	TotalContributed int64     `json:"totalContributed"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PaymentRequest is the body of a make-payment call. The idempotency
// key lets the server deduplicate a retried submission.
type PaymentRequest struct {
	EnrollmentID   string `json:"enrollmentId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}
