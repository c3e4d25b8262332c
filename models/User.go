package models

import (
	"time"

	"gorm.io/gorm"
)

// Verification statuses for a landlord identity check.
const (
	VerificationStatusPending       = "pending"
	VerificationStatusVerified      = "verified"
	VerificationStatusRejected      = "rejected"
	VerificationStatusPendingReview = "pending_review"
)

// MaxDailyVerificationAttempts caps identity submissions per user per calendar day.
const MaxDailyVerificationAttempts = 3

// IDData holds the structured fields extracted from an ID document by OCR.
// Fields may be empty when extraction degrades (engine failure, unreadable scan).
type IDData struct {
	Name        string `json:"name"`
	IDNumber    string `json:"idNumber"`
	DateOfBirth string `json:"dateOfBirth"`
	ExpiryDate  string `json:"expiryDate"`
	RawText     string `json:"rawText" gorm:"type:text"`
}

// Verification is the per-user identity verification record. It is written
// twice per submission: once synchronously (pending) and once by the
// background phase (terminal status plus computed fields). SubmissionID ties
// the background commit to the submission that started it so a stale worker
// never overwrites a newer submission.
type Verification struct {
	Status            string     `json:"status" gorm:"size:20"`
	Score             float64    `json:"score"`
	IDData            IDData     `json:"idData" gorm:"embedded;embeddedPrefix:id_data_"`
	FaceMatchDistance *float64   `json:"faceMatchDistance"`
	IDImageURL        *string    `json:"idImageUrl"`
	SelfieURL         *string    `json:"selfieUrl"`
	LivenessPassed    bool       `json:"livenessPassed"`
	ReviewerNote      string     `json:"reviewerNote" gorm:"type:text"`
	SubmissionID      string     `json:"submissionId" gorm:"size:36"`
	ReviewedAt        *time.Time `json:"reviewedAt"`
	CreatedAt         *time.Time `json:"createdAt"`
}

// VerificationAttempts tracks how many identity submissions a user made in
// the current day window.
type VerificationAttempts struct {
	Count       int        `json:"count"`
	LastAttempt *time.Time `json:"lastAttempt"`
}

// SameDay reports whether the last attempt happened on the given calendar day.
func (a *VerificationAttempts) SameDay(now time.Time) bool {
	if a.LastAttempt == nil {
		return false
	}
	y1, m1, d1 := a.LastAttempt.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// RollOver resets the counter when the stored day differs from now. Returns
// true if a reset happened. Must run before the count is checked against the
// daily cap.
func (a *VerificationAttempts) RollOver(now time.Time) bool {
	if a.SameDay(now) {
		return false
	}
	a.Count = 0
	a.LastAttempt = &now
	return true
}

// Exhausted reports whether the user already burned today's attempts.
// Callers are expected to RollOver first.
func (a *VerificationAttempts) Exhausted(now time.Time) bool {
	return a.SameDay(now) && a.Count >= MaxDailyVerificationAttempts
}

// Record counts one finished attempt.
func (a *VerificationAttempts) Record(now time.Time) {
	if !a.SameDay(now) {
		a.Count = 0
	}
	a.Count++
	a.LastAttempt = &now
}

type User struct {
	gorm.Model
	Name           string `json:"name"`
	Email          string `json:"email" gorm:"uniqueIndex"`
	Password       string `json:"-"`
	Role           string `json:"role" gorm:"type:varchar(20);default:tenant;index"` // tenant, landlord, admin
	Location       string `json:"location"`
	Bio            string `json:"bio"`
	Phone          string `json:"phone"`
	ProfilePic     string `json:"profilePic"`
	SocialLogin    bool   `json:"socialLogin"`
	SocialProvider string `json:"socialProvider"`

	// Verified is the authoritative "may this landlord list houses" flag.
	// Set true only when Verification.Status becomes verified.
	Verified      bool `json:"verified"`
	EmailVerified bool `json:"emailVerified"`

	Verification         Verification         `json:"verification" gorm:"embedded;embeddedPrefix:verification_"`
	VerificationAttempts VerificationAttempts `json:"verificationAttempts" gorm:"embedded;embeddedPrefix:attempt_"`

	// Email OTP state (registration confirmation and password reset).
	EmailOTP        string     `json:"-"`
	EmailOTPExpires *time.Time `json:"-"`
	ResetOTP        string     `json:"-"`
	ResetOTPExpires *time.Time `json:"-"`

	Houses []House `json:"houses,omitempty" gorm:"foreignKey:LandlordID;references:ID"`
}
