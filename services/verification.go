package services

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"house-rent-server/models"
)

// Synchronous-phase errors surfaced to the submitting caller. Background
// failures never reach the original caller; the record is left inspectable.
var (
	ErrValidation        = errors.New("all fields and images are required")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateIDNumber = errors.New("id number already used by another account")
)

// UserStore is the persistence surface the pipeline needs: read and update
// the User aggregate (verification record and attempt counters included).
type UserStore interface {
	FindByID(id uint) (*models.User, error)
	Save(user *models.User) error
	// Update runs a row-locked read-modify-write so verification commits and
	// attempt-counter changes cannot interleave with the quota guard.
	Update(id uint, fn func(user *models.User) error) error
	IDNumberInUse(idNumber string, excludeUserID uint) (bool, error)
}

// Preprocessor normalizes an uploaded image buffer.
type Preprocessor interface {
	Process(buf []byte) ([]byte, error)
}

// Extractor pulls structured ID fields out of a document image.
type Extractor interface {
	Extract(image []byte, idNumberFallback string) models.IDData
}

// Uploader persists an image buffer to durable object storage.
type Uploader interface {
	Upload(buf []byte, folder, publicID string) (string, error)
}

// SubmitVerificationInput carries one identity submission.
type SubmitVerificationInput struct {
	UserID   uint
	IDType   string
	IDNumber string
	IDImage  []byte
	Selfie   []byte
}

type verificationJob struct {
	userID       uint
	submissionID string
	idNumber     string
	idImage      []byte
	selfie       []byte
}

// VerificationService owns the identity-verification lifecycle: it writes the
// pending record synchronously, then drives preprocessing, OCR, face matching
// and artifact upload on a background worker, and commits the outcome guarded
// by the submission ID so a stale run never overwrites a newer submission.
type VerificationService struct {
	store   UserStore
	pre     Preprocessor
	ocr     Extractor
	faces   Matcher
	uploads Uploader

	// RejectDuplicateID enables the optional policy of refusing submissions
	// whose ID number is already attached to another account.
	RejectDuplicateID bool

	jobs chan verificationJob
	wg   sync.WaitGroup
}

func NewVerificationService(store UserStore, pre Preprocessor, ocr Extractor, faces Matcher, uploads Uploader) *VerificationService {
	return &VerificationService{
		store:   store,
		pre:     pre,
		ocr:     ocr,
		faces:   faces,
		uploads: uploads,
		jobs:    make(chan verificationJob, 64),
	}
}

// Start launches the background workers.
func (s *VerificationService) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for job := range s.jobs {
				s.runJob(job)
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight jobs. Background work is
// deliberately not tied to any request deadline.
func (s *VerificationService) Stop() {
	close(s.jobs)
	s.wg.Wait()
}

// Submit validates the four required inputs, overwrites the user's
// verification record with a fresh pending one, and enqueues the background
// phase. The returned submission ID is the caller's acknowledgment; the
// pending write is durable before this function returns.
func (s *VerificationService) Submit(in SubmitVerificationInput) (string, error) {
	if in.IDType == "" || in.IDNumber == "" || len(in.IDImage) == 0 || len(in.Selfie) == 0 {
		return "", ErrValidation
	}

	user, err := s.store.FindByID(in.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	if s.RejectDuplicateID {
		taken, err := s.store.IDNumberInUse(in.IDNumber, in.UserID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrDuplicateIDNumber
		}
	}

	now := time.Now()
	submissionID := uuid.NewString()
	user.Verification = models.Verification{
		Status:       models.VerificationStatusPending,
		IDData:       models.IDData{IDNumber: in.IDNumber},
		SubmissionID: submissionID,
		CreatedAt:    &now,
		ReviewerNote: "Verification submitted, awaiting processing",
	}
	if err := s.store.Save(user); err != nil {
		return "", err
	}

	s.jobs <- verificationJob{
		userID:       in.UserID,
		submissionID: submissionID,
		idNumber:     in.IDNumber,
		idImage:      in.IDImage,
		selfie:       in.Selfie,
	}
	return submissionID, nil
}

// runJob executes the asynchronous phase. Failures are logged and leave the
// record pending with an explanatory note; they never crash the process.
func (s *VerificationService) runJob(job verificationJob) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("user", job.userID).Error("verification worker panic: ", r)
		}
	}()

	logger := log.WithFields(log.Fields{"user": job.userID, "submission": job.submissionID})

	var (
		resizedID, resizedSelfie []byte
		errID, errSelfie         error
		wg                       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		resizedID, errID = s.pre.Process(job.idImage)
	}()
	go func() {
		defer wg.Done()
		resizedSelfie, errSelfie = s.pre.Process(job.selfie)
	}()
	wg.Wait()

	if errID != nil || errSelfie != nil {
		err := errID
		if err == nil {
			err = errSelfie
		}
		logger.WithError(err).Error("image preprocessing failed")
		s.stall(job, "Processing stalled: uploaded image could not be decoded")
		return
	}

	// OCR and face matching are independent; run both legs concurrently.
	var (
		idData   models.IDData
		match    MatchResult
		matchErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		idData = s.ocr.Extract(resizedID, job.idNumber)
	}()
	go func() {
		defer wg.Done()
		match, matchErr = s.faces.Match(resizedID, resizedSelfie)
	}()
	wg.Wait()

	if matchErr != nil {
		logger.WithError(matchErr).Error("face matching failed")
		s.stall(job, "Processing stalled: face analysis unavailable")
		return
	}

	folder := "verification/" + strconv.FormatUint(uint64(job.userID), 10)
	var (
		idImageURL, selfieURL string
		upErrID, upErrSelfie  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		idImageURL, upErrID = s.uploads.Upload(resizedID, folder, "id_"+job.submissionID)
	}()
	go func() {
		defer wg.Done()
		selfieURL, upErrSelfie = s.uploads.Upload(resizedSelfie, folder, "selfie_"+job.submissionID)
	}()
	wg.Wait()

	if upErrID != nil || upErrSelfie != nil {
		err := upErrID
		if err == nil {
			err = upErrSelfie
		}
		logger.WithError(err).Error("artifact upload failed")
		s.stall(job, "Processing stalled: artifact upload failed")
		return
	}

	now := time.Now()
	err := s.store.Update(job.userID, func(user *models.User) error {
		if user.Verification.SubmissionID != job.submissionID {
			return fmt.Errorf("stale submission %s superseded by %s", job.submissionID, user.Verification.SubmissionID)
		}

		if match.IsMatch {
			user.Verification.Status = models.VerificationStatusVerified
			user.Verification.ReviewerNote = "Auto-verified by system"
			user.Verified = true
		} else {
			user.Verification.Status = models.VerificationStatusPendingReview
			user.Verification.ReviewerNote = "Pending admin review"
			user.Verified = false
		}
		user.Verification.Score = match.Score
		user.Verification.FaceMatchDistance = match.Distance
		user.Verification.IDData = idData
		user.Verification.IDImageURL = &idImageURL
		user.Verification.SelfieURL = &selfieURL

		user.VerificationAttempts.Record(now)
		if !match.IsMatch && user.VerificationAttempts.Count >= models.MaxDailyVerificationAttempts {
			logger.Warn("user reached ", user.VerificationAttempts.Count, " failed verification attempts today")
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("final verification commit skipped")
		return
	}
	logger.Info("background verification completed")
}

// stall leaves the record pending with a note for later retry or manual
// intervention. The submission-ID guard still applies: a newer submission's
// record is never touched.
func (s *VerificationService) stall(job verificationJob, note string) {
	err := s.store.Update(job.userID, func(user *models.User) error {
		if user.Verification.SubmissionID != job.submissionID {
			return fmt.Errorf("stale submission %s", job.submissionID)
		}
		user.Verification.ReviewerNote = note
		return nil
	})
	if err != nil {
		log.WithField("user", job.userID).WithError(err).Warn("stall note not recorded")
	}
}

// Review performs an admin-forced terminal transition, overriding any
// automatic outcome. Records the reviewer note and timestamp and counts the
// attempt, exactly as an automatic terminal transition would.
func (s *VerificationService) Review(userID uint, status, note string) (*models.User, error) {
	if status != models.VerificationStatusVerified &&
		status != models.VerificationStatusRejected &&
		status != models.VerificationStatusPendingReview {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	var reviewed *models.User
	now := time.Now()
	err := s.store.Update(userID, func(user *models.User) error {
		user.Verified = status == models.VerificationStatusVerified
		user.Verification.Status = status
		if note == "" {
			note = "Status changed to " + status + " by admin"
		}
		user.Verification.ReviewerNote = note
		user.Verification.ReviewedAt = &now

		if status != models.VerificationStatusPendingReview {
			user.VerificationAttempts.Record(now)
			if status == models.VerificationStatusRejected &&
				user.VerificationAttempts.Count >= models.MaxDailyVerificationAttempts {
				log.WithField("user", userID).Warn("user reached ", user.VerificationAttempts.Count, " failed verification attempts today")
			}
		}
		reviewed = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}
