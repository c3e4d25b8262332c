package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"house-rent-server/models"
)

func gormModel(id uint) gorm.Model {
	return gorm.Model{ID: id}
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[uint]models.User
}

func newMemoryUserStore(users ...models.User) *memoryUserStore {
	s := &memoryUserStore{users: map[uint]models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryUserStore) FindByID(id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (s *memoryUserStore) Save(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s *memoryUserStore) Update(id uint, fn func(user *models.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errors.New("record not found")
	}
	if err := fn(&u); err != nil {
		return err
	}
	s.users[id] = u
	return nil
}

func (s *memoryUserStore) IDNumberInUse(idNumber string, excludeUserID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if id != excludeUserID && u.Verification.IDData.IDNumber == idNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryUserStore) get(t *testing.T, id uint) models.User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	require.True(t, ok, "user %d not in store", id)
	return u
}

type passthroughPre struct{ err error }

func (p passthroughPre) Process(buf []byte) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return buf, nil
}

type fixedExtractor struct{ data models.IDData }

func (f fixedExtractor) Extract(image []byte, fallback string) models.IDData {
	if f.data.IDNumber == "" {
		d := f.data
		d.IDNumber = fallback
		return d
	}
	return f.data
}

type fixedMatcher struct {
	result MatchResult
	err    error
}

func (f fixedMatcher) Match(idImage, selfie []byte) (MatchResult, error) {
	return f.result, f.err
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeUploader) Upload(buf []byte, folder, publicID string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://cdn.test/%s/%s.jpg", folder, publicID), nil
}

func validInput() SubmitVerificationInput {
	return SubmitVerificationInput{
		UserID:   1,
		IDType:   "passport",
		IDNumber: "P123",
		IDImage:  []byte("id-image"),
		Selfie:   []byte("selfie"),
	}
}

func newTestService(store UserStore, matcher Matcher, uploads Uploader) *VerificationService {
	return NewVerificationService(
		store,
		passthroughPre{},
		fixedExtractor{data: models.IDData{Name: "JANE DOE", IDNumber: "P123", RawText: "Name: JANE DOE"}},
		matcher,
		uploads,
	)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := newTestService(store, fixedMatcher{}, &fakeUploader{})

	cases := []func(*SubmitVerificationInput){
		func(in *SubmitVerificationInput) { in.IDType = "" },
		func(in *SubmitVerificationInput) { in.IDNumber = "" },
		func(in *SubmitVerificationInput) { in.IDImage = nil },
		func(in *SubmitVerificationInput) { in.Selfie = nil },
	}
	for _, mutate := range cases {
		in := validInput()
		mutate(&in)
		_, err := svc.Submit(in)
		assert.ErrorIs(t, err, ErrValidation)
	}

	// No record may be created for rejected submissions.
	assert.Empty(t, store.get(t, 1).Verification.SubmissionID)
}

func TestSubmitUnknownUser(t *testing.T) {
	svc := newTestService(newMemoryUserStore(), fixedMatcher{}, &fakeUploader{})

	_, err := svc.Submit(validInput())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSubmitWritesPendingBeforeBackground(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := newTestService(store, fixedMatcher{result: ScoreDistance(0.3)}, &fakeUploader{})
	// Worker intentionally not started: only the synchronous phase runs.

	id, err := svc.Submit(validInput())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPending, u.Verification.Status)
	assert.Equal(t, id, u.Verification.SubmissionID)
	assert.Equal(t, "P123", u.Verification.IDData.IDNumber)
	assert.NotNil(t, u.Verification.CreatedAt)
	assert.False(t, u.Verified)
	assert.Equal(t, 0, u.VerificationAttempts.Count)
}

func TestPipelineAutoVerifiesOnMatch(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	uploads := &fakeUploader{}
	svc := newTestService(store, fixedMatcher{result: ScoreDistance(0.3)}, uploads)
	svc.Start(1)

	_, err := svc.Submit(validInput())
	require.NoError(t, err)
	svc.Stop() // drains the queue

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusVerified, u.Verification.Status)
	assert.True(t, u.Verified)
	assert.InDelta(t, 70.0, u.Verification.Score, 1e-9)
	require.NotNil(t, u.Verification.FaceMatchDistance)
	assert.InDelta(t, 0.3, *u.Verification.FaceMatchDistance, 1e-9)
	assert.Equal(t, "JANE DOE", u.Verification.IDData.Name)
	require.NotNil(t, u.Verification.IDImageURL)
	require.NotNil(t, u.Verification.SelfieURL)
	assert.Equal(t, 2, uploads.calls)
	assert.Equal(t, 1, u.VerificationAttempts.Count)
	assert.Equal(t, "Auto-verified by system", u.Verification.ReviewerNote)
}

func TestPipelineSendsMismatchToReview(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := newTestService(store, fixedMatcher{result: ScoreDistance(0.8)}, &fakeUploader{})
	svc.Start(1)

	_, err := svc.Submit(validInput())
	require.NoError(t, err)
	svc.Stop()

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPendingReview, u.Verification.Status)
	assert.False(t, u.Verified)
	require.NotNil(t, u.Verification.FaceMatchDistance)
	assert.GreaterOrEqual(t, *u.Verification.FaceMatchDistance, 0.5)
	assert.Equal(t, "Pending admin review", u.Verification.ReviewerNote)
	assert.Equal(t, 1, u.VerificationAttempts.Count)
}

func TestPipelineInconclusiveDetectionGoesToReview(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	// Zero-value result: no face found in one of the images.
	svc := newTestService(store, fixedMatcher{}, &fakeUploader{})
	svc.Start(1)

	_, err := svc.Submit(validInput())
	require.NoError(t, err)
	svc.Stop()

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPendingReview, u.Verification.Status)
	assert.Nil(t, u.Verification.FaceMatchDistance)
	assert.Equal(t, 0.0, u.Verification.Score)
	assert.False(t, u.Verified)
}

func TestPipelineUploadFailureLeavesPending(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := newTestService(store, fixedMatcher{result: ScoreDistance(0.3)},
		&fakeUploader{err: errors.New("cloud down")})
	svc.Start(1)

	_, err := svc.Submit(validInput())
	require.NoError(t, err)
	svc.Stop()

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPending, u.Verification.Status)
	assert.False(t, u.Verified)
	assert.Contains(t, u.Verification.ReviewerNote, "stalled")
	// Stalled runs are not attempts; the user can retry.
	assert.Equal(t, 0, u.VerificationAttempts.Count)
}

func TestPipelinePreprocessFailureLeavesPending(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := NewVerificationService(store, passthroughPre{err: ErrPreprocessing},
		fixedExtractor{}, fixedMatcher{}, &fakeUploader{})
	svc.Start(1)

	_, err := svc.Submit(validInput())
	require.NoError(t, err)
	svc.Stop()

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPending, u.Verification.Status)
	assert.Contains(t, u.Verification.ReviewerNote, "stalled")
}

func TestStaleBackgroundRunCannotOverwriteNewerSubmission(t *testing.T) {
	user := models.User{Model: gormModel(1)}
	user.Verification = models.Verification{
		Status:       models.VerificationStatusPending,
		SubmissionID: "newer-submission",
		ReviewerNote: "Verification submitted, awaiting processing",
	}
	store := newMemoryUserStore(user)
	svc := newTestService(store, fixedMatcher{result: ScoreDistance(0.3)}, &fakeUploader{})

	svc.runJob(verificationJob{
		userID:       1,
		submissionID: "older-submission",
		idNumber:     "P123",
		idImage:      []byte("id"),
		selfie:       []byte("selfie"),
	})

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusPending, u.Verification.Status)
	assert.Equal(t, "newer-submission", u.Verification.SubmissionID)
	assert.False(t, u.Verified)
	assert.Equal(t, 0, u.VerificationAttempts.Count)
}

func TestSubmitRejectsDuplicateIDNumberWhenEnabled(t *testing.T) {
	other := models.User{Model: gormModel(2)}
	other.Verification.IDData.IDNumber = "P123"
	store := newMemoryUserStore(models.User{Model: gormModel(1)}, other)

	svc := newTestService(store, fixedMatcher{}, &fakeUploader{})
	svc.RejectDuplicateID = true

	_, err := svc.Submit(validInput())
	assert.ErrorIs(t, err, ErrDuplicateIDNumber)
}

func TestAdminReviewForcesTerminalState(t *testing.T) {
	user := models.User{Model: gormModel(1), Verified: true}
	user.Verification = models.Verification{
		Status:       models.VerificationStatusPendingReview,
		SubmissionID: "sub-1",
	}
	store := newMemoryUserStore(user)
	svc := newTestService(store, fixedMatcher{}, &fakeUploader{})

	reviewed, err := svc.Review(1, models.VerificationStatusRejected, "manual fraud flag")
	require.NoError(t, err)

	assert.Equal(t, models.VerificationStatusRejected, reviewed.Verification.Status)
	assert.False(t, reviewed.Verified)
	assert.Equal(t, "manual fraud flag", reviewed.Verification.ReviewerNote)
	assert.NotNil(t, reviewed.Verification.ReviewedAt)

	u := store.get(t, 1)
	assert.Equal(t, models.VerificationStatusRejected, u.Verification.Status)
	assert.Equal(t, 1, u.VerificationAttempts.Count)
}

func TestAdminReviewDefaultNoteAndInvalidStatus(t *testing.T) {
	store := newMemoryUserStore(models.User{Model: gormModel(1)})
	svc := newTestService(store, fixedMatcher{}, &fakeUploader{})

	reviewed, err := svc.Review(1, models.VerificationStatusVerified, "")
	require.NoError(t, err)
	assert.True(t, reviewed.Verified)
	assert.Contains(t, reviewed.Verification.ReviewerNote, "verified")

	_, err = svc.Review(1, "approved", "")
	assert.Error(t, err)
}
