package services

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
)

// faceMatchThreshold is the fixed descriptor-distance cutoff below which two
// faces are considered the same person.
const faceMatchThreshold = 0.5

// MatchResult is the outcome of comparing the ID photo against the selfie.
// Distance is nil when detection was inconclusive (zero or multiple faces in
// either image); the submission then goes to manual review instead of failing.
type MatchResult struct {
	Distance *float64
	Score    float64
	IsMatch  bool
}

// Matcher compares two preprocessed image buffers.
type Matcher interface {
	Match(idImage, selfie []byte) (MatchResult, error)
}

// FaceMatcher detects a single face per image, computes descriptor vectors
// and derives the Euclidean distance between them. The dlib model weights
// are a process-wide singleton: loaded lazily at most once and read-only
// afterwards, so concurrent first submissions cannot trigger duplicate loads.
type FaceMatcher struct {
	modelsDir string

	once    sync.Once
	loadErr error
	rec     *face.Recognizer
}

func NewFaceMatcher() *FaceMatcher {
	dir := os.Getenv("FACE_MODELS_DIR")
	if dir == "" {
		dir = "models/face"
	}
	return &FaceMatcher{modelsDir: dir}
}

func (m *FaceMatcher) recognizer() (*face.Recognizer, error) {
	m.once.Do(func() {
		if _, err := os.Stat(m.modelsDir); err != nil {
			m.loadErr = fmt.Errorf("missing face model folder %s: %w", m.modelsDir, err)
			return
		}
		log.Info("loading face recognition models from ", m.modelsDir)
		m.rec, m.loadErr = face.NewRecognizer(m.modelsDir)
	})
	return m.rec, m.loadErr
}

// Match runs single-face detection on both buffers and compares descriptors.
// A detection miss on either side yields a no-match result rather than an
// error; only model-loading or image-decoding failures surface as errors.
func (m *FaceMatcher) Match(idImage, selfie []byte) (MatchResult, error) {
	rec, err := m.recognizer()
	if err != nil {
		return MatchResult{}, err
	}

	idFace, err := rec.RecognizeSingle(idImage)
	if err != nil {
		return MatchResult{}, fmt.Errorf("detecting face in ID image: %w", err)
	}
	selfieFace, err := rec.RecognizeSingle(selfie)
	if err != nil {
		return MatchResult{}, fmt.Errorf("detecting face in selfie: %w", err)
	}

	// RecognizeSingle yields nil unless exactly one face was found.
	if idFace == nil || selfieFace == nil {
		return MatchResult{}, nil
	}

	distance := math.Sqrt(face.SquaredEuclideanDistance(idFace.Descriptor, selfieFace.Descriptor))
	return ScoreDistance(distance), nil
}

// ScoreDistance converts a descriptor distance into the 0..100 match score
// and the fixed-threshold match verdict.
func ScoreDistance(distance float64) MatchResult {
	score := math.Round((1-distance)*100*100) / 100
	if score < 0 {
		score = 0
	}
	d := distance
	return MatchResult{
		Distance: &d,
		Score:    score,
		IsMatch:  distance < faceMatchThreshold,
	}
}
