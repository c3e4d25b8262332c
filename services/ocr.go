package services

import (
	"regexp"
	"strings"

	"github.com/otiai10/gosseract/v2"
	log "github.com/sirupsen/logrus"

	"house-rent-server/models"
)

// TextRecognizer runs full-page text recognition over an image buffer.
// Production uses Tesseract; tests plug in fakes.
type TextRecognizer interface {
	Recognize(image []byte) (string, error)
}

// TesseractRecognizer backs TextRecognizer with a local Tesseract engine.
type TesseractRecognizer struct {
	Language string
}

func NewTesseractRecognizer() *TesseractRecognizer {
	return &TesseractRecognizer{Language: "eng"}
}

func (r *TesseractRecognizer) Recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if r.Language != "" {
		if err := client.SetLanguage(r.Language); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}

var (
	namePattern = regexp.MustCompile(`(?i)Name[:\s]+([A-Z ]+)`)
	idPattern   = regexp.MustCompile(`(?i)ID[:\s]+([A-Z0-9]+)`)
	dobPattern  = regexp.MustCompile(`(?i)(DATE OF BIRTH|DOB|Birth)[:\s]+([0-9/\-]+)`)
)

// OCRExtractor pulls structured fields out of an ID-document image.
type OCRExtractor struct {
	recognizer TextRecognizer
}

func NewOCRExtractor(recognizer TextRecognizer) *OCRExtractor {
	return &OCRExtractor{recognizer: recognizer}
}

// Extract runs text recognition and pattern-matches the labelled lines.
// Engine failures degrade to the fallback ID number with empty fields; OCR
// is never allowed to abort the verification pipeline.
func (e *OCRExtractor) Extract(image []byte, idNumberFallback string) models.IDData {
	text, err := e.recognizer.Recognize(image)
	if err != nil {
		log.WithError(err).Warn("OCR failed, degrading to fallback ID number")
		return models.IDData{IDNumber: idNumberFallback}
	}

	data := models.IDData{IDNumber: idNumberFallback, RawText: text}
	if m := namePattern.FindStringSubmatch(text); len(m) > 1 {
		data.Name = strings.TrimSpace(m[1])
	}
	if m := idPattern.FindStringSubmatch(text); len(m) > 1 {
		if v := strings.TrimSpace(m[1]); v != "" {
			data.IDNumber = v
		}
	}
	if m := dobPattern.FindStringSubmatch(text); len(m) > 2 {
		data.DateOfBirth = strings.TrimSpace(m[2])
	}
	return data
}
