package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Recognize(image []byte) (string, error) {
	return f.text, f.err
}

func TestExtractParsesLabelledFields(t *testing.T) {
	text := "REPUBLIC OF TESTLAND\nName: JANE DOE\nID: P123456\nDate of Birth: 12/03/1990\n"
	e := NewOCRExtractor(fakeRecognizer{text: text})

	data := e.Extract(nil, "FALLBACK1")

	assert.Equal(t, "JANE DOE", data.Name)
	assert.Equal(t, "P123456", data.IDNumber)
	assert.Equal(t, "12/03/1990", data.DateOfBirth)
	assert.Equal(t, text, data.RawText)
}

func TestExtractKeepsFallbackWhenIDLabelMissing(t *testing.T) {
	e := NewOCRExtractor(fakeRecognizer{text: "Name: JOHN SMITH\nno id line here"})

	data := e.Extract(nil, "FALLBACK1")

	assert.Equal(t, "JOHN SMITH", data.Name)
	assert.Equal(t, "FALLBACK1", data.IDNumber)
	assert.Empty(t, data.DateOfBirth)
}

func TestExtractDegradesOnEngineFailure(t *testing.T) {
	e := NewOCRExtractor(fakeRecognizer{err: errors.New("tesseract exploded")})

	data := e.Extract(nil, "FALLBACK1")

	assert.Equal(t, "FALLBACK1", data.IDNumber)
	assert.Empty(t, data.Name)
	assert.Empty(t, data.DateOfBirth)
	assert.Empty(t, data.RawText)
}

func TestExtractDOBVariants(t *testing.T) {
	e := NewOCRExtractor(fakeRecognizer{text: "DOB: 1990-01-31"})
	assert.Equal(t, "1990-01-31", e.Extract(nil, "X").DateOfBirth)

	e = NewOCRExtractor(fakeRecognizer{text: "DATE OF BIRTH: 01/02/1985"})
	assert.Equal(t, "01/02/1985", e.Extract(nil, "X").DateOfBirth)
}
