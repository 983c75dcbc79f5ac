package ai

import (
	"context"
	"errors"

	"github.com/gabriel-vasile/mimetype"
)

// ErrMalformedResponse indicates the model answered but not with a usable grade.
var ErrMalformedResponse = errors.New("malformed model response")

// Image is one page of a student's answer sheet.
type Image struct {
	Data     []byte
	MIMEType string
}

// DetectedMIME returns the declared MIME type, sniffing the bytes when empty.
func (i Image) DetectedMIME() string {
	if i.MIMEType != "" {
		return i.MIMEType
	}
	return mimetype.Detect(i.Data).String()
}

// GradeRequest is the prompt and supporting images for one question.
type GradeRequest struct {
	Prompt   string
	Images   []Image
	MaxScore float64
}

// GradeResponse is the structured grade returned by a model.
type GradeResponse struct {
	Grade    float64 `json:"grade"`
	Feedback string  `json:"feedback"`
	Raw      string  `json:"-"`
}

// Generator produces the raw text answer of a model for a grading request.
type Generator interface {
	Generate(ctx context.Context, req GradeRequest) (string, error)
	Model() string
}

// ModelClient is one identity on the grading panel.
type ModelClient interface {
	ID() string
	Grade(ctx context.Context, req GradeRequest) (GradeResponse, error)
}
