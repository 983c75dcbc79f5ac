package ai

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of model grading requests",
	}, []string{"provider", "model"})

	modelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of model grading requests that returned an error",
	}, []string{"provider", "model"})
)

func systemPrompt() string {
	return "You are an experienced, objective teaching assistant grading one exam question. " +
		"The attached images of the student's answer sheet are the source of truth. " +
		"Grade strictly against the rubric or answer key given in the prompt. " +
		"Respond with a single JSON object and nothing else, with exactly two keys: " +
		`"grade" (number, between 0 and the maximum score) and "feedback" (string, constructive and rubric-based).`
}

func userPrompt(req GradeRequest) string {
	builder := strings.Builder{}
	builder.WriteString(req.Prompt)
	if req.MaxScore > 0 {
		builder.WriteString(fmt.Sprintf("\n\nMaximum score for this question: %g.", req.MaxScore))
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
