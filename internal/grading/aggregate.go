package grading

import (
	"math"
	"sort"
)

// Grade bands used for the class distribution.
const (
	BandF = "F (0-59)"
	BandD = "D (60-69)"
	BandC = "C (70-79)"
	BandB = "B (80-89)"
	BandA = "A (90-100)"
)

// QuestionMeta describes a question of the job, used for max-score totals.
type QuestionMeta struct {
	ID       string
	MaxScore float64
}

// StudentSummary is the derived categorization of one student.
type StudentSummary struct {
	StudentID    string         `json:"student_id"`
	Status       Status         `json:"status"`
	TotalScore   float64        `json:"total_score"`
	MaxScore     float64        `json:"max_score"`
	Percentage   *float64       `json:"percentage"`
	PendingCount int            `json:"pending_count"`
	StatusCounts map[Status]int `json:"status_counts"`
}

// Analytics are computed from current grades of fully graded students only.
type Analytics struct {
	ClassAverage          float64            `json:"class_average"`
	Median                float64            `json:"median"`
	GradeDistribution     map[string]int     `json:"grade_distribution"`
	PerformanceByQuestion map[string]float64 `json:"performance_by_question"`
}

// JobSummary rolls every question result of a job up to student and job level.
type JobSummary struct {
	Status           Status            `json:"status"`
	Students         []StudentSummary  `json:"students"`
	StudentsAIGraded int               `json:"students_ai_graded"`
	StudentsPending  int               `json:"students_pending"`
	QuestionStatus   map[Status]int    `json:"question_status"`
	AgreementCounts  map[Agreement]int `json:"agreement_counts"`
	Analytics        Analytics         `json:"analytics"`
}

// CategorizeStudent returns PENDING_REVIEW if any result is pending.
func CategorizeStudent(results []QuestionResult) Status {
	for _, result := range results {
		if result.Status == StatusPendingReview {
			return StatusPendingReview
		}
	}
	return StatusAIGraded
}

// SummarizeStudent totals one student's current grades.
func SummarizeStudent(studentID string, results []QuestionResult, questions []QuestionMeta) StudentSummary {
	summary := StudentSummary{
		StudentID:    studentID,
		Status:       CategorizeStudent(results),
		StatusCounts: map[Status]int{},
	}

	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		summary.MaxScore += q.MaxScore
		seen[q.ID] = true
	}

	for _, result := range results {
		summary.StatusCounts[result.Status]++
		if result.Status == StatusPendingReview {
			summary.PendingCount++
		}
		if result.CurrentGrade != nil {
			summary.TotalScore += *result.CurrentGrade
		}
		if !seen[result.Key.QuestionID] {
			summary.MaxScore += result.MaxScore
			seen[result.Key.QuestionID] = true
		}
	}

	if summary.MaxScore > 0 {
		percentage := round2(summary.TotalScore / summary.MaxScore * 100)
		summary.Percentage = &percentage
	}

	return summary
}

// Aggregate recomputes the job summary from the current state of every result.
func Aggregate(results []QuestionResult, questions []QuestionMeta) JobSummary {
	byStudent := map[string][]QuestionResult{}
	order := make([]string, 0)
	for _, result := range results {
		id := result.Key.StudentID
		if _, ok := byStudent[id]; !ok {
			order = append(order, id)
		}
		byStudent[id] = append(byStudent[id], result)
	}
	sort.Strings(order)

	summary := JobSummary{
		Status:          StatusAIGraded,
		Students:        make([]StudentSummary, 0, len(order)),
		QuestionStatus:  map[Status]int{},
		AgreementCounts: map[Agreement]int{},
	}

	percentages := make([]float64, 0, len(order))
	for _, studentID := range order {
		student := SummarizeStudent(studentID, byStudent[studentID], questions)
		summary.Students = append(summary.Students, student)

		if student.Status == StatusPendingReview {
			summary.StudentsPending++
			summary.Status = StatusPendingReview
			continue
		}
		summary.StudentsAIGraded++
		if student.Percentage != nil {
			percentages = append(percentages, *student.Percentage)
		}
	}

	for _, result := range results {
		summary.QuestionStatus[result.Status]++
		summary.AgreementCounts[result.Agreement]++
	}

	summary.Analytics = Analytics{
		ClassAverage:          round2(mean(percentages)),
		Median:                round2(median(percentages)),
		GradeDistribution:     distribution(percentages),
		PerformanceByQuestion: performanceByQuestion(results, questions),
	}

	return summary
}

func distribution(percentages []float64) map[string]int {
	bands := map[string]int{BandF: 0, BandD: 0, BandC: 0, BandB: 0, BandA: 0}
	for _, p := range percentages {
		switch {
		case p >= 90:
			bands[BandA]++
		case p >= 80:
			bands[BandB]++
		case p >= 70:
			bands[BandC]++
		case p >= 60:
			bands[BandD]++
		default:
			bands[BandF]++
		}
	}
	return bands
}

func performanceByQuestion(results []QuestionResult, questions []QuestionMeta) map[string]float64 {
	maxScores := make(map[string]float64, len(questions))
	for _, q := range questions {
		maxScores[q.ID] = q.MaxScore
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, result := range results {
		id := result.Key.QuestionID
		if _, ok := maxScores[id]; !ok {
			maxScores[id] = result.MaxScore
		}
		if result.CurrentGrade == nil {
			continue
		}
		sums[id] += *result.CurrentGrade
		counts[id]++
	}

	performance := make(map[string]float64, len(maxScores))
	for id, maxScore := range maxScores {
		if counts[id] == 0 || maxScore <= 0 {
			performance[id] = 0
			continue
		}
		performance[id] = round2(sums[id] / float64(counts[id]) / maxScore * 100)
	}
	return performance
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
