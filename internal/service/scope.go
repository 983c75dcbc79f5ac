package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is the root of every lookup failure reported by the services.
var ErrNotFound = errors.New("not found")

var (
	// ErrJobNotFound indicates the job does not exist or is outside the caller's scope.
	ErrJobNotFound = fmt.Errorf("assessment job %w", ErrNotFound)
	// ErrStudentNotFound indicates the student is not registered on the job.
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
	// ErrQuestionNotFound indicates the job has no question with the given id.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrResultNotFound indicates the question has not been graded yet.
	ErrResultNotFound = fmt.Errorf("question result %w", ErrNotFound)
)

// RoleAdmin sees every job; other roles only see jobs they own.
const RoleAdmin = "admin"

// Scope identifies the caller of a service operation. Handlers build it from
// the authenticated request and pass it explicitly.
type Scope struct {
	UserID uint
	Role   string
}

// OwnerFilter returns the owner id repositories should restrict to, or zero
// for unrestricted access.
func (s Scope) OwnerFilter() uint {
	if strings.EqualFold(s.Role, RoleAdmin) {
		return 0
	}
	return s.UserID
}

func mapNotFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}
