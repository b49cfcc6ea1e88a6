package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound  = errors.New("availability template not found")
	ErrExceptionNotFound = errors.New("schedule exception not found")
)

// Repository contains all DB interactions needed for templates and
// exceptions.
type Repository interface {
	SaveTemplate(ctx context.Context, tpl *AvailabilityTemplate) error
	GetTemplate(ctx context.Context, providerID uuid.UUID) (*AvailabilityTemplate, error)

	AddException(ctx context.Context, ex *ScheduleException) error
	// ListExceptions returns exceptions overlapping [fromDate, toDate]
	// ("2006-01-02"), ordered by creation so overlap resolution is
	// deterministic.
	ListExceptions(ctx context.Context, providerID uuid.UUID, fromDate, toDate string) ([]ScheduleException, error)
	DeleteException(ctx context.Context, id uuid.UUID) error
}
