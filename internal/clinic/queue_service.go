package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/events"
	redisclient "github.com/clinicore/opd-queue/internal/redis"
)

const (
	EventQueueUpdated       = "queue-updated"
	EventVisitStatusUpdated = "visit-status-updated"
)

// ErrQueueBusy means the per-(department, day) admission lock was held by
// another request. Expected under load; the caller should retry shortly.
var ErrQueueBusy = errors.New("queue is being updated, please retry")

type QueueUpdatedPayload struct {
	DepartmentID uuid.UUID        `json:"departmentId"`
	QueueSize    int              `json:"queueSize"`
	NewVisit     *DepartmentVisit `json:"newVisit"`
}

type VisitStatusUpdatedPayload struct {
	DepartmentID uuid.UUID   `json:"departmentId"`
	VisitID      uuid.UUID   `json:"visitId"`
	Status       VisitStatus `json:"status"`
}

// visitTransitions is the forward-only state machine; completed and cancelled
// are terminal.
var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitWaiting:    {VisitInProgress, VisitCancelled},
	VisitInProgress: {VisitCompleted, VisitCancelled},
}

func validVisitStatus(s VisitStatus) bool {
	switch s {
	case VisitWaiting, VisitInProgress, VisitCompleted, VisitCancelled:
		return true
	}
	return false
}

// QueueService owns department queues: token issuance, membership, the visit
// state machine and the derived queue projection. Token issuance for one
// (department, day) is serialized three deep: a Redis lock across instances,
// the department row lock inside the transaction, and a unique index as the
// last line.
type QueueService struct {
	repo   Repository
	locker redisclient.Locker
	pub    events.Publisher
	loc    *time.Location
}

func NewQueueService(repo Repository, locker redisclient.Locker, pub events.Publisher, loc *time.Location) *QueueService {
	return &QueueService{
		repo:   repo,
		locker: locker,
		pub:    pub,
		loc:    loc,
	}
}

type JoinQueueInput struct {
	DepartmentID uuid.UUID
	PatientID    uuid.UUID
	PatientName  string
	MemoID       *uuid.UUID
}

// JoinQueue admits a patient: next token for the clinic-local day, estimated
// wait from the counter at admission time, counter bump and optional memo
// back-fill all commit atomically before the queue-updated event goes out.
func (s *QueueService) JoinQueue(ctx context.Context, in JoinQueueInput) (*DepartmentVisit, error) {
	if in.DepartmentID == uuid.Nil || in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: department and patient are required", ErrValidation)
	}

	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	name := in.PatientName
	if name == "" {
		name = patient.Name
	}

	day := ServiceDay(time.Now(), s.loc)
	lockKey := fmt.Sprintf("queue:%s:%s", in.DepartmentID, day)

	var visit *DepartmentVisit
	var queueSize int

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		var inner error
		visit, queueSize, inner = s.repo.CreateVisitInQueue(lockCtx, CreateVisitInput{
			DepartmentID: in.DepartmentID,
			PatientID:    in.PatientID,
			PatientName:  name,
			ServiceDay:   day,
			MemoID:       in.MemoID,
		})
		return inner
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create visit: %w", err)
	}

	s.pub.Publish(EventQueueUpdated, QueueUpdatedPayload{
		DepartmentID: in.DepartmentID,
		QueueSize:    queueSize,
		NewVisit:     visit,
	})

	return visit, nil
}

// GetQueue projects the live queue. Size, positions and wait times are
// derived from the actual active visits on every call; the cached counter is
// deliberately not consulted since it can drift.
func (s *QueueService) GetQueue(ctx context.Context, departmentID uuid.UUID) (*QueueSnapshot, error) {
	dept, err := s.repo.GetDepartmentByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load department: %w", err)
	}

	visits, err := s.repo.ListActiveVisits(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list active visits: %w", err)
	}

	snapshot := &QueueSnapshot{
		DepartmentID:           dept.ID,
		DepartmentName:         dept.Name,
		CurrentQueueSize:       len(visits),
		AverageWaitTime:        dept.AverageWaitTime,
		EstimatedTotalWaitTime: dept.AverageWaitTime * len(visits),
		Queue:                  make([]QueueEntry, 0, len(visits)),
	}

	for i, v := range visits {
		snapshot.Queue = append(snapshot.Queue, QueueEntry{
			Position:    i + 1,
			TokenNumber: v.TokenNumber,
			PatientName: v.PatientName,
			Status:      v.Status,
			WaitTime:    dept.AverageWaitTime * i,
		})
	}

	return snapshot, nil
}

func (s *QueueService) GetVisit(ctx context.Context, id uuid.UUID) (*DepartmentVisit, error) {
	v, err := s.repo.GetVisitByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// UpdateVisitStatus enforces the state machine, then hands the transition to
// the store as a compare-and-swap. Terminal transitions adjust the counter
// and memo back-references inside the same transaction.
func (s *QueueService) UpdateVisitStatus(ctx context.Context, visitID uuid.UUID, to VisitStatus) (*DepartmentVisit, error) {
	if !validVisitStatus(to) {
		return nil, fmt.Errorf("%w: unknown visit status %q", ErrValidation, to)
	}

	visit, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load visit: %w", err)
	}

	if !visitTransitionAllowed(visit.Status, to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateVisitStatus(ctx, visitID, visit.Status, to)
	if err != nil {
		// the visit transitioned between our read and the CAS
		if errors.Is(err, ErrVisitNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update visit status: %w", err)
	}

	s.pub.Publish(EventVisitStatusUpdated, VisitStatusUpdatedPayload{
		DepartmentID: updated.DepartmentID,
		VisitID:      updated.ID,
		Status:       updated.Status,
	})

	return updated, nil
}

// ReconcileQueueSizes re-derives every cached counter; the reconcile worker
// calls this on an interval.
func (s *QueueService) ReconcileQueueSizes(ctx context.Context) (int64, error) {
	return s.repo.ReconcileQueueSizes(ctx)
}

func visitTransitionAllowed(from, to VisitStatus) bool {
	for _, a := range visitTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
