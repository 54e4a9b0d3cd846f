package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/events"
)

const (
	EventMemoCreated = "memo-created"
)

type MemoCreatedPayload struct {
	PatientID uuid.UUID  `json:"patientId"`
	Memo      *VisitMemo `json:"memo"`
}

// MemoService coordinates cross-department referrals. It never touches visit
// rows itself: back-filling visitId/token happens in the join-queue
// transaction, isVisited in the status-update transaction.
type MemoService struct {
	repo Repository
	pub  events.Publisher
}

func NewMemoService(repo Repository, pub events.Publisher) *MemoService {
	return &MemoService{repo: repo, pub: pub}
}

type CreateMemoInput struct {
	PatientID   uuid.UUID
	PatientName string
	Departments []MemoDepartment
	Message     *string
}

// CreateMemo opens a referral. Incoming test entries are normalized to
// selected/not-completed and any stale visit references are cleared.
func (s *MemoService) CreateMemo(ctx context.Context, in CreateMemoInput) (*VisitMemo, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient is required", ErrValidation)
	}
	if len(in.Departments) == 0 {
		return nil, fmt.Errorf("%w: at least one department entry is required", ErrValidation)
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

	departments := make([]MemoDepartment, len(in.Departments))
	for i, dept := range in.Departments {
		if dept.DepartmentID == uuid.Nil {
			return nil, fmt.Errorf("%w: department entry %d has no department id", ErrValidation, i)
		}
		entry := MemoDepartment{
			DepartmentID:   dept.DepartmentID,
			DepartmentName: dept.DepartmentName,
			Tests:          make([]MemoTest, len(dept.Tests)),
		}
		for j, t := range dept.Tests {
			entry.Tests[j] = MemoTest{
				TestID:      t.TestID,
				TestName:    t.TestName,
				IsSelected:  true,
				IsCompleted: false,
			}
		}
		departments[i] = entry
	}

	m := &VisitMemo{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		PatientName: name,
		Departments: departments,
		Status:      MemoActive,
		Message:     in.Message,
	}

	if err := s.repo.InsertMemo(ctx, m); err != nil {
		return nil, fmt.Errorf("insert memo: %w", err)
	}

	s.pub.Publish(EventMemoCreated, MemoCreatedPayload{
		PatientID: m.PatientID,
		Memo:      m,
	})

	return m, nil
}

type UpdateMemoInput struct {
	Departments []MemoDepartment // nil leaves entries unchanged
	Status      *MemoStatus
}

func (s *MemoService) UpdateMemo(ctx context.Context, id uuid.UUID, in UpdateMemoInput) (*VisitMemo, error) {
	if in.Status != nil && *in.Status != MemoActive && *in.Status != MemoCompleted {
		return nil, fmt.Errorf("%w: unknown memo status %q", ErrValidation, *in.Status)
	}

	m, err := s.repo.UpdateMemo(ctx, id, in.Departments, in.Status)
	if err != nil {
		if errors.Is(err, ErrMemoNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update memo: %w", err)
	}
	return m, nil
}

// MarkRead is idempotent; marking an already-read memo succeeds unchanged.
func (s *MemoService) MarkRead(ctx context.Context, id uuid.UUID) (*VisitMemo, error) {
	m, err := s.repo.MarkMemoRead(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMemoNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mark memo read: %w", err)
	}
	return m, nil
}

func (s *MemoService) GetMemo(ctx context.Context, id uuid.UUID) (*VisitMemo, error) {
	m, err := s.repo.GetMemoByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMemoNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get memo: %w", err)
	}
	return m, nil
}

func (s *MemoService) ListMemosByPatient(ctx context.Context, patientID uuid.UUID) ([]VisitMemo, error) {
	memos, err := s.repo.ListMemosByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	return memos, nil
}

// GetMemoWithQueueInfo joins a live queue summary onto each department entry.
// A department that cannot be resolved yields a nil QueueInfo for that entry
// only; the rest of the memo still comes back.
func (s *MemoService) GetMemoWithQueueInfo(ctx context.Context, id uuid.UUID) (*VisitMemoView, error) {
	m, err := s.repo.GetMemoByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMemoNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get memo: %w", err)
	}

	view := &VisitMemoView{
		VisitMemo:   *m,
		Departments: make([]MemoDepartmentView, 0, len(m.Departments)),
	}

	for _, entry := range m.Departments {
		view.Departments = append(view.Departments, MemoDepartmentView{
			MemoDepartment: entry,
			QueueInfo:      s.queueInfo(ctx, entry.DepartmentID),
		})
	}

	return view, nil
}

func (s *MemoService) queueInfo(ctx context.Context, departmentID uuid.UUID) *QueueInfo {
	dept, err := s.repo.GetDepartmentByID(ctx, departmentID)
	if err != nil {
		return nil
	}
	visits, err := s.repo.ListActiveVisits(ctx, departmentID)
	if err != nil {
		return nil
	}
	return &QueueInfo{
		CurrentQueueSize:       len(visits),
		AverageWaitTime:        dept.AverageWaitTime,
		EstimatedTotalWaitTime: dept.AverageWaitTime * len(visits),
	}
}
