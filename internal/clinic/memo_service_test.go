package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newMemoFixture() (*MemoService, *memRepo, *recordingPublisher) {
	repo := newMemRepo()
	pub := &recordingPublisher{}
	return NewMemoService(repo, pub), repo, pub
}

func TestCreateMemoNormalizesEntries(t *testing.T) {
	svc, repo, pub := newMemoFixture()
	ctx := context.Background()

	deptID := repo.addDepartment("Pathology", 10)
	patientID := repo.addPatient("Asha")

	staleVisit := uuid.New()
	staleToken := 9
	memo, err := svc.CreateMemo(ctx, CreateMemoInput{
		PatientID: patientID,
		Departments: []MemoDepartment{{
			DepartmentID:   deptID,
			DepartmentName: "Pathology",
			VisitID:        &staleVisit,
			TokenNumber:    &staleToken,
			IsVisited:      true,
			Tests: []MemoTest{
				{TestName: "CBC", IsSelected: false, IsCompleted: true},
			},
		}},
	})
	if err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	if memo.Status != MemoActive {
		t.Fatalf("expected active memo, got %q", memo.Status)
	}
	if memo.PatientName != "Asha" {
		t.Fatalf("expected patient name filled from record, got %q", memo.PatientName)
	}
	entry := memo.Departments[0]
	if entry.VisitID != nil || entry.TokenNumber != nil || entry.IsVisited {
		t.Fatalf("expected stale visit references cleared, got %+v", entry)
	}
	test := entry.Tests[0]
	if !test.IsSelected || test.IsCompleted {
		t.Fatalf("expected test normalized to selected/not-completed, got %+v", test)
	}

	events := pub.byName(EventMemoCreated)
	if len(events) != 1 {
		t.Fatalf("expected one memo-created event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(MemoCreatedPayload)
	if !ok || payload.PatientID != patientID {
		t.Fatalf("unexpected payload %+v", events[0].Payload)
	}
}

func TestCreateMemoValidation(t *testing.T) {
	svc, repo, _ := newMemoFixture()
	ctx := context.Background()

	deptID := repo.addDepartment("Pathology", 10)
	patientID := repo.addPatient("Asha")

	t.Run("missing patient", func(t *testing.T) {
		_, err := svc.CreateMemo(ctx, CreateMemoInput{
			Departments: []MemoDepartment{{DepartmentID: deptID}},
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("no departments", func(t *testing.T) {
		_, err := svc.CreateMemo(ctx, CreateMemoInput{PatientID: patientID})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("entry without department id", func(t *testing.T) {
		_, err := svc.CreateMemo(ctx, CreateMemoInput{
			PatientID:   patientID,
			Departments: []MemoDepartment{{}},
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := svc.CreateMemo(ctx, CreateMemoInput{
			PatientID:   uuid.New(),
			Departments: []MemoDepartment{{DepartmentID: deptID}},
		})
		if !errors.Is(err, ErrPatientNotFound) {
			t.Fatalf("expected ErrPatientNotFound, got %v", err)
		}
	})
}

func TestMarkReadIdempotent(t *testing.T) {
	svc, repo, _ := newMemoFixture()
	ctx := context.Background()

	deptID := repo.addDepartment("Pathology", 10)
	patientID := repo.addPatient("Asha")

	memo, err := svc.CreateMemo(ctx, CreateMemoInput{
		PatientID:   patientID,
		Departments: []MemoDepartment{{DepartmentID: deptID}},
	})
	if err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	first, err := svc.MarkRead(ctx, memo.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !first.IsRead {
		t.Fatal("expected memo marked read")
	}

	second, err := svc.MarkRead(ctx, memo.ID)
	if err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if !second.IsRead {
		t.Fatal("expected memo to stay read")
	}

	if _, err := svc.MarkRead(ctx, uuid.New()); !errors.Is(err, ErrMemoNotFound) {
		t.Fatalf("expected ErrMemoNotFound, got %v", err)
	}
}

func TestUpdateMemoPartial(t *testing.T) {
	svc, repo, _ := newMemoFixture()
	ctx := context.Background()

	deptID := repo.addDepartment("Pathology", 10)
	patientID := repo.addPatient("Asha")

	memo, err := svc.CreateMemo(ctx, CreateMemoInput{
		PatientID:   patientID,
		Departments: []MemoDepartment{{DepartmentID: deptID, DepartmentName: "Pathology"}},
	})
	if err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	t.Run("status only", func(t *testing.T) {
		status := MemoCompleted
		updated, err := svc.UpdateMemo(ctx, memo.ID, UpdateMemoInput{Status: &status})
		if err != nil {
			t.Fatalf("UpdateMemo: %v", err)
		}
		if updated.Status != MemoCompleted {
			t.Fatalf("expected completed, got %q", updated.Status)
		}
		if len(updated.Departments) != 1 {
			t.Fatalf("departments changed on status-only update: %+v", updated.Departments)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		status := MemoStatus("archived")
		if _, err := svc.UpdateMemo(ctx, memo.ID, UpdateMemoInput{Status: &status}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown memo", func(t *testing.T) {
		if _, err := svc.UpdateMemo(ctx, uuid.New(), UpdateMemoInput{}); !errors.Is(err, ErrMemoNotFound) {
			t.Fatalf("expected ErrMemoNotFound, got %v", err)
		}
	})
}

func TestGetMemoWithQueueInfo(t *testing.T) {
	repo := newMemRepo()
	pub := &recordingPublisher{}
	memoSvc := NewMemoService(repo, pub)
	queueSvc := NewQueueService(repo, newKeyedLocker(), pub, time.UTC)
	ctx := context.Background()

	deptID := repo.addDepartment("Radiology", 15)
	patientID := repo.addPatient("Asha")
	other := repo.addPatient("Vikram")

	// one patient already waiting
	if _, err := queueSvc.JoinQueue(ctx, JoinQueueInput{DepartmentID: deptID, PatientID: other}); err != nil {
		t.Fatalf("JoinQueue: %v", err)
	}

	ghostDept := uuid.New()
	memo, err := memoSvc.CreateMemo(ctx, CreateMemoInput{
		PatientID: patientID,
		Departments: []MemoDepartment{
			{DepartmentID: deptID, DepartmentName: "Radiology"},
			{DepartmentID: ghostDept, DepartmentName: "Closed Wing"},
		},
	})
	if err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	view, err := memoSvc.GetMemoWithQueueInfo(ctx, memo.ID)
	if err != nil {
		t.Fatalf("GetMemoWithQueueInfo: %v", err)
	}
	if len(view.Departments) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(view.Departments))
	}

	var live, ghost *MemoDepartmentView
	for i := range view.Departments {
		switch view.Departments[i].DepartmentID {
		case deptID:
			live = &view.Departments[i]
		case ghostDept:
			ghost = &view.Departments[i]
		}
	}
	if live == nil || live.QueueInfo == nil {
		t.Fatal("expected queue info on the live department entry")
	}
	if live.QueueInfo.CurrentQueueSize != 1 || live.QueueInfo.EstimatedTotalWaitTime != 15 {
		t.Fatalf("unexpected queue info %+v", live.QueueInfo)
	}
	if ghost == nil || ghost.QueueInfo != nil {
		t.Fatal("expected nil queue info for the unresolvable department entry")
	}
}
