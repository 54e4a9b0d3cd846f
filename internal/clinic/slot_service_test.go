package clinic

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newSlotFixture() (*SlotService, *memRepo, *recordingPublisher) {
	repo := newMemRepo()
	pub := &recordingPublisher{}
	return NewSlotService(repo, pub), repo, pub
}

func TestBookSlotValidation(t *testing.T) {
	svc, repo, _ := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")
	patientID := repo.addPatient("Asha")

	cases := []struct {
		name string
		in   BookSlotInput
	}{
		{"missing doctor", BookSlotInput{PatientID: patientID, PatientName: "Asha", Date: "2026-09-01", SlotLabel: "09:00 AM"}},
		{"missing patient", BookSlotInput{DoctorID: doctorID, PatientName: "Asha", Date: "2026-09-01", SlotLabel: "09:00 AM"}},
		{"missing patient name", BookSlotInput{DoctorID: doctorID, PatientID: patientID, Date: "2026-09-01", SlotLabel: "09:00 AM"}},
		{"missing slot", BookSlotInput{DoctorID: doctorID, PatientID: patientID, PatientName: "Asha", Date: "2026-09-01"}},
		{"bad date", BookSlotInput{DoctorID: doctorID, PatientID: patientID, PatientName: "Asha", Date: "01/09/2026", SlotLabel: "09:00 AM"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.BookSlot(ctx, tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBookSlotUnknownDoctorAndPatient(t *testing.T) {
	svc, repo, _ := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")
	patientID := repo.addPatient("Asha")

	in := BookSlotInput{
		DoctorID: uuid.New(), PatientID: patientID, PatientName: "Asha",
		Date: "2026-09-01", SlotLabel: "09:00 AM",
	}
	if _, err := svc.BookSlot(ctx, in); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}

	in.DoctorID = doctorID
	in.PatientID = uuid.New()
	if _, err := svc.BookSlot(ctx, in); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestBookSlotSuccess(t *testing.T) {
	svc, repo, pub := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")
	patientID := repo.addPatient("Asha")

	b, err := svc.BookSlot(ctx, BookSlotInput{
		DoctorID: doctorID, PatientID: patientID, PatientName: "Asha",
		Date: "2026-09-01", SlotLabel: "09:00 AM",
	})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if b.Status != BookingConfirmed {
		t.Fatalf("expected confirmed booking, got %q", b.Status)
	}

	slots, err := repo.ListBookedSlots(ctx, doctorID)
	if err != nil {
		t.Fatalf("ListBookedSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].SlotLabel != "09:00 AM" {
		t.Fatalf("expected one booked slot 09:00 AM, got %+v", slots)
	}

	events := pub.byName(EventSlotUpdated)
	if len(events) != 1 {
		t.Fatalf("expected one slot-updated event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(SlotUpdatedPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", events[0].Payload)
	}
	if payload.DoctorID != doctorID || payload.Date != "2026-09-01" || payload.SlotLabel != "09:00 AM" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestBookSlotConcurrentSingleWinner(t *testing.T) {
	svc, repo, pub := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")

	const workers = 16
	patients := make([]uuid.UUID, workers)
	for i := range patients {
		patients[i] = repo.addPatient("Patient")
	}

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := svc.BookSlot(ctx, BookSlotInput{
				DoctorID: doctorID, PatientID: patientID, PatientName: "Patient",
				Date: "2026-09-01", SlotLabel: "10:00 AM",
			})
			results <- err
		}(patients[i])
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotTaken):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != workers-1 {
		t.Fatalf("expected 1 winner and %d losers, got %d/%d", workers-1, won, lost)
	}
	if got := len(pub.byName(EventSlotUpdated)); got != 1 {
		t.Fatalf("expected exactly one slot-updated event, got %d", got)
	}
}

func TestUpdateBookingStatusTransitions(t *testing.T) {
	svc, repo, _ := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")
	patientID := repo.addPatient("Asha")

	book := func(t *testing.T, slot string) *Booking {
		t.Helper()
		b, err := svc.BookSlot(ctx, BookSlotInput{
			DoctorID: doctorID, PatientID: patientID, PatientName: "Asha",
			Date: "2026-09-01", SlotLabel: slot,
		})
		if err != nil {
			t.Fatalf("BookSlot: %v", err)
		}
		return b
	}

	t.Run("confirmed to visited", func(t *testing.T) {
		b := book(t, "09:00 AM")
		updated, err := svc.UpdateBookingStatus(ctx, b.ID, BookingVisited)
		if err != nil {
			t.Fatalf("UpdateBookingStatus: %v", err)
		}
		if updated.Status != BookingVisited {
			t.Fatalf("expected visited, got %q", updated.Status)
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		b := book(t, "10:00 AM")
		if _, err := svc.UpdateBookingStatus(ctx, b.ID, BookingCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := svc.UpdateBookingStatus(ctx, b.ID, BookingConfirmed); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		b := book(t, "11:00 AM")
		if _, err := svc.UpdateBookingStatus(ctx, b.ID, BookingStatus("archived")); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		if _, err := svc.UpdateBookingStatus(ctx, uuid.New(), BookingCancelled); !errors.Is(err, ErrBookingNotFound) {
			t.Fatalf("expected ErrBookingNotFound, got %v", err)
		}
	})
}

func TestCancelBookingFreesSlot(t *testing.T) {
	svc, repo, pub := newSlotFixture()
	ctx := context.Background()

	doctorID := repo.addDoctor("Dr. Rao", "Cardiology")
	first := repo.addPatient("Asha")
	second := repo.addPatient("Vikram")

	in := BookSlotInput{
		DoctorID: doctorID, PatientID: first, PatientName: "Asha",
		Date: "2026-09-01", SlotLabel: "02:00 PM",
	}
	b, err := svc.BookSlot(ctx, in)
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}

	// taken while live
	in.PatientID = second
	in.PatientName = "Vikram"
	if _, err := svc.BookSlot(ctx, in); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	if _, err := svc.UpdateBookingStatus(ctx, b.ID, BookingCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.BookSlot(ctx, in); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	slots, err := repo.ListBookedSlots(ctx, doctorID)
	if err != nil {
		t.Fatalf("ListBookedSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].PatientID != second {
		t.Fatalf("expected the slot to belong to the second patient, got %+v", slots)
	}

	// book, cancel (frees), rebook
	if got := len(pub.byName(EventSlotUpdated)); got != 3 {
		t.Fatalf("expected 3 slot-updated events, got %d", got)
	}
}
