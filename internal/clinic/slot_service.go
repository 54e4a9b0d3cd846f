package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/events"
)

const (
	EventSlotUpdated = "slot-updated"
)

// SlotUpdatedPayload is broadcast whenever a (doctor, date, slot) key changes
// hands: on allocation and on cancellation.
type SlotUpdatedPayload struct {
	DoctorID  uuid.UUID `json:"doctorId"`
	Date      string    `json:"date"`
	SlotLabel string    `json:"slotLabel"`
}

// SlotService allocates doctor time slots. The no-double-booking guarantee
// lives in the store (partial unique index over live bookings); the service
// validates, orchestrates and publishes.
type SlotService struct {
	repo Repository
	pub  events.Publisher
}

func NewSlotService(repo Repository, pub events.Publisher) *SlotService {
	return &SlotService{repo: repo, pub: pub}
}

type BookSlotInput struct {
	DoctorID    uuid.UUID
	Date        string
	SlotLabel   string
	PatientID   uuid.UUID
	PatientName string
}

// BookSlot reserves a slot for a patient. Under concurrent calls for the same
// (doctor, date, slot) exactly one succeeds; the rest get ErrSlotTaken and
// nothing is written for them. The slot-updated event goes out only after the
// booking has committed.
func (s *SlotService) BookSlot(ctx context.Context, in BookSlotInput) (*Booking, error) {
	if in.DoctorID == uuid.Nil || in.PatientID == uuid.Nil || in.PatientName == "" || in.SlotLabel == "" {
		return nil, fmt.Errorf("%w: doctor, patient, patient name and slot are required", ErrValidation)
	}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be formatted %s", ErrValidation, DateLayout)
	}

	if _, err := s.repo.GetDoctorByID(ctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	b := &Booking{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		DoctorID:    in.DoctorID,
		Date:        in.Date,
		SlotLabel:   in.SlotLabel,
		Status:      BookingConfirmed,
	}

	if err := s.repo.InsertBooking(ctx, b); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	s.pub.Publish(EventSlotUpdated, SlotUpdatedPayload{
		DoctorID:  b.DoctorID,
		Date:      b.Date,
		SlotLabel: b.SlotLabel,
	})

	return b, nil
}

// bookingTransitions: cancelled and visited are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingVisited},
	BookingConfirmed: {BookingCancelled, BookingVisited},
}

func validBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingVisited:
		return true
	}
	return false
}

// UpdateBookingStatus moves a booking through its lifecycle. Cancelling frees
// the slot key, so a slot-updated event is emitted for it.
func (s *SlotService) UpdateBookingStatus(ctx context.Context, id uuid.UUID, to BookingStatus) (*Booking, error) {
	if !validBookingStatus(to) {
		return nil, fmt.Errorf("%w: unknown booking status %q", ErrValidation, to)
	}

	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if !transitionAllowed(bookingTransitions[b.Status], to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, b.Status, to)
	if err != nil {
		// the row moved under us between read and CAS
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	if to == BookingCancelled {
		s.pub.Publish(EventSlotUpdated, SlotUpdatedPayload{
			DoctorID:  updated.DoctorID,
			Date:      updated.Date,
			SlotLabel: updated.SlotLabel,
		})
	}

	return updated, nil
}

func (s *SlotService) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *SlotService) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

func transitionAllowed(allowed []BookingStatus, to BookingStatus) bool {
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}
