package clinic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrVisitNotFound      = errors.New("visit not found")
	ErrMemoNotFound       = errors.New("memo not found")
	ErrTestNotFound       = errors.New("test not found")

	// ErrSlotTaken means a live booking already holds the (doctor, date, slot)
	// key. Expected under concurrent booking; callers may retry another slot.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrInvalidTransition means the requested visit status change is not a
	// forward edge of the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CreateVisitInput carries everything the repository needs to admit a patient
// into a department queue in one transaction.
type CreateVisitInput struct {
	DepartmentID uuid.UUID
	PatientID    uuid.UUID
	PatientName  string
	ServiceDay   string
	MemoID       *uuid.UUID
}

type BookingFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *BookingStatus
}

// Repository contains all DB interactions needed by the services. Methods
// that span several rows (booking insert + slot mirror, visit insert + token +
// counter + memo back-fill, status CAS + counter + memo reflection) run as a
// single transaction so identical-key concurrency resolves inside the store.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Doctor catalog
	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) (*Doctor, error)
	// DeleteDoctor cascades to the doctor's bookings and booked-slot mirror.
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
	ListBookedSlots(ctx context.Context, doctorID uuid.UUID) ([]BookedSlot, error)

	// Slot allocation. InsertBooking is the atomic check-and-insert: it fails
	// with ErrSlotTaken when a non-cancelled booking already holds the key.
	InsertBooking(ctx context.Context, b *Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	ListConfirmedBookingsForDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Booking, error)
	// UpdateBookingStatus is compare-and-swap on the current status; it also
	// maintains the booked-slot mirror when a booking leaves the live set.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error)

	// Departments
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error)
	ListDepartments(ctx context.Context, activeOnly bool) ([]Department, error)
	UpdateDepartment(ctx context.Context, d *Department) (*Department, error)
	DeleteDepartment(ctx context.Context, id uuid.UUID) error

	// Queue. CreateVisitInQueue issues the next token for the department/day,
	// inserts the visit, bumps the counter and back-fills the memo entry, all
	// in one transaction serialized on the department row.
	CreateVisitInQueue(ctx context.Context, in CreateVisitInput) (*DepartmentVisit, int, error)
	GetVisitByID(ctx context.Context, id uuid.UUID) (*DepartmentVisit, error)
	ListActiveVisits(ctx context.Context, departmentID uuid.UUID) ([]DepartmentVisit, error)
	// UpdateVisitStatus is compare-and-swap on the current status, adjusting
	// the department counter and any referencing memo entries in the same
	// transaction.
	UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to VisitStatus) (*DepartmentVisit, error)
	// ReconcileQueueSizes re-derives every department counter from the actual
	// active-visit count and reports how many rows drifted.
	ReconcileQueueSizes(ctx context.Context) (int64, error)

	// Memos
	InsertMemo(ctx context.Context, m *VisitMemo) error
	GetMemoByID(ctx context.Context, id uuid.UUID) (*VisitMemo, error)
	ListMemosByPatient(ctx context.Context, patientID uuid.UUID) ([]VisitMemo, error)
	UpdateMemo(ctx context.Context, id uuid.UUID, departments []MemoDepartment, status *MemoStatus) (*VisitMemo, error)
	MarkMemoRead(ctx context.Context, id uuid.UUID) (*VisitMemo, error)

	// Test catalog
	CreateTest(ctx context.Context, t *Test) error
	GetTestByID(ctx context.Context, id uuid.UUID) (*Test, error)
	ListTests(ctx context.Context, departmentID *uuid.UUID) ([]Test, error)
	UpdateTest(ctx context.Context, t *Test) (*Test, error)
	DeleteTest(ctx context.Context, id uuid.UUID) error
}
