package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/events"
)

const (
	EventDoctorAdded       = "doctor-added"
	EventDoctorUpdated     = "doctor-updated"
	EventDoctorDeleted     = "doctor-deleted"
	EventDepartmentAdded   = "department-added"
	EventDepartmentUpdated = "department-updated"
	EventDepartmentDeleted = "department-deleted"
)

// DefaultSlotLabels is the offerable set used when a doctor is created
// without an explicit one.
var DefaultSlotLabels = []string{"09:00 AM", "10:00 AM", "11:00 AM", "02:00 PM", "03:00 PM"}

const slotLabelLayout = "03:04 PM"

// CatalogService is the CRUD surface around the allocation engine: doctors,
// departments and the test catalog. It holds no allocation logic; the only
// coupling is the delete cascade from a doctor to its bookings.
type CatalogService struct {
	repo Repository
	pub  events.Publisher
}

func NewCatalogService(repo Repository, pub events.Publisher) *CatalogService {
	return &CatalogService{repo: repo, pub: pub}
}

// Doctors

type DoctorInput struct {
	Name           string
	Specialization string
	AllSlots       []string
}

func (s *CatalogService) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	if in.Name == "" || in.Specialization == "" {
		return nil, fmt.Errorf("%w: name and specialization are required", ErrValidation)
	}

	slots := in.AllSlots
	if len(slots) == 0 {
		slots = append([]string(nil), DefaultSlotLabels...)
	}

	d := &Doctor{
		ID:             uuid.New(),
		Name:           in.Name,
		Specialization: in.Specialization,
		AllSlots:       slots,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	s.pub.Publish(EventDoctorAdded, map[string]any{"doctorId": d.ID, "doctor": d})
	return d, nil
}

func (s *CatalogService) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

func (s *CatalogService) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *CatalogService) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	if in.Name == "" || in.Specialization == "" {
		return nil, fmt.Errorf("%w: name and specialization are required", ErrValidation)
	}
	if len(in.AllSlots) == 0 {
		return nil, fmt.Errorf("%w: at least one slot label is required", ErrValidation)
	}

	d, err := s.repo.UpdateDoctor(ctx, &Doctor{
		ID:             id,
		Name:           in.Name,
		Specialization: in.Specialization,
		AllSlots:       in.AllSlots,
	})
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}

	s.pub.Publish(EventDoctorUpdated, map[string]any{"doctorId": d.ID, "doctor": d})
	return d, nil
}

// DeleteDoctor removes the doctor and, via cascade, every booking and
// booked-slot record it owns. The cascade is not atomic with in-flight
// booking requests; a booking committed concurrently disappears with it.
func (s *CatalogService) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("delete doctor: %w", err)
	}

	s.pub.Publish(EventDoctorDeleted, map[string]any{"doctorId": id})
	return nil
}

// DoctorSlots is the availability view: the offerable set plus the mirror of
// currently booked slots.
type DoctorSlots struct {
	AllSlots    []string
	BookedSlots []BookedSlot
}

func (s *CatalogService) GetDoctorSlots(ctx context.Context, id uuid.UUID) (*DoctorSlots, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}

	booked, err := s.repo.ListBookedSlots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	return &DoctorSlots{AllSlots: d.AllSlots, BookedSlots: booked}, nil
}

type DoctorQueueEntry struct {
	Position    int
	PatientName string
	SlotLabel   string
	Status      BookingStatus
}

type DoctorQueue struct {
	DoctorName           string
	DoctorSpecialization string
	Date                 string
	Queue                []DoctorQueueEntry
	TotalPatients        int
}

// GetDoctorQueue lists the confirmed bookings for one date in slot order.
func (s *CatalogService) GetDoctorQueue(ctx context.Context, id uuid.UUID, date string) (*DoctorQueue, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be formatted %s", ErrValidation, DateLayout)
	}

	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}

	bookings, err := s.repo.ListConfirmedBookingsForDate(ctx, id, date)
	if err != nil {
		return nil, fmt.Errorf("list bookings for date: %w", err)
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		return slotLabelBefore(bookings[i].SlotLabel, bookings[j].SlotLabel)
	})

	q := &DoctorQueue{
		DoctorName:           d.Name,
		DoctorSpecialization: d.Specialization,
		Date:                 date,
		Queue:                make([]DoctorQueueEntry, 0, len(bookings)),
		TotalPatients:        len(bookings),
	}
	for i, b := range bookings {
		q.Queue = append(q.Queue, DoctorQueueEntry{
			Position:    i + 1,
			PatientName: b.PatientName,
			SlotLabel:   b.SlotLabel,
			Status:      b.Status,
		})
	}

	return q, nil
}

// slotLabelBefore orders "09:00 AM"-style labels by clock time, falling back
// to lexical order for labels that do not parse.
func slotLabelBefore(a, b string) bool {
	ta, errA := time.Parse(slotLabelLayout, a)
	tb, errB := time.Parse(slotLabelLayout, b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}

// Departments

type DepartmentInput struct {
	Name            string
	Description     *string
	AverageWaitTime int
	IsActive        *bool
	Location        *string
	Image           *string
}

func (s *CatalogService) CreateDepartment(ctx context.Context, in DepartmentInput) (*Department, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: department name is required", ErrValidation)
	}

	avg := in.AverageWaitTime
	if avg <= 0 {
		avg = 15
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	d := &Department{
		ID:              uuid.New(),
		Name:            in.Name,
		Description:     in.Description,
		AverageWaitTime: avg,
		IsActive:        active,
		Location:        in.Location,
		Image:           in.Image,
	}
	if err := s.repo.CreateDepartment(ctx, d); err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}

	s.pub.Publish(EventDepartmentAdded, map[string]any{"departmentId": d.ID, "department": d})
	return d, nil
}

func (s *CatalogService) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := s.repo.GetDepartmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return d, nil
}

func (s *CatalogService) ListDepartments(ctx context.Context, activeOnly bool) ([]Department, error) {
	departments, err := s.repo.ListDepartments(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

func (s *CatalogService) UpdateDepartment(ctx context.Context, id uuid.UUID, in DepartmentInput) (*Department, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: department name is required", ErrValidation)
	}

	current, err := s.repo.GetDepartmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load department: %w", err)
	}

	current.Name = in.Name
	current.Description = in.Description
	if in.AverageWaitTime > 0 {
		current.AverageWaitTime = in.AverageWaitTime
	}
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	current.Location = in.Location
	current.Image = in.Image

	d, err := s.repo.UpdateDepartment(ctx, current)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update department: %w", err)
	}

	s.pub.Publish(EventDepartmentUpdated, map[string]any{"departmentId": d.ID, "department": d})
	return d, nil
}

func (s *CatalogService) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return err
		}
		return fmt.Errorf("delete department: %w", err)
	}

	s.pub.Publish(EventDepartmentDeleted, map[string]any{"departmentId": id})
	return nil
}

// Tests

type TestInput struct {
	Name               string
	Description        *string
	DepartmentID       uuid.UUID
	AverageProcessTime int
	Price              float64
	IsActive           *bool
}

func (s *CatalogService) CreateTest(ctx context.Context, in TestInput) (*Test, error) {
	if in.Name == "" || in.DepartmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: test name and department are required", ErrValidation)
	}

	dept, err := s.repo.GetDepartmentByID(ctx, in.DepartmentID)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load department: %w", err)
	}

	avg := in.AverageProcessTime
	if avg <= 0 {
		avg = 10
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	t := &Test{
		ID:                 uuid.New(),
		Name:               in.Name,
		Description:        in.Description,
		DepartmentID:       dept.ID,
		DepartmentName:     dept.Name,
		AverageProcessTime: avg,
		Price:              in.Price,
		IsActive:           active,
	}
	if err := s.repo.CreateTest(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	return t, nil
}

func (s *CatalogService) ListTests(ctx context.Context, departmentID *uuid.UUID) ([]Test, error) {
	tests, err := s.repo.ListTests(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	return tests, nil
}

func (s *CatalogService) UpdateTest(ctx context.Context, id uuid.UUID, in TestInput) (*Test, error) {
	if in.Name == "" || in.DepartmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: test name and department are required", ErrValidation)
	}

	current, err := s.repo.GetTestByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load test: %w", err)
	}

	dept, err := s.repo.GetDepartmentByID(ctx, in.DepartmentID)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load department: %w", err)
	}

	current.Name = in.Name
	current.Description = in.Description
	current.DepartmentID = dept.ID
	current.DepartmentName = dept.Name
	if in.AverageProcessTime > 0 {
		current.AverageProcessTime = in.AverageProcessTime
	}
	current.Price = in.Price
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}

	t, err := s.repo.UpdateTest(ctx, current)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update test: %w", err)
	}
	return t, nil
}

func (s *CatalogService) DeleteTest(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteTest(ctx, id); err != nil {
		if errors.Is(err, ErrTestNotFound) {
			return err
		}
		return fmt.Errorf("delete test: %w", err)
	}
	return nil
}
