package clinic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicore/opd-queue/internal/redis"
)

// memRepo is an in-memory Repository with the same atomicity contract as the
// Postgres implementation: one mutex plays the role of the store's per-key
// serialization, so the concurrency-sensitive methods behave like single
// indivisible operations.
type memRepo struct {
	mu          sync.Mutex
	patients    map[uuid.UUID]Patient
	doctors     map[uuid.UUID]Doctor
	bookings    map[uuid.UUID]Booking
	bookedSlots map[string]BookedSlot // doctor|date|slot
	departments map[uuid.UUID]Department
	visits      map[uuid.UUID]DepartmentVisit
	memos       map[uuid.UUID]VisitMemo
	tests       map[uuid.UUID]Test
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:    make(map[uuid.UUID]Patient),
		doctors:     make(map[uuid.UUID]Doctor),
		bookings:    make(map[uuid.UUID]Booking),
		bookedSlots: make(map[string]BookedSlot),
		departments: make(map[uuid.UUID]Department),
		visits:      make(map[uuid.UUID]DepartmentVisit),
		memos:       make(map[uuid.UUID]VisitMemo),
		tests:       make(map[uuid.UUID]Test),
	}
}

func slotKey(doctorID uuid.UUID, date, slot string) string {
	return doctorID.String() + "|" + date + "|" + slot
}

func (r *memRepo) addPatient(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = Patient{ID: id, Name: name}
	return id
}

func (r *memRepo) addDoctor(name, specialization string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.doctors[id] = Doctor{ID: id, Name: name, Specialization: specialization, AllSlots: DefaultSlotLabels}
	return id
}

func (r *memRepo) addDepartment(name string, avgWait int) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.departments[id] = Department{ID: id, Name: name, AverageWaitTime: avgWait, IsActive: true}
	return id
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

// Doctor catalog

func (r *memRepo) CreateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.doctors[d.ID] = *d
	return nil
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) ListDoctors(_ context.Context) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) UpdateDoctor(_ context.Context, d *Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.doctors[d.ID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	current.Name = d.Name
	current.Specialization = d.Specialization
	current.AllSlots = d.AllSlots
	current.UpdatedAt = time.Now()
	r.doctors[d.ID] = current
	return &current, nil
}

func (r *memRepo) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.doctors, id)
	for bid, b := range r.bookings {
		if b.DoctorID == id {
			delete(r.bookings, bid)
		}
	}
	for key, s := range r.bookedSlots {
		if s.DoctorID == id {
			delete(r.bookedSlots, key)
		}
	}
	return nil
}

func (r *memRepo) ListBookedSlots(_ context.Context, doctorID uuid.UUID) ([]BookedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BookedSlot
	for _, s := range r.bookedSlots {
		if s.DoctorID == doctorID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Slot allocation

func (r *memRepo) InsertBooking(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.bookings {
		if existing.DoctorID == b.DoctorID &&
			existing.Date == b.Date &&
			existing.SlotLabel == b.SlotLabel &&
			existing.Status != BookingCancelled {
			return ErrSlotTaken
		}
	}

	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = *b
	r.bookedSlots[slotKey(b.DoctorID, b.Date, b.SlotLabel)] = BookedSlot{
		DoctorID:    b.DoctorID,
		Date:        b.Date,
		SlotLabel:   b.SlotLabel,
		PatientID:   b.PatientID,
		PatientName: b.PatientName,
	}
	return nil
}

func (r *memRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *memRepo) ListBookings(_ context.Context, f BookingFilter) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if f.DoctorID != nil && b.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && b.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *memRepo) ListConfirmedBookingsForDate(_ context.Context, doctorID uuid.UUID, date string) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if b.DoctorID == doctorID && b.Date == date && b.Status == BookingConfirmed {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	if to == BookingCancelled {
		delete(r.bookedSlots, slotKey(b.DoctorID, b.Date, b.SlotLabel))
	}
	return &b, nil
}

// Departments

func (r *memRepo) CreateDepartment(_ context.Context, d *Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.departments[d.ID] = *d
	return nil
}

func (r *memRepo) GetDepartmentByID(_ context.Context, id uuid.UUID) (*Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &d, nil
}

func (r *memRepo) ListDepartments(_ context.Context, activeOnly bool) ([]Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Department
	for _, d := range r.departments {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) UpdateDepartment(_ context.Context, d *Department) (*Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.departments[d.ID]; !ok {
		return nil, ErrDepartmentNotFound
	}
	d.UpdatedAt = time.Now()
	r.departments[d.ID] = *d
	saved := r.departments[d.ID]
	return &saved, nil
}

func (r *memRepo) DeleteDepartment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.departments[id]; !ok {
		return ErrDepartmentNotFound
	}
	delete(r.departments, id)
	return nil
}

// Queue

func (r *memRepo) CreateVisitInQueue(_ context.Context, in CreateVisitInput) (*DepartmentVisit, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dept, ok := r.departments[in.DepartmentID]
	if !ok {
		return nil, 0, ErrDepartmentNotFound
	}

	maxToken := 0
	for _, v := range r.visits {
		if v.DepartmentID == in.DepartmentID && v.ServiceDay == in.ServiceDay && v.TokenNumber > maxToken {
			maxToken = v.TokenNumber
		}
	}

	now := time.Now()
	visit := DepartmentVisit{
		ID:                uuid.New(),
		PatientID:         in.PatientID,
		PatientName:       in.PatientName,
		DepartmentID:      dept.ID,
		DepartmentName:    dept.Name,
		TokenNumber:       maxToken + 1,
		Status:            VisitWaiting,
		EstimatedWaitTime: dept.AverageWaitTime * dept.CurrentQueueSize,
		ServiceDay:        in.ServiceDay,
		CheckInTime:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.visits[visit.ID] = visit

	dept.CurrentQueueSize++
	r.departments[dept.ID] = dept

	if in.MemoID != nil {
		if memo, ok := r.memos[*in.MemoID]; ok {
			for i := range memo.Departments {
				if memo.Departments[i].DepartmentID == dept.ID {
					vid := visit.ID
					tok := visit.TokenNumber
					memo.Departments[i].VisitID = &vid
					memo.Departments[i].TokenNumber = &tok
					break
				}
			}
			r.memos[*in.MemoID] = memo
		}
	}

	return &visit, dept.CurrentQueueSize, nil
}

func (r *memRepo) GetVisitByID(_ context.Context, id uuid.UUID) (*DepartmentVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return &v, nil
}

func (r *memRepo) ListActiveVisits(_ context.Context, departmentID uuid.UUID) ([]DepartmentVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DepartmentVisit
	for _, v := range r.visits {
		if v.DepartmentID == departmentID && (v.Status == VisitWaiting || v.Status == VisitInProgress) {
			out = append(out, v)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].TokenNumber < out[j-1].TokenNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *memRepo) UpdateVisitStatus(_ context.Context, id uuid.UUID, from, to VisitStatus) (*DepartmentVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visits[id]
	if !ok || v.Status != from {
		return nil, ErrVisitNotFound
	}

	v.Status = to
	v.UpdatedAt = time.Now()
	if to == VisitCompleted {
		now := time.Now()
		v.CompletionTime = &now
	}
	r.visits[id] = v

	if to == VisitCompleted || to == VisitCancelled {
		if dept, ok := r.departments[v.DepartmentID]; ok {
			if dept.CurrentQueueSize > 0 {
				dept.CurrentQueueSize--
			}
			r.departments[dept.ID] = dept
		}
	}

	for mid, memo := range r.memos {
		changed := false
		for i := range memo.Departments {
			if memo.Departments[i].VisitID != nil && *memo.Departments[i].VisitID == id {
				memo.Departments[i].IsVisited = to == VisitCompleted
				changed = true
			}
		}
		if changed {
			r.memos[mid] = memo
		}
	}

	return &v, nil
}

func (r *memRepo) ReconcileQueueSizes(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fixed int64
	for id, dept := range r.departments {
		count := 0
		for _, v := range r.visits {
			if v.DepartmentID == id && (v.Status == VisitWaiting || v.Status == VisitInProgress) {
				count++
			}
		}
		if dept.CurrentQueueSize != count {
			dept.CurrentQueueSize = count
			r.departments[id] = dept
			fixed++
		}
	}
	return fixed, nil
}

// Memos

func (r *memRepo) InsertMemo(_ context.Context, m *VisitMemo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	r.memos[m.ID] = *m
	return nil
}

func (r *memRepo) GetMemoByID(_ context.Context, id uuid.UUID) (*VisitMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memos[id]
	if !ok {
		return nil, ErrMemoNotFound
	}
	return &m, nil
}

func (r *memRepo) ListMemosByPatient(_ context.Context, patientID uuid.UUID) ([]VisitMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VisitMemo
	for _, m := range r.memos {
		if m.PatientID == patientID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateMemo(_ context.Context, id uuid.UUID, departments []MemoDepartment, status *MemoStatus) (*VisitMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memos[id]
	if !ok {
		return nil, ErrMemoNotFound
	}
	if departments != nil {
		m.Departments = departments
	}
	if status != nil {
		m.Status = *status
	}
	m.UpdatedAt = time.Now()
	r.memos[id] = m
	return &m, nil
}

func (r *memRepo) MarkMemoRead(_ context.Context, id uuid.UUID) (*VisitMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memos[id]
	if !ok {
		return nil, ErrMemoNotFound
	}
	m.IsRead = true
	m.UpdatedAt = time.Now()
	r.memos[id] = m
	return &m, nil
}

// Test catalog

func (r *memRepo) CreateTest(_ context.Context, t *Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tests[t.ID] = *t
	return nil
}

func (r *memRepo) GetTestByID(_ context.Context, id uuid.UUID) (*Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, ErrTestNotFound
	}
	return &t, nil
}

func (r *memRepo) ListTests(_ context.Context, departmentID *uuid.UUID) ([]Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Test
	for _, t := range r.tests {
		if !t.IsActive {
			continue
		}
		if departmentID != nil && t.DepartmentID != *departmentID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) UpdateTest(_ context.Context, t *Test) (*Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[t.ID]; !ok {
		return nil, ErrTestNotFound
	}
	t.UpdatedAt = time.Now()
	r.tests[t.ID] = *t
	saved := r.tests[t.ID]
	return &saved, nil
}

func (r *memRepo) DeleteTest(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[id]; !ok {
		return ErrTestNotFound
	}
	delete(r.tests, id)
	return nil
}

var _ Repository = (*memRepo)(nil)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Name    string
	Payload any
}

func (p *recordingPublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Name: event, Payload: payload})
}

func (p *recordingPublisher) byName(name string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// keyedLocker is an in-process Locker with real per-key mutual exclusion.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *keyedLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// busyLocker always reports contention.
type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
