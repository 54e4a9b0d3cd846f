package clinic

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingVisited   BookingStatus = "visited"
)

type VisitStatus string

const (
	VisitWaiting    VisitStatus = "waiting"
	VisitInProgress VisitStatus = "in-progress"
	VisitCompleted  VisitStatus = "completed"
	VisitCancelled  VisitStatus = "cancelled"
)

type MemoStatus string

const (
	MemoActive    MemoStatus = "active"
	MemoCompleted MemoStatus = "completed"
)

// DateLayout is the calendar-day format used for booking dates and queue
// service days.
const DateLayout = "2006-01-02"

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor is the bookable resource: a finite set of offerable slot labels plus
// the mirror list of currently booked slots.
type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	AllSlots       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookedSlot mirrors a live (non-cancelled) booking on the doctor's catalog
// entry. It exists at most once per (doctor, date, slot).
type BookedSlot struct {
	DoctorID    uuid.UUID
	Date        string
	SlotLabel   string
	PatientID   uuid.UUID
	PatientName string
}

type Booking struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	DoctorID    uuid.UUID
	Date        string
	SlotLabel   string
	Status      BookingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Department struct {
	ID               uuid.UUID
	Name             string
	Description      *string
	AverageWaitTime  int // minutes per patient
	CurrentQueueSize int // cached counter, reconciled by the worker
	IsActive         bool
	Location         *string
	Image            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DepartmentVisit struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	PatientName       string
	DepartmentID      uuid.UUID
	DepartmentName    string
	TokenNumber       int
	Status            VisitStatus
	EstimatedWaitTime int // minutes, fixed at check-in
	ServiceDay        string
	CheckInTime       time.Time
	CompletionTime    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type MemoTest struct {
	TestID      string `json:"testId"`
	TestName    string `json:"testName"`
	IsSelected  bool   `json:"isSelected"`
	IsCompleted bool   `json:"isCompleted"`
}

// MemoDepartment is one stop on a referral. VisitID and TokenNumber are
// back-filled when the patient actually joins that department's queue;
// IsVisited tracks the referenced visit reaching completed.
type MemoDepartment struct {
	DepartmentID   uuid.UUID  `json:"departmentId"`
	DepartmentName string     `json:"departmentName"`
	IsVisited      bool       `json:"isVisited"`
	VisitID        *uuid.UUID `json:"visitId,omitempty"`
	TokenNumber    *int       `json:"tokenNumber,omitempty"`
	Tests          []MemoTest `json:"tests"`
}

type VisitMemo struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Departments []MemoDepartment
	Status      MemoStatus
	IsRead      bool
	Message     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Test struct {
	ID                 uuid.UUID
	Name               string
	Description        *string
	DepartmentID       uuid.UUID
	DepartmentName     string
	AverageProcessTime int
	Price              float64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// QueueEntry is a derived row of the queue projection; position and wait time
// are recomputed on every read, never cached.
type QueueEntry struct {
	Position    int
	TokenNumber int
	PatientName string
	Status      VisitStatus
	WaitTime    int
}

type QueueSnapshot struct {
	DepartmentID           uuid.UUID
	DepartmentName         string
	CurrentQueueSize       int
	AverageWaitTime        int
	EstimatedTotalWaitTime int
	Queue                  []QueueEntry
}

// QueueInfo is the compact per-department summary joined onto memo entries.
type QueueInfo struct {
	CurrentQueueSize       int `json:"currentQueueSize"`
	AverageWaitTime        int `json:"averageWaitTime"`
	EstimatedTotalWaitTime int `json:"estimatedTotalWaitTime"`
}

// MemoDepartmentView is a memo entry with live queue info attached. QueueInfo
// is nil when the department could not be resolved.
type MemoDepartmentView struct {
	MemoDepartment
	QueueInfo *QueueInfo `json:"queueInfo"`
}

type VisitMemoView struct {
	VisitMemo
	Departments []MemoDepartmentView
}

// ServiceDay truncates t to the clinic-local calendar day that scopes queue
// tokens.
func ServiceDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
