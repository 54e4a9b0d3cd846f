package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/clinic"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Bookings

type BookSlotRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	SlotLabel   string `json:"slot_label"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status"`
}

type BookingResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	SlotLabel   string    `json:"slot_label"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toBookingResponse(b *clinic.Booking) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		PatientID:   b.PatientID,
		PatientName: b.PatientName,
		DoctorID:    b.DoctorID,
		Date:        b.Date,
		SlotLabel:   b.SlotLabel,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// Queue

type JoinQueueRequest struct {
	DepartmentID string `json:"department_id"`
	PatientID    string `json:"patient_id"`
	PatientName  string `json:"patient_name"`
	MemoID       string `json:"memo_id,omitempty"`
}

type UpdateVisitStatusRequest struct {
	Status string `json:"status"`
}

type VisitResponse struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	PatientName       string     `json:"patient_name"`
	DepartmentID      uuid.UUID  `json:"department_id"`
	DepartmentName    string     `json:"department_name"`
	TokenNumber       int        `json:"token_number"`
	Status            string     `json:"status"`
	EstimatedWaitTime int        `json:"estimated_wait_time"`
	ServiceDay        string     `json:"service_day"`
	CheckInTime       time.Time  `json:"check_in_time"`
	CompletionTime    *time.Time `json:"completion_time,omitempty"`
}

func toVisitResponse(v *clinic.DepartmentVisit) VisitResponse {
	return VisitResponse{
		ID:                v.ID,
		PatientID:         v.PatientID,
		PatientName:       v.PatientName,
		DepartmentID:      v.DepartmentID,
		DepartmentName:    v.DepartmentName,
		TokenNumber:       v.TokenNumber,
		Status:            string(v.Status),
		EstimatedWaitTime: v.EstimatedWaitTime,
		ServiceDay:        v.ServiceDay,
		CheckInTime:       v.CheckInTime,
		CompletionTime:    v.CompletionTime,
	}
}

type QueueEntryResponse struct {
	Position    int    `json:"position"`
	TokenNumber int    `json:"token_number"`
	PatientName string `json:"patient_name"`
	Status      string `json:"status"`
	WaitTime    int    `json:"wait_time"`
}

type QueueSnapshotResponse struct {
	DepartmentID           uuid.UUID            `json:"department_id"`
	DepartmentName         string               `json:"department_name"`
	CurrentQueueSize       int                  `json:"current_queue_size"`
	AverageWaitTime        int                  `json:"average_wait_time"`
	EstimatedTotalWaitTime int                  `json:"estimated_total_wait_time"`
	Queue                  []QueueEntryResponse `json:"queue"`
}

func toQueueSnapshotResponse(s *clinic.QueueSnapshot) QueueSnapshotResponse {
	resp := QueueSnapshotResponse{
		DepartmentID:           s.DepartmentID,
		DepartmentName:         s.DepartmentName,
		CurrentQueueSize:       s.CurrentQueueSize,
		AverageWaitTime:        s.AverageWaitTime,
		EstimatedTotalWaitTime: s.EstimatedTotalWaitTime,
		Queue:                  make([]QueueEntryResponse, 0, len(s.Queue)),
	}
	for _, e := range s.Queue {
		resp.Queue = append(resp.Queue, QueueEntryResponse{
			Position:    e.Position,
			TokenNumber: e.TokenNumber,
			PatientName: e.PatientName,
			Status:      string(e.Status),
			WaitTime:    e.WaitTime,
		})
	}
	return resp
}

// Memos. Department entries keep their stored camelCase shape; only the
// envelope uses snake_case.

type CreateMemoRequest struct {
	PatientID   string                  `json:"patient_id"`
	PatientName string                  `json:"patient_name"`
	Departments []clinic.MemoDepartment `json:"departments"`
	Message     *string                 `json:"message,omitempty"`
}

type UpdateMemoRequest struct {
	Departments []clinic.MemoDepartment `json:"departments,omitempty"`
	Status      *string                 `json:"status,omitempty"`
}

type MemoResponse struct {
	ID          uuid.UUID               `json:"id"`
	PatientID   uuid.UUID               `json:"patient_id"`
	PatientName string                  `json:"patient_name"`
	Departments []clinic.MemoDepartment `json:"departments"`
	Status      string                  `json:"status"`
	IsRead      bool                    `json:"is_read"`
	Message     *string                 `json:"message,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func toMemoResponse(m *clinic.VisitMemo) MemoResponse {
	return MemoResponse{
		ID:          m.ID,
		PatientID:   m.PatientID,
		PatientName: m.PatientName,
		Departments: m.Departments,
		Status:      string(m.Status),
		IsRead:      m.IsRead,
		Message:     m.Message,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type MemoViewResponse struct {
	ID          uuid.UUID                   `json:"id"`
	PatientID   uuid.UUID                   `json:"patient_id"`
	PatientName string                      `json:"patient_name"`
	Departments []clinic.MemoDepartmentView `json:"departments"`
	Status      string                      `json:"status"`
	IsRead      bool                        `json:"is_read"`
	Message     *string                     `json:"message,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func toMemoViewResponse(v *clinic.VisitMemoView) MemoViewResponse {
	return MemoViewResponse{
		ID:          v.ID,
		PatientID:   v.PatientID,
		PatientName: v.PatientName,
		Departments: v.Departments,
		Status:      string(v.Status),
		IsRead:      v.IsRead,
		Message:     v.Message,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

// Catalog

type DoctorRequest struct {
	Name           string   `json:"name"`
	Specialization string   `json:"specialization"`
	AllSlots       []string `json:"all_slots,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	AllSlots       []string  `json:"all_slots"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toDoctorResponse(d *clinic.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		AllSlots:       d.AllSlots,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type BookedSlotResponse struct {
	Date        string    `json:"date"`
	SlotLabel   string    `json:"slot_label"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
}

type DoctorSlotsResponse struct {
	AllSlots    []string             `json:"all_slots"`
	BookedSlots []BookedSlotResponse `json:"booked_slots"`
}

type DoctorQueueEntryResponse struct {
	Position    int    `json:"position"`
	PatientName string `json:"patient_name"`
	SlotLabel   string `json:"slot_label"`
	Status      string `json:"status"`
}

type DoctorQueueResponse struct {
	DoctorName           string                     `json:"doctor_name"`
	DoctorSpecialization string                     `json:"doctor_specialization"`
	Date                 string                     `json:"date"`
	Queue                []DoctorQueueEntryResponse `json:"queue"`
	TotalPatients        int                        `json:"total_patients"`
}

type DepartmentRequest struct {
	Name            string  `json:"name"`
	Description     *string `json:"description,omitempty"`
	AverageWaitTime int     `json:"average_wait_time"`
	IsActive        *bool   `json:"is_active,omitempty"`
	Location        *string `json:"location,omitempty"`
	Image           *string `json:"image,omitempty"`
}

type DepartmentResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	AverageWaitTime  int       `json:"average_wait_time"`
	CurrentQueueSize int       `json:"current_queue_size"`
	IsActive         bool      `json:"is_active"`
	Location         *string   `json:"location,omitempty"`
	Image            *string   `json:"image,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toDepartmentResponse(d *clinic.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		AverageWaitTime:  d.AverageWaitTime,
		CurrentQueueSize: d.CurrentQueueSize,
		IsActive:         d.IsActive,
		Location:         d.Location,
		Image:            d.Image,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type TestRequest struct {
	Name               string  `json:"name"`
	Description        *string `json:"description,omitempty"`
	DepartmentID       string  `json:"department_id"`
	AverageProcessTime int     `json:"average_process_time"`
	Price              float64 `json:"price"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

type TestResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	DepartmentID       uuid.UUID `json:"department_id"`
	DepartmentName     string    `json:"department_name"`
	AverageProcessTime int       `json:"average_process_time"`
	Price              float64   `json:"price"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toTestResponse(t *clinic.Test) TestResponse {
	return TestResponse{
		ID:                 t.ID,
		Name:               t.Name,
		Description:        t.Description,
		DepartmentID:       t.DepartmentID,
		DepartmentName:     t.DepartmentName,
		AverageProcessTime: t.AverageProcessTime,
		Price:              t.Price,
		IsActive:           t.IsActive,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}
