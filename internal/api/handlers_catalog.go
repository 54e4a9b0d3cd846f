package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/clinic"
)

// Doctors

func createDoctorHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := svc.CreateDoctor(r.Context(), clinic.DoctorInput{
			Name:           req.Name,
			Specialization: req.Specialization,
			AllSlots:       req.AllSlots,
		})
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctorResponse(d))
	}
}

func listDoctorsHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			handleClinicError(w, err)
			return
		}
		resp := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			resp = append(resp, toDoctorResponse(&doctors[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDoctorHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}
		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func updateDoctorHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req DoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := svc.UpdateDoctor(r.Context(), id, clinic.DoctorInput{
			Name:           req.Name,
			Specialization: req.Specialization,
			AllSlots:       req.AllSlots,
		})
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func deleteDoctorHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}
		if err := svc.DeleteDoctor(r.Context(), id); err != nil {
			handleClinicError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getDoctorSlotsHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		slots, err := svc.GetDoctorSlots(r.Context(), id)
		if err != nil {
			handleClinicError(w, err)
			return
		}

		resp := DoctorSlotsResponse{
			AllSlots:    slots.AllSlots,
			BookedSlots: make([]BookedSlotResponse, 0, len(slots.BookedSlots)),
		}
		for _, s := range slots.BookedSlots {
			resp.BookedSlots = append(resp.BookedSlots, BookedSlotResponse{
				Date:        s.Date,
				SlotLabel:   s.SlotLabel,
				PatientID:   s.PatientID,
				PatientName: s.PatientName,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDoctorQueueHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		q, err := svc.GetDoctorQueue(r.Context(), id, r.URL.Query().Get("date"))
		if err != nil {
			handleClinicError(w, err)
			return
		}

		resp := DoctorQueueResponse{
			DoctorName:           q.DoctorName,
			DoctorSpecialization: q.DoctorSpecialization,
			Date:                 q.Date,
			Queue:                make([]DoctorQueueEntryResponse, 0, len(q.Queue)),
			TotalPatients:        q.TotalPatients,
		}
		for _, e := range q.Queue {
			resp.Queue = append(resp.Queue, DoctorQueueEntryResponse{
				Position:    e.Position,
				PatientName: e.PatientName,
				SlotLabel:   e.SlotLabel,
				Status:      string(e.Status),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Departments

func createDepartmentHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DepartmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := svc.CreateDepartment(r.Context(), departmentInput(req))
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDepartmentResponse(d))
	}
}

func listDepartmentsHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		departments, err := svc.ListDepartments(r.Context(), activeOnly)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		resp := make([]DepartmentResponse, 0, len(departments))
		for i := range departments {
			resp = append(resp, toDepartmentResponse(&departments[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDepartmentHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
			return
		}
		d, err := svc.GetDepartment(r.Context(), id)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDepartmentResponse(d))
	}
}

func updateDepartmentHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
			return
		}

		var req DepartmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := svc.UpdateDepartment(r.Context(), id, departmentInput(req))
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDepartmentResponse(d))
	}
}

func deleteDepartmentHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
			return
		}
		if err := svc.DeleteDepartment(r.Context(), id); err != nil {
			handleClinicError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func departmentInput(req DepartmentRequest) clinic.DepartmentInput {
	return clinic.DepartmentInput{
		Name:            req.Name,
		Description:     req.Description,
		AverageWaitTime: req.AverageWaitTime,
		IsActive:        req.IsActive,
		Location:        req.Location,
		Image:           req.Image,
	}
}

// Tests

func createTestHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, ok := testInput(w, req)
		if !ok {
			return
		}

		t, err := svc.CreateTest(r.Context(), in)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTestResponse(t))
	}
}

func listTestsHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var departmentID *uuid.UUID
		if v := r.URL.Query().Get("department_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
				return
			}
			departmentID = &id
		}

		tests, err := svc.ListTests(r.Context(), departmentID)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		resp := make([]TestResponse, 0, len(tests))
		for i := range tests {
			resp = append(resp, toTestResponse(&tests[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateTestHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_test_id", "id must be a valid UUID")
			return
		}

		var req TestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, ok := testInput(w, req)
		if !ok {
			return
		}

		t, err := svc.UpdateTest(r.Context(), id, in)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTestResponse(t))
	}
}

func deleteTestHandler(svc *clinic.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_test_id", "id must be a valid UUID")
			return
		}
		if err := svc.DeleteTest(r.Context(), id); err != nil {
			handleClinicError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func testInput(w http.ResponseWriter, req TestRequest) (clinic.TestInput, bool) {
	departmentID, err := uuid.Parse(req.DepartmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
		return clinic.TestInput{}, false
	}
	return clinic.TestInput{
		Name:               req.Name,
		Description:        req.Description,
		DepartmentID:       departmentID,
		AverageProcessTime: req.AverageProcessTime,
		Price:              req.Price,
		IsActive:           req.IsActive,
	}, true
}
