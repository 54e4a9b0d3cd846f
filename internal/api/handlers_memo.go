package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicore/opd-queue/internal/clinic"
)

func createMemoHandler(svc *clinic.MemoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateMemoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		m, err := svc.CreateMemo(r.Context(), clinic.CreateMemoInput{
			PatientID:   patientID,
			PatientName: req.PatientName,
			Departments: req.Departments,
			Message:     req.Message,
		})
		if err != nil {
			handleClinicError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toMemoResponse(m))
	}
}

// getMemoHandler returns the stored memo, or the live view with per-entry
// queue summaries when ?queue_info=true.
func getMemoHandler(svc *clinic.MemoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_memo_id", "id must be a valid UUID")
			return
		}

		if r.URL.Query().Get("queue_info") == "true" {
			view, err := svc.GetMemoWithQueueInfo(r.Context(), id)
			if err != nil {
				handleClinicError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toMemoViewResponse(view))
			return
		}

		m, err := svc.GetMemo(r.Context(), id)
		if err != nil {
			handleClinicError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMemoResponse(m))
	}
}

func listPatientMemosHandler(svc *clinic.MemoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseIDParam(r, "patientID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient id must be a valid UUID")
			return
		}

		memos, err := svc.ListMemosByPatient(r.Context(), patientID)
		if err != nil {
			handleClinicError(w, err)
			return
		}

		resp := make([]MemoResponse, 0, len(memos))
		for i := range memos {
			resp = append(resp, toMemoResponse(&memos[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateMemoHandler(svc *clinic.MemoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_memo_id", "id must be a valid UUID")
			return
		}

		var req UpdateMemoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var status *clinic.MemoStatus
		if req.Status != nil {
			s := clinic.MemoStatus(*req.Status)
			status = &s
		}

		m, err := svc.UpdateMemo(r.Context(), id, clinic.UpdateMemoInput{
			Departments: req.Departments,
			Status:      status,
		})
		if err != nil {
			handleClinicError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMemoResponse(m))
	}
}

func markMemoReadHandler(svc *clinic.MemoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_memo_id", "id must be a valid UUID")
			return
		}

		m, err := svc.MarkRead(r.Context(), id)
		if err != nil {
			handleClinicError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMemoResponse(m))
	}
}
