package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/clinicore/opd-queue/internal/clinic"
	"github.com/clinicore/opd-queue/internal/events"
)

type RouterConfig struct {
	Slots       *clinic.SlotService
	Queue       *clinic.QueueService
	Memos       *clinic.MemoService
	Catalog     *clinic.CatalogService
	Hub         *events.Hub
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
	JWTSecret   []byte
	CORSOrigins []string
	RateLimit   rate.Limit
	RateBurst   int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	if cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// live events; auth happens on the HTTP routes, the stream itself is
	// broadcast-only
	r.Get("/ws", cfg.Hub.ServeWS)

	anyUser := AuthMiddleware(cfg.JWTSecret, RolePatient, RoleStaff)
	staffOnly := AuthMiddleware(cfg.JWTSecret, RoleStaff)

	// patient-facing
	r.Group(func(r chi.Router) {
		r.Use(anyUser)

		r.Post("/bookings", bookSlotHandler(cfg.Slots))
		r.Get("/bookings", listBookingsHandler(cfg.Slots))
		r.Get("/bookings/{id}", getBookingHandler(cfg.Slots))
		r.Patch("/bookings/{id}/status", updateBookingStatusHandler(cfg.Slots))

		r.Post("/visits", joinQueueHandler(cfg.Queue))
		r.Get("/visits/{id}", getVisitHandler(cfg.Queue))

		r.Get("/departments", listDepartmentsHandler(cfg.Catalog))
		r.Get("/departments/{id}", getDepartmentHandler(cfg.Catalog))
		r.Get("/departments/{id}/queue", getQueueHandler(cfg.Queue))

		r.Get("/doctors", listDoctorsHandler(cfg.Catalog))
		r.Get("/doctors/{id}", getDoctorHandler(cfg.Catalog))
		r.Get("/doctors/{id}/slots", getDoctorSlotsHandler(cfg.Catalog))

		r.Get("/memos/{id}", getMemoHandler(cfg.Memos))
		r.Post("/memos/{id}/read", markMemoReadHandler(cfg.Memos))
		r.Get("/patients/{patientID}/memos", listPatientMemosHandler(cfg.Memos))

		r.Get("/tests", listTestsHandler(cfg.Catalog))
	})

	// staff-facing
	r.Group(func(r chi.Router) {
		r.Use(staffOnly)

		r.Patch("/visits/{id}/status", updateVisitStatusHandler(cfg.Queue))

		r.Post("/memos", createMemoHandler(cfg.Memos))
		r.Put("/memos/{id}", updateMemoHandler(cfg.Memos))

		r.Post("/doctors", createDoctorHandler(cfg.Catalog))
		r.Put("/doctors/{id}", updateDoctorHandler(cfg.Catalog))
		r.Delete("/doctors/{id}", deleteDoctorHandler(cfg.Catalog))
		r.Get("/doctors/{id}/queue", getDoctorQueueHandler(cfg.Catalog))

		r.Post("/departments", createDepartmentHandler(cfg.Catalog))
		r.Put("/departments/{id}", updateDepartmentHandler(cfg.Catalog))
		r.Delete("/departments/{id}", deleteDepartmentHandler(cfg.Catalog))

		r.Post("/tests", createTestHandler(cfg.Catalog))
		r.Put("/tests/{id}", updateTestHandler(cfg.Catalog))
		r.Delete("/tests/{id}", deleteTestHandler(cfg.Catalog))
	})

	return r
}
