package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/videotramites/vtramit/internal/appointment"
	"github.com/videotramites/vtramit/internal/auth"
	"github.com/videotramites/vtramit/internal/config"
	"github.com/videotramites/vtramit/internal/directory"
	httpmiddleware "github.com/videotramites/vtramit/internal/http/middleware"
	"github.com/videotramites/vtramit/internal/monitor"
	"github.com/videotramites/vtramit/internal/queue"
	"github.com/videotramites/vtramit/internal/videoconference"
)

// Handler agrupa las dependencias de la capa HTTP.
type Handler struct {
	cfg             *config.Config
	pool            *pgxpool.Pool
	redis           *redis.Client
	appointments    *appointment.Service
	queue           *queue.Service
	videoconference *videoconference.Service
	policy          *directory.Policy
	notifier        *monitor.SlackNotifier
	publicLimiter   *httpmiddleware.RateLimiter
	authLimiter     *httpmiddleware.RateLimiter
}

// Deps son las dependencias necesarias para montar el enrutador.
type Deps struct {
	Config          *config.Config
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	JWT             *auth.JWTManager
	Appointments    *appointment.Service
	Queue           *queue.Service
	Videoconference *videoconference.Service
	Policy          *directory.Policy
	Notifier        *monitor.SlackNotifier
}

// NewRouter devuelve el enrutador configurado.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{
		cfg:             deps.Config,
		pool:            deps.Pool,
		redis:           deps.Redis,
		appointments:    deps.Appointments,
		queue:           deps.Queue,
		videoconference: deps.Videoconference,
		policy:          deps.Policy,
		notifier:        deps.Notifier,
		publicLimiter:   httpmiddleware.NewRateLimiter(deps.Config.RateLimitPublic.RequestsPerSecond, deps.Config.RateLimitPublic.Burst),
		authLimiter:     httpmiddleware.NewRateLimiter(deps.Config.RateLimitAuth.RequestsPerSecond, deps.Config.RateLimitAuth.Burst),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(deps.Config.AllowOrigins))

	// Superficie pública: salud y la página anónima de videollamada del
	// ciudadano.
	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Route("/api/v1/videoconference/{roomCode}", func(vc chi.Router) {
			vc.Post("/notify", h.VideoconferenceNotify)
			vc.Get("/waiting", h.VideoconferenceWaiting)
			vc.Post("/finished", h.VideoconferenceFinished)
			vc.Get("/links", h.VideoconferenceLinks)
		})
	})

	// Superficie autenticada: panel del personal y sistema externo de citas.
	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(deps.JWT))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Route("/api/v1/appointments", func(api chi.Router) {
			api.Post("/", h.CreateOrUpdateAppointment)
			api.Delete("/{externalId}", h.CancelAppointmentByExternalID)
		})

		private.Route("/appointments", func(ap chi.Router) {
			ap.Get("/", h.SearchAppointments)
			ap.Post("/", h.CreateAppointment)
			ap.Get("/{id}", h.GetAppointment)
			ap.Put("/{id}", h.UpdateAppointment)
			ap.Post("/{id}/state/{state}", h.ChangeAppointmentState)
			ap.Post("/{id}/mail", h.SendAppointmentMail)
			ap.Get("/{id}/queue", h.ListAppointmentQueue)

			ap.Group(func(admin chi.Router) {
				admin.Use(httpmiddleware.RequireAdmin(deps.Config.AdminUser))
				admin.Delete("/{id}", h.DeleteAppointment)
			})
		})

		private.Get("/usercontext", h.UserContext)
		private.Get("/departments", h.Departments)
		private.Get("/config", h.ModuleConfig)

		private.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin(deps.Config.AdminUser))
			admin.Post("/config/groupLimit", h.UpdateGroupLimit)
			admin.Route("/queue", func(q chi.Router) {
				q.Get("/", h.ListQueue)
				q.Get("/next", h.NextQueueEntry)
				q.Get("/{id}", h.GetQueueEntry)
				q.Delete("/{id}", h.DeleteQueueEntry)
			})
		})
	})

	// Disparadores del planificador, protegidos por token compartido.
	r.Group(func(cron chi.Router) {
		cron.Use(httpmiddleware.RequireCronToken(deps.Config.CronToken))
		cron.Post("/cron/purge", h.CronPurge)
		cron.Post("/cron/preparetoday", h.CronPrepareToday)
	})

	return r
}

// Health responde un estado simple.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida las conexiones con Postgres y Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	var redisErr error
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependencias no disponibles", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
