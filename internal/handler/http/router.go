package http

import (
	"log/slog"
	"os"

	"github.com/cmlabs-hris/hris-presence-go/internal/config"
	"github.com/cmlabs-hris/hris-presence-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	app config.AppConfig,
	JWTService jwt.Service,
	attendanceHandler AttendanceHandler,
	originHandler OriginHandler,
	realtimeHandler RealtimeHandler,
) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(app.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", app.Name),
		slog.String("version", app.Version),
		slog.String("env", app.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {

		// Authenticates itself: the handshake may carry a realtime token in ?token=
		r.Get("/realtime", realtimeHandler.Connect)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Post("/realtime/token", realtimeHandler.GetToken)

			r.Route("/attendance", func(r chi.Router) {
				r.Get("/stats", attendanceHandler.Stats)
				r.Get("/today", attendanceHandler.Today)
			})

			r.Route("/origins", func(r chi.Router) {
				r.Get("/get-origins", originHandler.Get)

				// Admin only
				r.With(middleware.AdminOnly).Put("/set-origins", originHandler.Set)
			})
		})
	})

	return r
}
