package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boardd/internal/auth"
	"github.com/nerrad567/boardd/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.cfg.Panel.Enabled {
		r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.Panel.Dir)))
		r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Auth via single-use ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermBoardRead)).Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/boards", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBoardRead)).Get("/", s.handleListBoards)

				r.Route("/{id}", func(r chi.Router) {
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermBoardRead))
						r.Get("/", s.handleGetBoard)
						r.Get("/history", s.handleBoardHistory)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermBoardConfigure))
						r.Put("/keys", s.handleSetKey)
						r.Put("/leds/{index}/color", s.handleSetColor)
						r.Put("/leds/{index}/brightness", s.handleSetBrightness)
						r.Put("/layers/{layer}/mode", s.handleSetMode)
						r.Post("/save", s.handleLedSave)
					})
				})
			})

			r.Route("/system", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSystemAdmin))
				r.Get("/status", s.handleStatus)
				r.Post("/refresh", s.handleRefresh)
				r.Put("/matrix-rate", s.handleSetMatrixRate)
				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}
