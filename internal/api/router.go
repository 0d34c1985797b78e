package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/acs-auto/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Operator panel (embedded, or served from disk when PanelDir is set)
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.panelDir)))
	r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Token exchange (no auth required)
		r.Post("/auth/token", s.handleToken)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/panel", s.handlePanelState)

			r.Route("/macros", func(r chi.Router) {
				r.Get("/export", s.handleExportMacros)
				r.Post("/import", s.handleImportMacros)

				r.Route("/{category}", func(r chi.Router) {
					r.Get("/", s.handleListMacros)
					r.Post("/", s.handleCreateMacro)

					r.Route("/{index}", func(r chi.Router) {
						r.Get("/", s.handleGetMacro)
						r.Patch("/", s.handleRenameMacro)
						r.Delete("/", s.handleDeleteMacro)
						r.Post("/activate", s.handleActivateMacro)

						r.Post("/steps", s.handleAddStep)
						r.Route("/steps/{step}", func(r chi.Router) {
							r.Patch("/", s.handleUpdateStep)
							r.Delete("/", s.handleDeleteStep)
							r.Post("/move", s.handleMoveStep)
						})
					})
				})
			})

			r.Route("/runs", func(r chi.Router) {
				r.Post("/", s.handleStartRun)
				r.Get("/", s.handleListRuns)
				r.Get("/current", s.handleCurrentRun)
				r.Get("/{id}", s.handleGetRun)
			})

			r.Get("/stop", s.handleGetStop)
			r.Post("/stop", s.handleToggleStop)
			r.Put("/stop", s.handleSetStop)

			r.Post("/click", s.handleClick)

			r.Get("/selections", s.handleListSelections)
			r.Put("/selections/{category}", s.handleSetSelection)
			r.Get("/devices", s.handleDeviceCatalog)

			r.Route("/dataset", func(r chi.Router) {
				r.Get("/", s.handleGetDataset)
				r.Post("/import", s.handleImportDataset)
				r.Post("/jump", s.handleJump)
				r.Put("/auto-increment", s.handleSetAutoIncrement)
			})

			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handleUpdateSettings)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleAddTemplate)
				r.Put("/{key}", s.handleSetTemplate)
				r.Patch("/{key}", s.handleRenameTemplate)
				r.Delete("/{key}", s.handleDeleteTemplate)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"station": s.station.ID,
	})
}

// handlePanelState returns the current operator panel state.
func (s *Server) handlePanelState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.panel.Snapshot())
}
