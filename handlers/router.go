package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storybot/middleware"
	"storybot/session"
)

// NewRouter wires the command surface. Story commands mirror the engine
// operations one-to-one; settings and rogue control are guild-scoped.
func NewRouter(engine *session.Engine, allowedOrigins string) *chi.Mux {
	h := NewHandlers(engine)

	r := chi.NewRouter()
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "storybot",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/story", func(r chi.Router) {
			r.Post("/start", h.StartStory)
			r.Post("/add", h.AddContribution)
			r.Post("/recap", h.Recap)
			r.Post("/twist", h.PlotTwist)
			r.Post("/end", h.EndStory)
			r.Post("/export", h.ExportStory)
		})

		r.Route("/guilds/{guildID}", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Patch("/settings", h.PatchSettings)
			r.Post("/channel", h.SetDesignatedChannel)
			r.Delete("/channel", h.ClearDesignatedChannel)

			r.Route("/rogue", func(r chi.Router) {
				r.Post("/enable", h.EnableRogue)
				r.Post("/disable", h.DisableRogue)
				r.Post("/message", h.RogueMessage)
				r.Post("/activity", h.RogueActivity)
			})
		})
	})

	return r
}
