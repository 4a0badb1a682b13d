package main

import (
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/fixture-engine/internal/advance"
	"github.com/AdamBeresnev/fixture-engine/internal/bracket"
	"github.com/AdamBeresnev/fixture-engine/internal/httputil"
	"github.com/AdamBeresnev/fixture-engine/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type teamRequest struct {
	Name    string `json:"name"`
	Seed    *int   `json:"seed"`
	Pending bool   `json:"pending"`
}

type scoringRequest struct {
	Win         int  `json:"win"`
	Draw        int  `json:"draw"`
	Loss        int  `json:"loss"`
	AllowsDraws bool `json:"allows_draws"`
}

type createTournamentRequest struct {
	Name            string                   `json:"name"`
	Format          bracket.TournamentFormat `json:"format"`
	Scoring         *scoringRequest          `json:"scoring"`
	DoubleRound     bool                     `json:"double_round"`
	TwoLeggedPhases []string                 `json:"two_legged_phases"`
	AwayGoals       bool                     `json:"away_goals"`
	PenaltiesOnTie  *bool                    `json:"penalties_on_tie"`
	AllowByes       bool                     `json:"allow_byes"`
	Teams           []teamRequest            `json:"teams"`
}

type groupsRequest struct {
	NumGroups          int                    `json:"num_groups"`
	QualifiersPerGroup int                    `json:"qualifiers_per_group"`
	DoubleRound        bool                   `json:"double_round"`
	Assignments        map[string][]uuid.UUID `json:"assignments"`
}

type resultRequest struct {
	HomeScore int                   `json:"home_score"`
	AwayScore int                   `json:"away_score"`
	Finalize  bool                  `json:"finalize"`
	Penalties *service.PenaltyInput `json:"penalties"`
}

type eventRequest struct {
	TeamID uuid.UUID         `json:"team_id"`
	Kind   bracket.EventKind `json:"kind"`
	Minute *int              `json:"minute"`
	Player *string           `json:"player"`
}

type revertRequest struct {
	HomeScore        *int                  `json:"home_score"`
	AwayScore        *int                  `json:"away_score"`
	Penalties        *service.PenaltyInput `json:"penalties"`
	DeleteEventIDs   []uuid.UUID           `json:"delete_event_ids"`
	ExpectedAffected []uuid.UUID           `json:"expected_affected"`
	Confirmed        bool                  `json:"confirmed"`
}

func (r revertRequest) toService() service.RevertRequest {
	return service.RevertRequest{
		HomeScore:        r.HomeScore,
		AwayScore:        r.AwayScore,
		Penalties:        r.Penalties,
		DeleteEventIDs:   r.DeleteEventIDs,
		ExpectedAffected: r.ExpectedAffected,
	}
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// newRouter exposes the engine as a JSON API. A nil registry disables /metrics.
func newRouter(engine *service.Engine, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/tournaments", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			tournaments, err := engine.Tournaments.ListTournaments(r.Context())
			if err != nil {
				httputil.WriteError(w, "Failed to list tournaments", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, tournaments)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req createTournamentRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, "Invalid tournament", err)
				return
			}
			input := service.TournamentInput{
				Name:            req.Name,
				Format:          req.Format,
				DoubleRound:     req.DoubleRound,
				TwoLeggedPhases: req.TwoLeggedPhases,
				AwayGoals:       req.AwayGoals,
				PenaltiesOnTie:  req.PenaltiesOnTie == nil || *req.PenaltiesOnTie,
				AllowByes:       req.AllowByes,
			}
			if req.Scoring != nil {
				input.Scoring = &bracket.ScoringRule{
					PointsForWin:  req.Scoring.Win,
					PointsForDraw: req.Scoring.Draw,
					PointsForLoss: req.Scoring.Loss,
					AllowsDraws:   req.Scoring.AllowsDraws,
				}
			}
			for _, team := range req.Teams {
				input.Teams = append(input.Teams, service.TeamInput{Name: team.Name, Seed: team.Seed, Pending: team.Pending})
			}

			id, err := engine.Tournaments.CreateTournament(r.Context(), input)
			if err != nil {
				httputil.WriteError(w, "Failed to create tournament", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				data, err := engine.Tournaments.GetTournamentData(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, "Failed to get tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, data)
			})

			r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				if err := engine.Tournaments.CancelTournament(r.Context(), id); err != nil {
					httputil.WriteError(w, "Failed to cancel tournament", err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Put("/participants/{teamID}", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				teamID, ok := idParam(w, r, "teamID")
				if !ok {
					return
				}
				var req struct {
					Status bracket.ParticipantStatus `json:"status"`
				}
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.WriteError(w, "Invalid participant status", err)
					return
				}
				if err := engine.Tournaments.SetParticipantStatus(r.Context(), id, teamID, req.Status); err != nil {
					httputil.WriteError(w, "Failed to update participant", err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/fixtures/league", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				var req struct {
					DoubleRound bool `json:"double_round"`
				}
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.WriteError(w, "Invalid league options", err)
					return
				}
				res, err := engine.Fixtures.GenerateLeagueFixture(r.Context(), id, req.DoubleRound)
				if err != nil {
					httputil.WriteError(w, "Failed to generate league", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, res)
			})

			r.Post("/fixtures/elimination", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				var req struct {
					UseSeeding bool `json:"use_seeding"`
				}
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.WriteError(w, "Invalid bracket options", err)
					return
				}
				res, err := engine.Fixtures.GenerateSingleEliminationFixture(r.Context(), id, req.UseSeeding)
				if err != nil {
					httputil.WriteError(w, "Failed to generate bracket", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, res)
			})

			r.Post("/fixtures/groups", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				var req groupsRequest
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.WriteError(w, "Invalid groups options", err)
					return
				}
				res, err := engine.Fixtures.GenerateGroupsPhase(r.Context(), id, service.GroupsOptions{
					NumGroups:          req.NumGroups,
					QualifiersPerGroup: req.QualifiersPerGroup,
					DoubleRound:        req.DoubleRound,
					Assignments:        req.Assignments,
				})
				if err != nil {
					httputil.WriteError(w, "Failed to generate groups", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, res)
			})

			r.Post("/fixtures/playoff", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				res, err := engine.Fixtures.GeneratePlayoffFromGroups(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, "Failed to generate playoff", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, res)
			})

			r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
				id, ok := idParam(w, r, "id")
				if !ok {
					return
				}
				rows, err := engine.Standings.ComputeStandings(r.Context(), id, r.URL.Query().Get("group"))
				if err != nil {
					httputil.WriteError(w, "Failed to compute standings", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, rows)
			})
		})
	})

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			data, err := engine.Matches.GetMatchData(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, "Failed to get match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, data)
		})

		r.Put("/result", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			var req resultRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, "Invalid result", err)
				return
			}
			ack, err := engine.Matches.RecordMatchResult(r.Context(), id, service.ResultInput{
				HomeScore: req.HomeScore,
				AwayScore: req.AwayScore,
				Finalize:  req.Finalize,
				Penalties: req.Penalties,
			})
			if err != nil {
				httputil.WriteError(w, "Failed to record result", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, ack)
		})

		r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			plan, err := engine.Matches.AdvanceMatch(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, "Failed to advance match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"winner_id":         plan.WinnerID,
				"updated":           len(plan.Updates),
				"tournament_status": plan.TournamentStatus,
			})
		})

		r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			var req eventRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, "Invalid event", err)
				return
			}
			event, err := engine.Matches.AddMatchEvent(r.Context(), id, service.EventInput{
				TeamID: req.TeamID,
				Kind:   req.Kind,
				Minute: req.Minute,
				Player: req.Player,
			})
			if err != nil {
				httputil.WriteError(w, "Failed to add event", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, event)
		})

		r.Post("/revert/preview", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			var req revertRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, "Invalid revert", err)
				return
			}
			report, err := engine.Cascade.PreviewCascadeRevert(r.Context(), id, req.toService())
			if err != nil {
				httputil.WriteError(w, "Failed to preview revert", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, report)
		})

		r.Post("/revert", func(w http.ResponseWriter, r *http.Request) {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			var req revertRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, "Invalid revert", err)
				return
			}
			result, err := engine.Cascade.ExecuteCascadeRevert(r.Context(), id, req.toService(), req.Confirmed)
			if err != nil {
				httputil.WriteError(w, "Failed to revert match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})

		r.Get("/delete-impact", deleteImpactHandler(engine, advance.EntityMatch))
		r.Delete("/", deleteHandler(engine, advance.EntityMatch))
	})

	r.Delete("/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := engine.Matches.RemoveMatchEvent(r.Context(), id); err != nil {
			httputil.WriteError(w, "Failed to remove event", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/rounds/{id}", func(r chi.Router) {
		r.Get("/delete-impact", deleteImpactHandler(engine, advance.EntityRound))
		r.Delete("/", deleteHandler(engine, advance.EntityRound))
	})

	return r
}

func deleteImpactHandler(engine *service.Engine, kind advance.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		report, err := engine.Cascade.PreviewDeleteImpact(r.Context(), kind, id)
		if err != nil {
			httputil.WriteError(w, "Failed to preview delete", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, report)
	}
}

// deleteHandler needs ?confirm=true, like the cascade revert needs "confirmed".
func deleteHandler(engine *service.Engine, kind advance.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
		result, err := engine.Cascade.ExecuteDelete(r.Context(), kind, id, confirmed)
		if err != nil {
			httputil.WriteError(w, "Failed to delete "+string(kind), err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}
