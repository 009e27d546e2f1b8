package web

import (
	"fmt"
	"net/http"

	"github.com/conorfennell/openingdrill/internal/domain"
	"github.com/conorfennell/openingdrill/internal/session"
)

type deckResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type settingsBody struct {
	CurrentDeckID *int64 `json:"current_deck_id" validate:"omitempty,gt=0"`
	DailyNewCap   *int   `json:"daily_new_cap" validate:"omitempty,min=0,max=500"`
}

type startRequest struct {
	DeckID *int64 `json:"deck_id" validate:"omitempty,gt=0"`
}

type moveRequest struct {
	SAN string `json:"san" validate:"required,max=10"`
}

type flushRequest struct {
	Seconds int `json:"seconds" validate:"min=0,max=86400"`
}

type moveResponse struct {
	Move session.Move `json:"move"`
	View session.View `json:"view"`
}

type solutionResponse struct {
	Moves []string     `json:"moves"`
	View  session.View `json:"view"`
}

// handleListDecks lists every deck.
func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.ListDecks(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		resp := make([]deckResponse, 0, len(decks))
		for _, d := range decks {
			resp = append(resp, deckResponse{ID: d.ID, Name: d.Name})
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.db.GetSettings(r.Context(), userID(r.Context()))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		newCap := s.dailyNewCap(settings)
		respondJSON(w, http.StatusOK, settingsBody{CurrentDeckID: settings.CurrentDeckID, DailyNewCap: &newCap})
	}
}

// handlePutSettings updates the fields present in the body.
func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsBody
		if err := s.decode(r, &req, false); err != nil {
			s.handleError(w, r, err)
			return
		}
		ctx := r.Context()
		settings, err := s.db.GetSettings(ctx, userID(ctx))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.CurrentDeckID != nil {
			if _, err := s.db.FindDeck(ctx, *req.CurrentDeckID); err != nil {
				s.handleError(w, r, err)
				return
			}
			settings.CurrentDeckID = req.CurrentDeckID
		}
		if req.DailyNewCap != nil {
			settings.DailyNewCap = req.DailyNewCap
		}
		if err := s.db.SaveSettings(ctx, settings); err != nil {
			s.handleError(w, r, err)
			return
		}
		newCap := s.dailyNewCap(settings)
		respondJSON(w, http.StatusOK, settingsBody{CurrentDeckID: settings.CurrentDeckID, DailyNewCap: &newCap})
	}
}

func (s *Server) dailyNewCap(settings domain.Settings) int {
	if settings.DailyNewCap != nil {
		return *settings.DailyNewCap
	}
	if s.opts.DailyNewCap > 0 {
		return s.opts.DailyNewCap
	}
	return session.DefaultDailyNewCap
}

// handleStartSession starts a drill session on the requested deck, or on the
// learner's current deck when none is given. An explicit deck becomes current.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := s.decode(r, &req, true); err != nil {
			s.handleError(w, r, err)
			return
		}
		ctx := r.Context()
		user := userID(ctx)
		settings, err := s.db.GetSettings(ctx, user)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		deckID := req.DeckID
		if deckID == nil {
			deckID = settings.CurrentDeckID
		}
		if deckID == nil {
			s.handleError(w, r, fmt.Errorf("%w: no deck selected", errInvalidInput))
			return
		}
		if _, err := s.db.FindDeck(ctx, *deckID); err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.DeckID != nil {
			settings.CurrentDeckID = req.DeckID
			if err := s.db.SaveSettings(ctx, settings); err != nil {
				s.handleError(w, r, err)
				return
			}
		}

		sess, err := s.sessions.Start(ctx, user, *deckID, s.dailyNewCap(settings))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, sess.View())
	}
}

// withSession resolves the learner's session before calling fn.
func (s *Server) withSession(fn func(w http.ResponseWriter, r *http.Request, sess *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(userID(r.Context()))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		fn(w, r, sess)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		respondJSON(w, http.StatusOK, sess.View())
	})
}

func (s *Server) handlePlay() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req moveRequest
		if err := s.decode(r, &req, false); err != nil {
			s.handleError(w, r, err)
			return
		}
		m, err := sess.Play(r.Context(), req.SAN)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, moveResponse{Move: m, View: sess.View()})
	})
}

func (s *Server) handleShowSolution() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		rest, err := sess.ShowSolution(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, solutionResponse{Moves: rest, View: sess.View()})
	})
}

func (s *Server) handleRepeat() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if err := sess.Repeat(r.Context()); err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sess.View())
	})
}

func (s *Server) handleNext() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if err := sess.Advance(r.Context()); err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sess.View())
	})
}

func (s *Server) handleRemove() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if err := sess.Remove(r.Context()); err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sess.View())
	})
}

// handleFlush is called when the page is hidden: it saves what can be saved
// and records the time spent since the last flush.
func (s *Server) handleFlush() http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var req flushRequest
		if err := s.decode(r, &req, true); err != nil {
			s.handleError(w, r, err)
			return
		}
		if err := sess.Flush(r.Context()); err != nil {
			s.handleError(w, r, err)
			return
		}
		if err := sess.TrackTime(r.Context(), req.Seconds); err != nil {
			s.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
