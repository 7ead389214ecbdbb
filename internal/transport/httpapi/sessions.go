package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/session"
)

type startGameSessionRequest struct {
	GameURN string `json:"gameUrn"`
}

func (s *Server) handleStartGameSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var req startGameSessionRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	g, err := s.deps.Games.Start(r.Context(), req.GameURN)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleEndGameSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	g, err := s.deps.Games.End(r.Context(), mux.Vars(r)["gameSessionUrn"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListPlayerSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Players.ListForUser(r.Context(), id.UID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Players.Views(list))
}

// handleGetPlayerSession answers 404 for sessions owned by someone else.
func (s *Server) handleGetPlayerSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	urn := mux.Vars(r)["playerSessionUrn"]
	ps, err := s.deps.Players.GetByURN(r.Context(), urn)
	if err == nil && ps.UID != id.UID {
		err = apperr.NotFound("player session %q", urn)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Players.View(ps))
}

type joinRequest struct {
	GameSessionURN string `json:"gameSessionUrn"`
	Name           string `json:"name"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ps, err := s.deps.Players.Join(r.Context(), req.GameSessionURN, id.UID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.deps.Players.View(ps))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := session.NormalizeName(req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	docID := mux.Vars(r)["playerSessionDocumentId"]
	if err := s.requireOwner(r, docID, id.UID); err != nil {
		s.writeError(w, r, err)
		return
	}
	ps, err := s.deps.Players.Rename(r.Context(), docID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Players.View(ps))
}

type heartbeatRequest struct {
	PlayerSessionID string `json:"playerSessionId"`
}

type heartbeatResponse struct {
	OK       bool                      `json:"ok"`
	WasStale bool                      `json:"wasStale"`
	Session  session.PlayerSessionView `json:"session"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req heartbeatRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireOwner(r, req.PlayerSessionID, id.UID); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Players.Heartbeat(r.Context(), req.PlayerSessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, heartbeatResponse{
		OK:       true,
		WasStale: res.WasStale,
		Session:  s.deps.Players.View(res.Session),
	})
}

// requireOwner reports NotFound unless the session with store id docID
// belongs to uid, so foreign sessions are indistinguishable from missing ones.
func (s *Server) requireOwner(r *http.Request, docID, uid string) error {
	ps, err := s.deps.Players.Get(r.Context(), docID)
	if err != nil {
		return err
	}
	if ps.UID != uid {
		return apperr.NotFound("player session %q", docID)
	}
	return nil
}
