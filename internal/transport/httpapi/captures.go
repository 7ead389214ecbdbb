package httpapi

import (
	"fmt"
	"net/http"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/game/capture"
	"github.com/cory-johannsen/tepache/internal/identity"
)

type directCaptureRequest struct {
	GameSessionURN   string `json:"gameSessionUrn"`
	PlayerSessionURN string `json:"playerSessionUrn"`
	Payload          string `json:"payload"`
}

// handleDirectCapture accepts anonymous callers; an identified caller must
// own the player session.
func (s *Server) handleDirectCapture(w http.ResponseWriter, r *http.Request) {
	var req directCaptureRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := capture.DirectRequest{
		GameSessionURN:   req.GameSessionURN,
		PlayerSessionURN: req.PlayerSessionURN,
		Payload:          req.Payload,
	}
	if id, ok := identity.FromContext(r.Context()); ok {
		in.UID = id.UID
	}
	res, err := s.deps.Captures.IngestDirect(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// handleSMSCapture accepts the gateway's form-encoded webhook and answers
// with an empty TwiML document so no reply message is sent.
func (s *Server) handleSMSCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, apperr.Validation("malformed form body: %v", err))
		return
	}
	_, err := s.deps.Captures.IngestSMS(r.Context(), capture.SMSRequest{
		From:      r.PostFormValue("From"),
		Payload:   r.PostFormValue("Body"),
		MessageID: r.PostFormValue("MessageSid"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, emptyTwiML)
}
