package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/game/session"
	"github.com/cory-johannsen/tepache/internal/urn"
)

var tracer = otel.Tracer("github.com/cory-johannsen/tepache/internal/game/capture")

// GameResolver resolves the game session a capture belongs to.
type GameResolver interface {
	Get(ctx context.Context, gameSessionURN string) (session.GameSession, error)
	Active(ctx context.Context) (session.GameSession, error)
}

// PlayerResolver resolves and provisions player sessions.
type PlayerResolver interface {
	GetByURN(ctx context.Context, playerSessionURN string) (session.PlayerSession, error)
	FindLatest(ctx context.Context, gameSessionURN, uid string) (session.PlayerSession, bool, error)
	Create(ctx context.Context, gameSessionURN, uid, name string) (session.PlayerSession, error)
	NotifyJoined(ctx context.Context, ps session.PlayerSession)
}

// DirectRequest is a capture from an already-identified socket client.
type DirectRequest struct {
	GameSessionURN   string
	PlayerSessionURN string
	Payload          string
	// UID is the caller's identity. When set it must own the player session.
	UID string
}

// SMSRequest is a capture relayed by the SMS gateway.
type SMSRequest struct {
	From    string
	Payload string
	// MessageID is the gateway's id for the inbound message. Optional.
	MessageID string
}

// Result is the outcome of an ingested capture.
type Result struct {
	Capture       Capture               `json:"capture"`
	PlayerSession session.PlayerSession `json:"playerSession"`
	// Provisioned is true when the SMS channel created the player session.
	// Concurrent first messages from one sender all report true.
	Provisioned bool `json:"provisioned"`
}

// Pipeline records captures from both channels. No store write happens until
// every resolution step has succeeded.
type Pipeline struct {
	store    Store
	games    GameResolver
	players  PlayerResolver
	senders  SenderIdentity
	notifier change.Notifier
	logs     audit.Appender
	logger   *zap.Logger
	now      func() time.Time

	// provisioning collapses concurrent lookups for one sender so a burst of
	// first messages provisions a single player session.
	provisioning singleflight.Group
}

// NewPipeline creates a Pipeline.
//
// Precondition: store, games, players, notifier, logs, and logger must be non-nil.
func NewPipeline(
	store Store,
	games GameResolver,
	players PlayerResolver,
	senders SenderIdentity,
	notifier change.Notifier,
	logs audit.Appender,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:    store,
		games:    games,
		players:  players,
		senders:  senders,
		notifier: notifier,
		logs:     logs,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// IngestDirect records a capture for the supplied game and player session pair.
//
// Postcondition: Returns a ValidationError for malformed input, a NotFoundError
// when the game session is not active or the player session does not belong to
// it, or a StorageError when the capture could not be persisted.
func (p *Pipeline) IngestDirect(ctx context.Context, req DirectRequest) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "capture.IngestDirect", trace.WithAttributes(
		attribute.String("channel", string(ChannelDirect)),
		attribute.String("game_session_urn", req.GameSessionURN),
	))
	defer func() { endSpan(span, err) }()

	if !urn.Valid(req.GameSessionURN) {
		return Result{}, apperr.Validation("gameSessionUrn %q is required to be a valid urn", req.GameSessionURN)
	}
	if !urn.Valid(req.PlayerSessionURN) {
		return Result{}, apperr.Validation("playerSessionUrn %q is required to be a valid urn", req.PlayerSessionURN)
	}
	payload := strings.TrimSpace(req.Payload)
	if payload == "" {
		return Result{}, apperr.Validation("payload is required")
	}

	game, err := p.games.Get(ctx, req.GameSessionURN)
	if err != nil {
		return Result{}, err
	}
	if game.Status != session.StatusActive {
		return Result{}, apperr.NotFound("game session %q is not active", game.URN)
	}
	ps, err := p.players.GetByURN(ctx, req.PlayerSessionURN)
	if err != nil {
		return Result{}, err
	}
	if ps.GameSessionURN != game.URN || (req.UID != "" && ps.UID != req.UID) {
		return Result{}, apperr.NotFound("player session %q in game session %q", ps.URN, game.URN)
	}

	c, err := p.record(ctx, game, ps, payload, ChannelDirect, "")
	if err != nil {
		return Result{}, err
	}
	return Result{Capture: c, PlayerSession: ps}, nil
}

// IngestSMS records a capture from an SMS sender into the active game
// session, provisioning an anonymous player session for first-time senders.
//
// Postcondition: Returns a NotFoundError when no game session is active, or a
// StorageError when a write failed. Duplicate deliveries are recorded as
// distinct captures.
func (p *Pipeline) IngestSMS(ctx context.Context, req SMSRequest) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "capture.IngestSMS", trace.WithAttributes(
		attribute.String("channel", string(ChannelSMS)),
	))
	defer func() { endSpan(span, err) }()

	uid, err := p.senders.UID(req.From)
	if err != nil {
		return Result{}, err
	}
	payload := strings.TrimSpace(req.Payload)
	if payload == "" {
		return Result{}, apperr.Validation("payload is required")
	}

	game, err := p.games.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("game_session_urn", game.URN))

	v, err, _ := p.provisioning.Do(game.URN+"\x00"+uid, func() (any, error) {
		return p.resolveSender(ctx, game.URN, uid)
	})
	if err != nil {
		return Result{}, err
	}
	sender := v.(resolvedSender)

	c, err := p.record(ctx, game, sender.session, payload, ChannelSMS, req.MessageID)
	if err != nil {
		return Result{}, err
	}
	return Result{Capture: c, PlayerSession: sender.session, Provisioned: sender.provisioned}, nil
}

type resolvedSender struct {
	session     session.PlayerSession
	provisioned bool
}

// resolveSender returns the sender's latest player session in the game,
// creating an anonymous one when there is none.
func (p *Pipeline) resolveSender(ctx context.Context, gameSessionURN, uid string) (resolvedSender, error) {
	ps, found, err := p.players.FindLatest(ctx, gameSessionURN, uid)
	if err != nil {
		return resolvedSender{}, err
	}
	if found {
		return resolvedSender{session: ps}, nil
	}
	ps, err = p.players.Create(ctx, gameSessionURN, uid, "")
	if err != nil {
		return resolvedSender{}, err
	}
	p.logger.Info("provisioned sms player session",
		zap.String("game_session_urn", gameSessionURN),
		zap.String("player_session_urn", ps.URN),
		zap.String("name", ps.Name),
	)
	p.players.NotifyJoined(ctx, ps)
	return resolvedSender{session: ps, provisioned: true}, nil
}

// record persists the capture, publishes it, and appends its Log entry. Only
// the capture write can fail the call.
func (p *Pipeline) record(ctx context.Context, game session.GameSession, ps session.PlayerSession, payload string, ch Channel, externalID string) (Capture, error) {
	c := Capture{
		URN:              urn.New(urn.NamespaceCapture),
		GameSessionURN:   game.URN,
		PlayerSessionURN: ps.URN,
		Payload:          payload,
		Channel:          ch,
		ExternalID:       externalID,
		ReceivedAt:       p.now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return Capture{}, err
	}
	if err := p.store.CreateCapture(ctx, c); err != nil {
		return Capture{}, fmt.Errorf("recording capture: %w", err)
	}

	if err := p.notifier.Notify(ctx, change.CaptureRecorded, c.GameSessionURN, c); err != nil {
		p.logger.Warn("publishing capture",
			zap.String("capture_urn", c.URN),
			zap.Error(err),
		)
	}
	if _, err := p.logs.Append(ctx, audit.Entry{
		GameSessionURN:   c.GameSessionURN,
		PlayerSessionURN: c.PlayerSessionURN,
		Kind:             audit.KindCapture,
		Message:          ps.Name + " captured",
		Data: map[string]string{
			"captureUrn": c.URN,
			"channel":    string(c.Channel),
		},
	}); err != nil {
		p.logger.Warn("appending capture log",
			zap.String("capture_urn", c.URN),
			zap.Error(err),
		)
	}

	p.logger.Debug("capture recorded",
		zap.String("capture_urn", c.URN),
		zap.String("game_session_urn", c.GameSessionURN),
		zap.String("player_session_urn", c.PlayerSessionURN),
		zap.String("channel", string(c.Channel)),
	)
	return c, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
