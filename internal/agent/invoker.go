package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/conversation"
	"github.com/Monterroso/Frinny-Backend/internal/mood"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/internal/persona"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

var _ Invoker = (*chatAgent)(nil)

// Config holds the dependencies of the production [Invoker].
//
// Session, Personas and Generator are required.
type Config struct {
	Session   *conversation.Session
	Personas  *persona.Registry
	Generator Generator

	// Metrics is optional; nil records nothing.
	Metrics *observe.Metrics

	// GenerateTimeout bounds the generation step. Zero means no limit
	// beyond the caller's context.
	GenerateTimeout time.Duration

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

type chatAgent struct {
	session  *conversation.Session
	personas *persona.Registry
	gen      Generator
	metrics  *observe.Metrics
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// New creates the production [Invoker].
//
// Errors are prefixed with "agent: ".
func New(cfg Config) (Invoker, error) {
	var errs []error
	if cfg.Session == nil {
		errs = append(errs, errors.New("agent: Session must not be nil"))
	}
	if cfg.Personas == nil {
		errs = append(errs, errors.New("agent: Personas must not be nil"))
	}
	if cfg.Generator == nil {
		errs = append(errs, errors.New("agent: Generator must not be nil"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	a := &chatAgent{
		session:  cfg.Session,
		personas: cfg.Personas,
		gen:      cfg.Generator,
		metrics:  cfg.Metrics,
		timeout:  cfg.GenerateTimeout,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a, nil
}

// Invoke implements [Invoker].
func (a *chatAgent) Invoke(ctx context.Context, req Request) (resp Response) {
	start := a.now()
	req = a.resolve(req)

	ctx, span := observe.StartSpan(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("event", req.EventType),
		attribute.String("request_id", req.RequestID),
	))
	defer span.End()
	log := observe.Logger(ctx).With("event", req.EventType, "request_id", req.RequestID, "user_id", req.UserID)

	p := a.personas.Resolve(req.Personality)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent: panic: %v", r)
			log.Error("panic while handling request", "err", err)
			resp = a.failure(req, p, err)
		}
		if resp.Status == StatusError {
			span.SetStatus(codes.Error, resp.DebugInfo)
		}
		if a.metrics != nil {
			a.metrics.RecordRequest(ctx, req.EventType, resp.Status, a.now().Sub(start))
		}
	}()

	if req.UserID == "" {
		return a.failure(req, p, ErrMissingUser)
	}
	key := checkpoint.Key{UserID: req.UserID, ContextID: req.ContextID}
	inbound := types.Message{Role: types.RoleUser, Content: inboundText(req.Payload)}
	if inbound.Content == "" {
		return a.failure(req, p, ErrEmptyMessage)
	}
	log.Debug("inbound message", "context_id", key.ContextID, "content", inbound.Content)

	conv, err := a.session.LoadOrCreate(ctx, key, req.Personality)
	if err != nil {
		log.Warn("conversation load failed, continuing with empty history",
			"backend", a.session.Store().Name(), "key", key.String(), "op", "get", "err", err)
		a.degraded(ctx, "load")
	}
	p = conv.Persona

	reply, err := a.generate(ctx, conv.Prompt(inbound))
	if err != nil {
		log.Error("generation failed", "err", err)
		return a.failure(req, p, err)
	}

	res := mood.Extract(reply, inbound.Content)
	at := a.now()
	conv.Commit(inbound, types.Message{Role: types.RoleAssistant, Content: res.Text}, req.EventType, at)
	if conv.Degraded {
		// The stored history was never read; writing now would replace it
		// with this single turn.
		log.Warn("turn not saved after failed load",
			"backend", a.session.Store().Name(), "key", key.String(), "op", "put")
		a.degraded(ctx, "persist")
	} else {
		a.persist(ctx, log, conv)
	}

	return Response{
		RequestID: req.RequestID,
		Status:    StatusSuccess,
		Timestamp: at.UnixMilli(),
		ContextID: key.ContextID,
		Persona:   p.Name,
		Mood:      string(res.Mood),
		Field:     p.ResponseField(req.EventType),
		Text:      res.Text,
	}
}

func (a *chatAgent) generate(ctx context.Context, msgs []types.Message) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.gen.Generate(ctx, msgs)
}

// persist writes the turn. A failed write is followed by one verification
// read, since the write may have landed, and then by one retry. Anything
// beyond that is logged and the turn stays unpersisted.
func (a *chatAgent) persist(ctx context.Context, log *slog.Logger, conv *conversation.Conversation) {
	backend := a.session.Store().Name()
	err := a.session.Save(ctx, conv)
	if err == nil {
		return
	}
	log.Warn("conversation save failed", "backend", backend, "key", conv.Key.String(), "op", "put", "err", err)

	ok, verr := a.session.Verify(ctx, conv)
	if ok {
		log.Info("conversation save verified after error", "backend", backend, "key", conv.Key.String())
		return
	}
	if verr != nil {
		log.Warn("conversation verify failed", "backend", backend, "key", conv.Key.String(), "op", "get", "err", verr)
	}

	if err := a.session.Save(ctx, conv); err != nil {
		log.Error("conversation left unpersisted", "backend", backend, "key", conv.Key.String(), "op", "put", "err", err)
		a.degraded(ctx, "persist")
	}
}

func (a *chatAgent) degraded(ctx context.Context, stage string) {
	if a.metrics != nil {
		a.metrics.RecordDegradation(ctx, stage, a.session.Store().Name())
	}
}

func (a *chatAgent) failure(req Request, p persona.Persona, err error) Response {
	msg := p.UserError()
	return Response{
		RequestID: req.RequestID,
		Status:    StatusError,
		Timestamp: a.now().UnixMilli(),
		ContextID: req.ContextID,
		Persona:   p.Name,
		Mood:      string(mood.Confused),
		Field:     p.ResponseField(req.EventType),
		Text:      msg,
		Error:     msg,
		DebugInfo: fmt.Sprintf("Error processing %s: %v", req.EventType, err),
	}
}

// resolve fills request fields from the payload, generating ids that are
// still missing. UserID is never taken from the payload.
func (a *chatAgent) resolve(req Request) Request {
	if req.EventType == "" {
		req.EventType = persona.EventQuery
	}
	if req.RequestID == "" {
		req.RequestID = payloadString(req.Payload, "request_id")
	}
	if req.RequestID == "" {
		req.RequestID = a.newID()
	}
	if req.ContextID == "" {
		req.ContextID = payloadString(req.Payload, "context_id")
	}
	if req.ContextID == "" {
		req.ContextID = a.newID()
	}
	if req.Personality == "" {
		req.Personality = payloadString(req.Payload, "personality")
	}
	return req
}

// envelopeKeys are routing fields and blank text fields, none of which
// carry anything the player said.
var envelopeKeys = []string{"request_id", "context_id", "personality", "message", "content"}

// inboundText picks the player's text: "message", then "content", then the
// whole payload as JSON. It returns "" when the payload holds nothing but
// envelopeKeys.
func inboundText(payload map[string]any) string {
	for _, k := range []string{"message", "content"} {
		if s := payloadString(payload, k); s != "" {
			return s
		}
	}
	body := maps.Clone(payload)
	for _, k := range envelopeKeys {
		delete(body, k)
	}
	if len(body) == 0 {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(data)
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}
