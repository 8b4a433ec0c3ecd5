// Package confirm holds destructive actions until the requesting user confirms them.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("confirmation not found or expired")
	ErrNotAllowed  = errors.New("confirmation belongs to another user")
	ErrBusy        = errors.New("confirmation already in progress")
	ErrUnknownKind = errors.New("unknown confirmation kind")
)

// Kind names a confirmable action
type Kind string

const (
	KindDeleteUser           Kind = "delete_user"
	KindRemoveSiteAssignment Kind = "remove_site_assignment"
	KindRejectAll            Kind = "reject_all"
)

// Action is a pending confirmation
type Action struct {
	Token       string            `json:"token"`
	Kind        Kind              `json:"kind"`
	RequestedBy string            `json:"requested_by"`
	Prompt      string            `json:"prompt"`
	Params      map[string]string `json:"params,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Result is what a confirmed action reports back
type Result struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Handler performs a confirmed action and returns its success message
type Handler func(ctx context.Context, a Action) (string, error)

// Store keeps pending actions until they expire. Take removes atomically.
type Store interface {
	Put(ctx context.Context, a Action, ttl time.Duration) error
	Get(ctx context.Context, token string) (Action, error)
	Take(ctx context.Context, token string) (Action, error)
}

// Flow requests, confirms and cancels pending actions
type Flow struct {
	store    Store
	ttl      time.Duration
	handlers map[Kind]Handler
	log      *zap.Logger
	now      func() time.Time
}

// NewFlow creates a Flow whose actions live for ttl
func NewFlow(store Store, ttl time.Duration, log *zap.Logger) *Flow {
	return &Flow{
		store:    store,
		ttl:      ttl,
		handlers: make(map[Kind]Handler),
		log:      log,
		now:      time.Now,
	}
}

// Handle registers the handler for kind. Registration happens at startup.
func (f *Flow) Handle(kind Kind, h Handler) {
	f.handlers[kind] = h
}

// Request parks an action and returns it with its token
func (f *Flow) Request(ctx context.Context, kind Kind, requestedBy, prompt string, params map[string]string) (Action, error) {
	if _, ok := f.handlers[kind]; !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	a := Action{
		Token:       uuid.NewString(),
		Kind:        kind,
		RequestedBy: requestedBy,
		Prompt:      prompt,
		Params:      params,
		ExpiresAt:   f.now().Add(f.ttl).UTC(),
	}
	if err := f.store.Put(ctx, a, f.ttl); err != nil {
		return Action{}, err
	}

	f.log.Debug("confirmation requested", zap.String("kind", string(kind)), zap.String("requested_by", requestedBy))
	return a, nil
}

// Pending returns actor's pending action without spending it
func (f *Flow) Pending(ctx context.Context, token, actor string) (Action, error) {
	a, err := f.store.Get(ctx, token)
	if err != nil {
		return Action{}, err
	}
	if a.RequestedBy != actor {
		return Action{}, ErrNotAllowed
	}
	return a, nil
}

// Confirm runs the pending action once. A handler failure still consumes the token.
func (f *Flow) Confirm(ctx context.Context, token, actor string) (Result, error) {
	if _, err := f.Pending(ctx, token, actor); err != nil {
		return Result{}, err
	}
	a, err := f.store.Take(ctx, token)
	if err != nil {
		return Result{}, err
	}

	h, ok := f.handlers[a.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, a.Kind)
	}
	msg, err := h(ctx, a)
	if err != nil {
		f.log.Warn("confirmed action failed", zap.String("kind", string(a.Kind)), zap.Error(err))
		return Result{Kind: a.Kind}, err
	}
	return Result{Kind: a.Kind, Message: msg}, nil
}

// Cancel drops the pending action
func (f *Flow) Cancel(ctx context.Context, token, actor string) error {
	if _, err := f.Pending(ctx, token, actor); err != nil {
		return err
	}
	_, err := f.store.Take(ctx, token)
	return err
}
