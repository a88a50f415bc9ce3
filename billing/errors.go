package billing

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a billing failure so transports can map it without string
// matching.
type Kind string

const (
	KindInvalidAmount           Kind = "InvalidAmount"
	KindNoBillableWork          Kind = "NoBillableWork"
	KindIdentifierExhausted     Kind = "IdentifierExhausted"
	KindInvalidTransition       Kind = "InvalidTransition"
	KindHasDependents           Kind = "HasDependents"
	KindUnknownPaymentReference Kind = "UnknownPaymentReference"
	KindRenderFailure           Kind = "RenderFailure"
	KindDeliveryFailure         Kind = "DeliveryFailure"
	KindNotFound                Kind = "NotFound"
	KindValidation              Kind = "Validation"
	KindTimeout                 Kind = "Timeout"
)

// Error is the structured error returned by every billing operation.
type Error struct {
	Kind Kind
	// Field is the offending input field, if any (e.g. "tax_rate").
	Field string
	// Entity is the offending or blocking entity (e.g. "invoice", "projects").
	Entity  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Field != "":
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	case e.Entity != "":
		msg = fmt.Sprintf("%s: %s", e.Entity, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may safely retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout
}

var (
	ErrInvalidAmount           = &Error{Kind: KindInvalidAmount}
	ErrNoBillableWork          = &Error{Kind: KindNoBillableWork}
	ErrIdentifierExhausted     = &Error{Kind: KindIdentifierExhausted}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrHasDependents           = &Error{Kind: KindHasDependents}
	ErrUnknownPaymentReference = &Error{Kind: KindUnknownPaymentReference}
	ErrRenderFailure           = &Error{Kind: KindRenderFailure}
	ErrDeliveryFailure         = &Error{Kind: KindDeliveryFailure}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrTimeout                 = &Error{Kind: KindTimeout}
)

func invalidAmount(field, msg string) *Error {
	return &Error{Kind: KindInvalidAmount, Field: field, Message: msg}
}

func invalidTransition(entity, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Entity:  entity,
		Message: fmt.Sprintf("cannot move from %s to %s", from, to),
	}
}

// hasDependents names the blocking relation in Entity.
func hasDependents(entity, relation string) *Error {
	return &Error{
		Kind:    KindHasDependents,
		Entity:  relation,
		Message: fmt.Sprintf("cannot delete %s with associated %s", entity, relation),
	}
}

func notFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: "not found"}
}

func validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// KindOf extracts the Kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify turns deadline errors into the retryable Timeout kind and leaves
// everything else untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: op + " timed out", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
