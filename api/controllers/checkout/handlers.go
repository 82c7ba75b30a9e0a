package checkout

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/sessions"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/pagination"
	"github.com/angelmondragon/storefront-core/pkg/types"
)

// SessionSource resolves the storefront session of a request with its cart synced to the
// caller's authentication.
type SessionSource interface {
	Attach(ctx context.Context, sessionID string, auth checkoutsvc.Auth) (*sessions.Session, cartsvc.State, error)
}

// AttemptLister reads the attempt ledger of a session.
type AttemptLister interface {
	ListBySession(ctx context.Context, sessionID string, params pagination.Params) (checkoutsvc.AttemptPage, error)
}

type flowCall func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error)

// CheckoutStart opens the wizard, replacing a flow that already completed an order, and
// prefills it for an authenticated customer.
func CheckoutStart(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		flow, _, err := sess.StartFlow()
		if err != nil {
			return nil, err
		}
		return flow.Start(r.Context(), auth), nil
	})
}

// CheckoutView returns the current wizard state.
func CheckoutView(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.View(), nil
	})
}

// CheckoutApplyFields merges the edited fields into the form.
func CheckoutApplyFields(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		var patch checkoutsvc.FieldPatch
		if err := validators.DecodeJSONBody(r, &patch); err != nil {
			return nil, err
		}
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.ApplyFields(r.Context(), patch)
	})
}

// CheckoutRefreshShipping re-quotes the current postal code against the current cart.
func CheckoutRefreshShipping(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.RefreshShipping(r.Context()), nil
	})
}

// CheckoutSelectShipping picks one of the quoted carrier options.
func CheckoutSelectShipping(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		var payload selectShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.SelectShipping(payload.ServiceName)
	})
}

// CheckoutRequestStep moves the wizard through the step gate.
func CheckoutRequestStep(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		var payload stepRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.RequestStep(checkoutsvc.Step(payload.Step))
	})
}

// CheckoutAvailability runs the asynchronous uniqueness check for email or document.
func CheckoutAvailability(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		var payload availabilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		flow, _, err := sess.Flow()
		if err != nil {
			return nil, err
		}
		return flow.CheckAvailability(r.Context(), auth, payload.Field, payload.Value)
	})
}

// CheckoutCancel abandons the wizard. The cart is left untouched.
func CheckoutCancel(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, auth checkoutsvc.Auth, sess *sessions.Session) (any, error) {
		sess.EndFlow()
		return map[string]bool{"cancelled": true}, nil
	})
}

// CheckoutSubmit runs the submission pipeline. Card number and CVV only exist in this
// request body. A failed submission answers with the status of its error code and the
// field errors, if any.
func CheckoutSubmit(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		auth := middleware.AuthFromContext(ctx)
		sess, err := attach(r, src, auth)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload submitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		flow, _, err := sess.Flow()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		res := flow.Submit(ctx, auth, checkoutsvc.CardSecrets{Number: payload.CardNumber, CVV: payload.CVV})
		if res.Success {
			responses.WriteSuccess(w, res)
			return
		}
		meta := pkgerrors.MetadataFor(pkgerrors.Code(res.Code))
		apiErr := types.APIError{
			Code:      res.Code,
			Message:   res.Message,
			Retryable: res.Retryable,
			RequestID: logger.RequestIDFromContext(ctx),
		}
		if res.Errors != nil {
			apiErr.Details = res.Errors
		}
		if logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{"code": res.Code, "status": meta.HTTPStatus}), "checkout.submit_rejected")
		}
		responses.WriteEnvelope(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
	}
}

// CheckoutAttempts pages through the session's submissions, newest first.
func CheckoutAttempts(attempts AttemptLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if attempts == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attempt ledger unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := attempts.ListBySession(ctx, middleware.SessionIDFromContext(ctx), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAttemptsResponse(page))
	}
}

func handle(src SessionSource, logg *logger.Logger, call flowCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		auth := middleware.AuthFromContext(ctx)
		sess, err := attach(r, src, auth)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out, err := call(r, auth, sess)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func attach(r *http.Request, src SessionSource, auth checkoutsvc.Auth) (*sessions.Session, error) {
	if src == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable")
	}
	ctx := r.Context()
	sess, _, err := src.Attach(ctx, middleware.SessionIDFromContext(ctx), auth)
	return sess, err
}
