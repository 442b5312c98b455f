package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/idempotency"
	"github.com/Proton-105/himera-settings/internal/session"
)

func (a *API) fetch(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	values, err := a.service.Fetch(r.Context(), sess)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}

	writeJSON(w, a.log, http.StatusOK, fetchResponse{Success: true, Settings: values})
}

func (a *API) update(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseForm(); err != nil {
		a.writeFailure(w, r, apperrors.NewValidationError("Invalid request body"))
		return
	}
	form := r.PostForm

	apply := func(ctx context.Context) ([]byte, error) {
		result, err := a.service.Apply(ctx, sess, form)
		if err != nil {
			return nil, err
		}
		return json.Marshal(updateResponse{
			Success:  result.Success,
			Updated:  result.Updated,
			Settings: result.Settings,
		})
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" || a.idem == nil {
		body, err := apply(r.Context())
		if err != nil {
			a.writeFailure(w, r, err)
			return
		}
		writeRaw(w, http.StatusOK, body)
		return
	}

	res, err := a.idem.Execute(r.Context(), idempotency.GenerateKey(sess.ID, r.URL.Path, key), a.idemTTL, apply)
	if err != nil {
		if errors.Is(err, idempotency.ErrRequestInProgress) {
			err = apperrors.NewConflictError(err.Error())
		}
		a.writeFailure(w, r, err)
		return
	}

	if res.FromCache {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeRaw(w, http.StatusOK, res.Response)
}

func (a *API) theme(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseForm(); err != nil {
		a.writeFailure(w, r, apperrors.NewValidationError("Invalid request body"))
		return
	}

	theme, err := a.service.SetTheme(r.Context(), sess, r.PostForm.Get("theme"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}

	writeJSON(w, a.log, http.StatusOK, themeResponse{Success: true, Theme: theme})
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := a.service.EndSession(r.Context(), sess); err != nil {
		a.writeFailure(w, r, apperrors.NewInternalError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
