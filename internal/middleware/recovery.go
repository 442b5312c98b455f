package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/Proton-105/himera-settings/internal/errors"
)

// Recovery turns a handler panic into a 500 answered by onPanic.
func Recovery(handler *apperrors.Handler, log *slog.Logger, onPanic func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("panic in http handler", slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
				err := apperrors.NewInternalError(fmt.Errorf("panic: %v", rec))
				if handler != nil {
					handler.Handle(r.Context(), err)
				}
				onPanic(w, r, err)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
