package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	apphttp "insiderr-api/internal/infra/http"
)

// replyCache отдаёт сохранённый ответ на повтор запроса с тем же rid.
// Ключ включает пользователя: одинаковый rid у разных клиентов не пересекается.
func replyCache(cache domain.Cache, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.URL.Query().Get("rid")
			if cache == nil || rid == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			user, _ := apphttp.UserFromContext(r.Context())
			key := user.ID + ":" + r.Method + ":" + rid
			cached, err := cache.Get(r.Context(), key)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Reply-Cache", "hit")
				_, _ = w.Write(cached)
				return
			}
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn().Err(err).Str("rid", rid).Msg("httpapi: кэш ответов недоступен")
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)
			if ww.Status() != http.StatusOK {
				return
			}
			if err := cache.Set(r.Context(), key, body.Bytes(), ttl); err != nil {
				logger.Warn().Err(err).Str("rid", rid).Msg("httpapi: не удалось сохранить ответ")
			}
		})
	}
}
