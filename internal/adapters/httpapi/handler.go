package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	apphttp "insiderr-api/internal/infra/http"
	"insiderr-api/internal/usecase/accounts"
	"insiderr-api/internal/usecase/channels"
	"insiderr-api/internal/usecase/feed"
	"insiderr-api/internal/usecase/posts"
	"insiderr-api/internal/usecase/reports"
	"insiderr-api/internal/usecase/votes"
)

// maxReportBody ограничивает размер текста жалобы и отзыва.
const maxReportBody = 64 << 10

// Deps содержит сервисы, которые обслуживает HTTP API.
type Deps struct {
	Accounts *accounts.Service
	Posts    *posts.Service
	Votes    *votes.Service
	Channels *channels.Service
	Reader   *feed.Reader
	Reports  *reports.Service
	// Cache хранит ответы по rid; nil отключает кэширование.
	Cache    domain.Cache
	CacheTTL time.Duration
	Log      zerolog.Logger
}

// Handler реализует маршруты /api/v1.
type Handler struct {
	Deps
}

// New создаёт обработчик API.
func New(deps Deps) *Handler {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = time.Minute
	}
	return &Handler{Deps: deps}
}

// Mount регистрирует маршруты в роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register/", h.register)
		r.Post("/login/", h.login)

		r.Group(func(r chi.Router) {
			r.Use(apphttp.TokenAuthMiddleware(h.Accounts))
			r.Use(replyCache(h.Cache, h.CacheTTL, h.Log))

			r.Post("/posts/", h.createPost)
			r.Get("/posts/{key}", h.getPost)
			r.Post("/comments/{postKey}", h.addComment)
			r.Get("/comments/{postKey}", h.listComments)
			r.Post("/votes/{key}/{direction}", h.castVote)
			r.Delete("/votes/{key}/{direction}", h.retractVote)
			r.Get("/channels/", h.listChannels)
			r.Get("/channels/{key}", h.readChannel)
			r.Get("/updates/", h.updates)
			r.Get("/items/", h.items)
			r.Post("/flag/{key}", h.flag)
			r.Post("/feedback/", h.feedback)
		})
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidCursor),
		errors.Is(err, channels.ErrTitleInvalid),
		errors.Is(err, channels.ErrUnknownChannel):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("request_id", apphttp.RequestID(r)).Str("path", r.URL.Path).Msg("httpapi: запрос завершился ошибкой")
		apphttp.WriteError(w, status, errors.New("request failed"))
		return
	}
	h.Log.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("httpapi: запрос отклонён")
	apphttp.WriteError(w, status, err)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	return nil
}

func currentUser(r *http.Request) domain.User {
	user, _ := apphttp.UserFromContext(r.Context())
	return user
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Accounts.Register(r.Context(), req.PubKey, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, keyReply{OK: true, Key: user.ID})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Key == "" {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	token, err := h.Accounts.Login(r.Context(), req.Key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req newPostRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	post, err := h.Posts.CreatePost(r.Context(), currentUser(r), posts.NewPost{
		Content:    req.Content,
		Theme:      req.Theme,
		Background: req.Background,
		Role:       req.Role,
		RoleText:   req.RoleText,
		Channels:   req.Channels,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, keyReply{OK: true, Key: post.Key})
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.Posts.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.Reader.Snapshot(r.Context(), post)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "post": toPostJSON(view)})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	var req newCommentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := posts.NewComment{Content: req.Content, Role: "anonymous", RoleText: "someone"}
	if req.Role != nil {
		in.Role = *req.Role
	}
	if req.RoleText != nil {
		in.RoleText = *req.RoleText
	}
	comment, err := h.Posts.AddComment(r.Context(), chi.URLParam(r, "postKey"), currentUser(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, keyReply{OK: true, Key: comment.Key})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	views, err := h.Posts.ListComments(r.Context(), chi.URLParam(r, "postKey"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]commentJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toCommentJSON(v))
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "comments": out})
}

func (h *Handler) voteTarget(r *http.Request) (domain.Votable, domain.Direction, error) {
	dir, ok := domain.ParseDirection(chi.URLParam(r, "direction"))
	if !ok {
		return nil, "", errors.Join(domain.ErrInvalidInput, errors.New("неизвестное направление голоса"))
	}
	entity, err := h.Posts.Votable(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		return nil, "", err
	}
	return entity, dir, nil
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	entity, dir, err := h.voteTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Votes.Cast(r.Context(), entity, currentUser(r).ID, dir); err != nil {
		h.fail(w, r, err)
		return
	}
	h.replyTally(w, r, entity)
}

func (h *Handler) retractVote(w http.ResponseWriter, r *http.Request) {
	entity, dir, err := h.voteTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Votes.Retract(r.Context(), entity, currentUser(r).ID, dir); err != nil {
		h.fail(w, r, err)
		return
	}
	h.replyTally(w, r, entity)
}

func (h *Handler) replyTally(w http.ResponseWriter, r *http.Request, entity domain.Votable) {
	tally, err := h.Votes.Tally(r.Context(), entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, tallyReply{OK: true, Key: entity.VotableKey(), Tally: tally})
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	list, err := h.Channels.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]channelJSON, 0, len(list))
	for _, ch := range list {
		out = append(out, channelJSON{Key: ch.Key, Title: ch.Title})
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "channels": out})
}

func (h *Handler) readChannel(w http.ResponseWriter, r *http.Request) {
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, errors.Join(domain.ErrInvalidInput, err))
			return
		}
		count = parsed
	}
	page, err := h.Reader.ReadChannel(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("hash"), count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]feedEntryJSON, 0, len(page.Entries))
	for _, e := range page.Entries {
		out = append(out, feedEntryJSON{Post: toPostJSON(e.PostView), Hash: e.Cursor})
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "updates": out, "hash": page.Next})
}

func (h *Handler) updates(w http.ResponseWriter, r *http.Request) {
	keys := channels.NormalizeKeys(r.URL.Query()["key"])
	if len(keys) == 0 {
		h.fail(w, r, errors.Join(domain.ErrInvalidInput, errors.New("не указаны ключи")))
		return
	}
	since := time.Unix(0, 0).UTC()
	if raw := r.URL.Query().Get("hash"); raw != "" {
		cursor, err := feed.DecodeCursor(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		since = cursor.Time
	}
	var kinds []string
	if kind := r.URL.Query().Get("kind"); kind != "" {
		kinds = []string{kind}
	}
	page, err := h.Reader.UpdatesFor(r.Context(), keys, since, kinds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]updateEntryJSON, 0, len(page.Entries))
	for _, e := range page.Entries {
		out = append(out, updateEntryJSON{Obj: toPostJSON(e.PostView), Type: e.WhatKind, Key: e.What, Hash: e.At})
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"hash":    feed.EncodeCursor(feed.Cursor{Time: page.Since}),
		"updates": out,
	})
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	keys := channels.NormalizeKeys(r.URL.Query()["key"])
	if len(keys) == 0 {
		h.fail(w, r, errors.Join(domain.ErrInvalidInput, errors.New("не указаны ключи")))
		return
	}
	sample := time.Now().UTC()
	out := make([]postJSON, 0, len(keys))
	for _, key := range keys {
		post, err := h.Posts.Get(r.Context(), key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		view, err := h.Reader.Snapshot(r.Context(), post)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, toPostJSON(view))
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "objects": out, "hash": feed.EncodeCursor(feed.Cursor{Time: sample})})
}

func (h *Handler) flag(w http.ResponseWriter, r *http.Request) {
	flag, err := h.Reports.Flag(r.Context(), currentUser(r), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, keyReply{OK: true, Key: flag.Key})
}

// feedback принимает текст отзыва телом запроса без обёртки JSON.
func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
	if err != nil {
		h.fail(w, r, errors.Join(domain.ErrInvalidInput, err))
		return
	}
	fb, err := h.Reports.Feedback(r.Context(), currentUser(r), string(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, keyReply{OK: true, Key: fb.Key})
}
