// Package control binds the daemon's administrative operations onto the
// control RPC server and provides the typed client admin tools use to
// reach them. Method names, wire types and error codes are the daemon's
// compatibility surface; extend them, do not repurpose them.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/settings"
	"github.com/forumkit/searchsync/internal/syncer"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/grpc"
	"github.com/forumkit/searchsync/pkg/proto"
	"github.com/forumkit/searchsync/pkg/tracing"
)

// RPC method names exposed by the daemon.
const (
	MethodRebuild        = "Sync.Rebuild"
	MethodClear          = "Sync.Clear"
	MethodProgress       = "Sync.Progress"
	MethodReindexTopic   = "Sync.ReindexTopic"
	MethodReindexPost    = "Sync.ReindexPost"
	MethodGetSettings    = "Settings.Get"
	MethodSaveSettings   = "Settings.Save"
	MethodChangeLanguage = "Settings.ChangeLanguage"
	MethodSearch         = "Search.Query"
)

// Register binds every control method onto srv.
func Register(srv *grpc.Server, svc *syncer.Service) {
	h := handlers{svc: svc}
	srv.Register(MethodRebuild, traced("rebuild", h.rebuild))
	srv.Register(MethodClear, traced("clear", h.clear))
	srv.Register(MethodProgress, traced("progress", h.progress))
	srv.Register(MethodReindexTopic, traced("reindex_topic", h.reindexTopic))
	srv.Register(MethodReindexPost, traced("reindex_post", h.reindexPost))
	srv.Register(MethodGetSettings, traced("settings_get", h.getSettings))
	srv.Register(MethodSaveSettings, traced("settings_save", h.saveSettings))
	srv.Register(MethodChangeLanguage, traced("change_language", h.changeLanguage))
	srv.Register(MethodSearch, traced("search", h.search))
}

type handlers struct {
	svc *syncer.Service
}

// traced wraps a handler in a root span named after the operation, so every
// control call shows up in the span log with its duration and outcome.
func traced(name string, h grpc.HandlerFunc) grpc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		ctx, span := tracing.StartSpan(ctx, "control."+name, "")
		defer func() {
			span.End()
			span.Log()
		}()
		resp, err := h(ctx, params)
		if err != nil {
			span.SetError(err)
		}
		return resp, err
	}
}

// decode unmarshals params into T, mapping malformed payloads to the
// invalid-input code so clients see a stable classification.
func decode[T any](params json.RawMessage) (T, error) {
	var req T
	if len(params) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return req, fmt.Errorf("decoding request: %v: %w", err, apperrors.ErrInvalidInput)
	}
	return req, nil
}

func (h handlers) rebuild(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := h.svc.StartRebuild(); err != nil {
		return nil, err
	}
	return &proto.Ack{Success: true, Message: "rebuild started"}, nil
}

func (h handlers) clear(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := h.svc.StartClear(); err != nil {
		return nil, err
	}
	return &proto.Ack{Success: true, Message: "clear started"}, nil
}

func (h handlers) progress(ctx context.Context, _ json.RawMessage) (any, error) {
	p, err := h.svc.Progress(ctx)
	if err != nil {
		return nil, err
	}
	return &proto.ProgressResponse{
		TopicsIndexed: p.Topics.Indexed,
		TopicsTotal:   p.Topics.Total,
		TopicsPercent: float64(p.Topics.Percent),
		PostsIndexed:  p.Posts.Indexed,
		PostsTotal:    p.Posts.Total,
		PostsPercent:  float64(p.Posts.Percent),
		Working:       p.Working,
	}, nil
}

func (h handlers) reindexTopic(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[proto.ReindexTopicRequest](params)
	if err != nil {
		return nil, err
	}
	if err := h.svc.ReindexTopic(ctx, req.TopicID); err != nil {
		return nil, err
	}
	return &proto.Ack{Success: true}, nil
}

func (h handlers) reindexPost(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[proto.ReindexPostRequest](params)
	if err != nil {
		return nil, err
	}
	if err := h.svc.ReindexPost(ctx, req.PostID); err != nil {
		return nil, err
	}
	return &proto.Ack{Success: true}, nil
}

func (h handlers) getSettings(ctx context.Context, _ json.RawMessage) (any, error) {
	return settingsResponse(h.svc.CurrentSettings()), nil
}

func (h handlers) saveSettings(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[proto.SaveSettingsRequest](params)
	if err != nil {
		return nil, err
	}
	p := settings.Partial{
		TopicLimit:         req.TopicLimit,
		PostLimit:          req.PostLimit,
		ExcludedCategories: req.ExcludedCategories,
		Language:           req.Language,
	}
	if err := h.svc.SaveSettings(ctx, p); err != nil {
		return nil, err
	}
	return settingsResponse(h.svc.CurrentSettings()), nil
}

func (h handlers) changeLanguage(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[proto.ChangeLanguageRequest](params)
	if err != nil {
		return nil, err
	}
	if err := h.svc.ChangeLanguage(ctx, req.Language); err != nil {
		return nil, err
	}
	return &proto.Ack{Success: true, Message: "language changed, run a rebuild to repopulate"}, nil
}

func (h handlers) search(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[proto.QueryRequest](params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ids, err := h.svc.Search(ctx, forum.Kind(req.Kind), engine.Query{
		Text:        req.Query,
		CategoryIDs: req.CategoryIDs,
		AuthorID:    req.AuthorID,
		Mode:        engine.MatchMode(req.MatchMode),
		Limit:       req.Limit,
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return &proto.QueryResponse{IDs: ids, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// settingsResponse projects a settings snapshot onto the wire type. The
// category slice is copied so handlers never alias the cached record.
func settingsResponse(s settings.Settings) *proto.SettingsResponse {
	return &proto.SettingsResponse{
		TopicLimit:         s.TopicLimit,
		PostLimit:          s.PostLimit,
		ExcludedCategories: append([]int64{}, s.ExcludedCategories...),
		Language:           s.Language,
	}
}
