package session

import (
	"context"
	"log/slog"

	"github.com/ggoodman/storefront-go/api"
)

// middleware attaches the bearer token and performs the one-shot
// refresh-and-retry on 401.
func (m *Manager) middleware(next api.Doer) api.Doer {
	return api.DoerFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
		if tok := m.token(); tok != "" {
			req.SetBearer(tok)
		}

		resp, err := next.Do(ctx, req)
		if err == nil || !api.IsUnauthorized(err) {
			return resp, err
		}

		if req.Is(RefreshPath) || req.Is(LoginPath) {
			m.log.DebugContext(ctx, "session.auth_endpoint_unauthorized", slog.String("path", req.Path))
			m.clear(ctx)
			return nil, err
		}

		if req.Retried() {
			return nil, err
		}
		req.MarkRetried()

		token, rerr := m.refresh(ctx)
		if rerr != nil {
			m.log.WarnContext(ctx, "session.refresh_failed",
				slog.String("path", req.Path),
				slog.String("err", rerr.Error()),
			)
			m.clear(ctx)
			return nil, err
		}

		m.log.DebugContext(ctx, "session.refreshed", slog.String("path", req.Path))
		req.SetBearer(token)
		return next.Do(ctx, req)
	})
}
