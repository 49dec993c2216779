package render

import (
	"context"
	"log/slog"
	"os"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ArtifactStore remembers where an artifact was rendered.
type ArtifactStore interface {
	Lookup(ctx context.Context, ref notification.ArtifactRef) (string, bool, error)
	Store(ctx context.Context, ref notification.ArtifactRef, path string) error
	Forget(ctx context.Context, ref notification.ArtifactRef) error
}

// CachedRenderer reuses a previously rendered file while it still exists.
// Entries are keyed by the issue date too, so a file from yesterday is never reused.
// Store errors are logged and never fail a render.
type CachedRenderer struct {
	inner  notification.Renderer
	store  ArtifactStore
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewCachedRenderer wraps inner with store. clock must be the one inner prints dates with.
func NewCachedRenderer(inner notification.Renderer, store ArtifactStore, clock timeutil.Clock, l *slog.Logger) *CachedRenderer {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	return &CachedRenderer{
		inner:  inner,
		store:  store,
		clock:  clock,
		logger: logger.OrDefault(l).With(logger.Component("render-cache")),
	}
}

// Render returns the cached path or renders and caches a new one.
func (c *CachedRenderer) Render(ctx context.Context, kind notification.ArtifactKind, name, program string) (string, error) {
	ref := notification.ArtifactRef{
		Kind:      kind,
		Name:      name,
		Program:   program,
		IssueDate: timeutil.FormatIssueDate(c.clock.Now()),
	}

	path, ok, err := c.store.Lookup(ctx, ref)
	switch {
	case err != nil:
		c.logger.Warn("artifact cache lookup failed", logger.Err(err))
	case ok:
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
		if err := c.store.Forget(ctx, ref); err != nil {
			c.logger.Warn("artifact cache forget failed", logger.Err(err))
		}
	}

	path, err = c.inner.Render(ctx, kind, name, program)
	if err != nil {
		return "", err
	}
	if err := c.store.Store(ctx, ref, path); err != nil {
		c.logger.Warn("artifact cache store failed", logger.Err(err))
	}
	return path, nil
}

var _ notification.Renderer = (*CachedRenderer)(nil)
