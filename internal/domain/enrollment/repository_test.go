package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markRecorder struct {
	Repository
	ctxErr   error
	deadline bool
	mark     SentMark
}

func (r *markRecorder) MarkSent(ctx context.Context, mark SentMark) error {
	r.ctxErr = ctx.Err()
	_, r.deadline = ctx.Deadline()
	r.mark = mark
	return nil
}

func TestMarkDelivered_IgnoresCancelledTick(t *testing.T) {
	e := newPaid(t)
	repo := &markRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, MarkDelivered(ctx, repo, MarkFor(e, KindDetails, t0.Add(time.Hour))))
	assert.NoError(t, repo.ctxErr)
	assert.True(t, repo.deadline, "mark has its own timeout")
	assert.Equal(t, KindDetails, repo.mark.Kind)
}
