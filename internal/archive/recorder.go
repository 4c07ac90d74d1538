package archive

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/service/session"
)

const writeTimeout = 3 * time.Second

// Recorder archives sessions and their final subtitles as they are emitted.
// Write failures are logged and never stop the session.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, logger: logging.WithComponent("archive")}
}

func (r *Recorder) SessionStarted(ctx context.Context, info session.Info) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	err := r.store.CreateSession(ctx, Session{
		ID:        info.ID,
		Engine:    info.Engine,
		Source:    info.Request.Source,
		StartedAt: info.StartedAt,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("sessionId", info.ID).Msg("failed to archive session")
	}
}

func (r *Recorder) SubtitleEmitted(ctx context.Context, info session.Info, sub models.Subtitle) {
	if !sub.IsFinal {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.AppendSubtitle(ctx, info.ID, sub); err != nil {
		r.logger.Error().Err(err).Str("sessionId", info.ID).Int64("subtitleId", sub.ID).Msg("failed to archive subtitle")
	}
}

func (r *Recorder) SessionEnded(ctx context.Context, info session.Info, state session.State) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.FinishSession(ctx, info.ID, strings.ToLower(state.String()), time.Now()); err != nil {
		r.logger.Error().Err(err).Str("sessionId", info.ID).Msg("failed to finish archived session")
	}
}
