package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/schema"
	"ktv-subtitle-service/internal/service/session"
)

const publishTimeout = 5 * time.Second

// Recorder publishes every emitted subtitle, keyed by session id so that a
// session's subtitles stay ordered within one partition.
type Recorder struct {
	publisher *Publisher
	validator *schema.Validator
}

func NewRecorder(p *Publisher) *Recorder {
	return &Recorder{publisher: p, validator: schema.New()}
}

func (r *Recorder) SessionStarted(context.Context, session.Info) {}

func (r *Recorder) SessionEnded(context.Context, session.Info, session.State) {}

func (r *Recorder) SubtitleEmitted(ctx context.Context, info session.Info, sub models.Subtitle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	var err error
	if sub.IsFinal {
		ev := models.NewSubtitleFinal(info.ID, info.Engine, sub)
		if err = r.validator.Validate(ev); err == nil {
			err = r.publisher.PublishFinal(ctx, info.ID, ev)
		}
	} else {
		ev := models.NewSubtitlePreview(info.ID, info.Engine, sub)
		if err = r.validator.Validate(ev); err == nil {
			err = r.publisher.PublishPreview(ctx, info.ID, ev)
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("sessionId", info.ID).Int64("subtitleId", sub.ID).Msg("subtitle event not published")
	}
}
