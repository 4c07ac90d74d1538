// Package schema checks outgoing events before they leave the service.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"ktv-subtitle-service/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the structural invariants of a subtitle, a client event or
// a Kafka payload. Unknown types pass.
func (v *Validator) Validate(event any) error {
	var err error
	switch ev := event.(type) {
	case models.Subtitle:
		err = validateSubtitle(ev)
	case *models.Subtitle:
		if ev == nil {
			err = invalid("nil subtitle")
		} else {
			err = validateSubtitle(*ev)
		}
	case models.Event:
		err = validateEvent(ev)
	case models.SubtitleFinal:
		err = validateFinal(ev)
	case models.SubtitlePreview:
		if strings.TrimSpace(ev.Text) == "" {
			err = invalid("empty preview text")
		}
	}
	if err != nil {
		log.Debug().Err(err).Interface("event", event).Msg("schema validation failed")
	}
	return err
}

func validateSubtitle(s models.Subtitle) error {
	if s.IsFinal && s.ID <= 0 {
		return invalid("final subtitle id %d must be positive", s.ID)
	}
	if strings.TrimSpace(s.Text) == "" {
		return invalid("subtitle %d has empty text", s.ID)
	}
	if math.IsNaN(s.StartTime) || math.IsNaN(s.EndTime) {
		return invalid("subtitle %d has NaN time", s.ID)
	}
	if s.StartTime < 0 {
		return invalid("subtitle %d starts before zero: %f", s.ID, s.StartTime)
	}
	if s.EndTime < s.StartTime {
		return invalid("subtitle %d ends before it starts: %f < %f", s.ID, s.EndTime, s.StartTime)
	}
	return nil
}

func validateEvent(e models.Event) error {
	switch e.Type {
	case models.EventSubtitle:
		if e.Data == nil {
			return invalid("subtitle event without data")
		}
		return validateSubtitle(*e.Data)
	case models.EventError:
		if e.Error == nil || e.Error.Message == "" {
			return invalid("error event without message")
		}
	case models.EventInit, models.EventComplete, models.EventPong:
	default:
		return invalid("unknown event type %q", e.Type)
	}
	return nil
}

func validateFinal(f models.SubtitleFinal) error {
	if f.SessionID == "" {
		return invalid("final subtitle without session id")
	}
	return validateSubtitle(models.Subtitle{
		ID:        f.ID,
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
		Text:      f.Text,
		IsFinal:   true,
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}
