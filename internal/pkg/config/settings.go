package config

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
)

// SettingStore is the persistence port for runtime-tunable settings.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Settings reads and writes admin-tunable values stored in the
// database, falling back to defaults on lookup failure so a flaky read
// never blocks a reservation.
type Settings struct {
	store SettingStore
	log   zerolog.Logger
}

func NewSettings(store SettingStore, log zerolog.Logger) *Settings {
	return &Settings{
		store: store,
		log:   log.With().Str("component", "settings").Logger(),
	}
}

// Int returns the setting parsed as an integer, or fallback when the
// key is absent or malformed.
func (s *Settings) Int(ctx context.Context, key string, fallback int) int {
	raw, ok, err := s.store.GetSetting(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("setting lookup failed, using fallback")
		return fallback
	}
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", raw).Msg("setting is not an integer, using fallback")
		return fallback
	}
	return value
}

// SetInt stores an integer setting.
func (s *Settings) SetInt(ctx context.Context, key string, value int) error {
	return s.store.PutSetting(ctx, key, strconv.Itoa(value))
}
