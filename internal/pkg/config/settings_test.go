package config

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingStore struct {
	values map[string]string
	err    error
}

func (f *fakeSettingStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettingStore) PutSetting(_ context.Context, key, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

func TestSettings_Int(t *testing.T) {
	store := &fakeSettingStore{values: map[string]string{
		"timeout_hours": "48",
		"broken":        "not-a-number",
	}}
	settings := NewSettings(store, zerolog.Nop())

	assert.Equal(t, 48, settings.Int(context.Background(), "timeout_hours", 24))
	assert.Equal(t, 24, settings.Int(context.Background(), "missing", 24))
	assert.Equal(t, 24, settings.Int(context.Background(), "broken", 24))

	store.err = errors.New("connection refused")
	assert.Equal(t, 24, settings.Int(context.Background(), "timeout_hours", 24))
}

func TestSettings_SetInt(t *testing.T) {
	store := &fakeSettingStore{values: map[string]string{}}
	settings := NewSettings(store, zerolog.Nop())

	require.NoError(t, settings.SetInt(context.Background(), "timeout_hours", 72))
	assert.Equal(t, 72, settings.Int(context.Background(), "timeout_hours", 24))
}
