package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

type memStore struct {
	readings []model.Reading
}

func (m *memStore) GetDeviceByCode(ctx context.Context, code string) (model.Device, error) {
	if code != "M-7" {
		return model.Device{}, fmt.Errorf("device %s: %w", code, store.ErrNotFound)
	}
	return model.Device{ID: 7, Code: code}, nil
}

func (m *memStore) CreateReading(ctx context.Context, r *model.Reading) error {
	m.readings = append(m.readings, *r)
	return nil
}

func TestSubscriber_Handle(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	s := &memStore{}
	sub := NewSubscriber(config.MQTTConfig{}, s, loc)

	reading, err := sub.Handle(context.Background(), []byte(`{"device_id":"M-7","value":12.5,"timestamp":"2024-03-01 08:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), reading.DeviceID)
	assert.True(t, reading.ReadAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.Len(t, s.readings, 1)

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `value=1`, parse.ErrInvalid},
		{"missing value", `{"device_id":"M-7"}`, parse.ErrInvalid},
		{"missing device", `{"value":1}`, parse.ErrInvalid},
		{"unknown device", `{"device_id":"M-8","value":1}`, ErrUnknownDevice},
		{"bad timestamp", `{"device_id":"M-7","value":1,"timestamp":"yesterday"}`, parse.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sub.Handle(context.Background(), []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Len(t, s.readings, 1)
}

func TestSubscriber_RunDisabled(t *testing.T) {
	assert.NoError(t, NewSubscriber(config.MQTTConfig{}, &memStore{}, nil).Run(context.Background()))
}
