package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// ErrUnknownDevice is returned for messages from meters not in the directory.
var ErrUnknownDevice = errors.New("unknown device")

// Store is the part of the store used to record pushed readings.
type Store interface {
	GetDeviceByCode(ctx context.Context, code string) (model.Device, error)
	CreateReading(ctx context.Context, reading *model.Reading) error
}

// Message is the JSON payload meters publish.
type Message struct {
	DeviceID  string   `json:"device_id"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// Subscriber stores readings published on an MQTT topic.
type Subscriber struct {
	cfg   config.MQTTConfig
	store Store
	loc   *time.Location
}

func NewSubscriber(cfg config.MQTTConfig, s Store, loc *time.Location) *Subscriber {
	if loc == nil {
		loc = time.UTC
	}
	return &Subscriber{cfg: cfg, store: s, loc: loc}
}

// Handle decodes one payload and stores it as a reading.
func (s *Subscriber) Handle(ctx context.Context, payload []byte) (model.Reading, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.Reading{}, fmt.Errorf("%w: %v", parse.ErrInvalid, err)
	}
	msg.DeviceID = strings.TrimSpace(msg.DeviceID)
	if msg.DeviceID == "" || msg.Value == nil {
		return model.Reading{}, fmt.Errorf("%w: device_id and value are required", parse.ErrInvalid)
	}

	device, err := s.store.GetDeviceByCode(ctx, msg.DeviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Reading{}, fmt.Errorf("%w %q", ErrUnknownDevice, msg.DeviceID)
		}
		return model.Reading{}, err
	}

	reading := model.Reading{DeviceID: device.ID, Value: *msg.Value}
	if msg.Timestamp != "" {
		ts, err := parse.ParseTimestamp(msg.Timestamp, s.loc)
		if err != nil {
			return model.Reading{}, err
		}
		reading.ReadAt = ts
	}
	if err := s.store.CreateReading(ctx, &reading); err != nil {
		return model.Reading{}, err
	}
	return reading, nil
}

// Run connects to the broker and consumes messages until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Info().Msg("mqtt ingest is disabled, not starting")
		return nil
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		reading, err := s.Handle(ctx, msg.Payload())
		if err != nil {
			if errors.Is(err, ErrUnknownDevice) || errors.Is(err, parse.ErrInvalid) {
				log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping mqtt message")
				return
			}
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("failed to ingest mqtt message")
			return
		}
		log.Debug().Int64("device", reading.DeviceID).Float64("value", reading.Value).Msg("ingested reading")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(60 * time.Second)
	// Subscriptions are lost with a clean session, so subscribe on every connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, handler); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("topic", s.cfg.Topic).Msg("subscribed to meter readings")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(250)
		return nil
	}

	<-ctx.Done()
	client.Disconnect(250)
	log.Info().Msg("mqtt ingest shutting down")
	return nil
}
