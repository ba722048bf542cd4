package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Handler receives decoded observations. *ingest.Inbox implements it.
type Handler interface {
	OnEntities(observation.Batch)
	OnObserver(observation.Point)
}

// SubscriberConfig names the two input topics.
type SubscriberConfig struct {
	EntityTopic   string
	ObserverTopic string
	QoS           byte
}

// Subscriber decodes both input streams and forwards them to a Handler.
// paho calls the handlers from its own goroutines.
type Subscriber struct {
	handler Handler
	cfg     SubscriberConfig
}

// NewSubscriber returns a Subscriber forwarding to h.
func NewSubscriber(h Handler, cfg SubscriberConfig) *Subscriber {
	return &Subscriber{handler: h, cfg: cfg}
}

// Subscribe registers both topics on c.
func (s *Subscriber) Subscribe(c paho.Client) error {
	if err := subscribe(c, s.cfg.EntityTopic, s.cfg.QoS, s.handleEntities); err != nil {
		return fmt.Errorf("mqtt: subscribe entities: %w", err)
	}
	if err := subscribe(c, s.cfg.ObserverTopic, s.cfg.QoS, s.handleObserver); err != nil {
		return fmt.Errorf("mqtt: subscribe observer: %w", err)
	}
	slog.Info("mqtt: subscribed",
		"entity_topic", s.cfg.EntityTopic, "observer_topic", s.cfg.ObserverTopic)
	return nil
}

// OnConnect subscribes on every (re)connect, logging failures.
func (s *Subscriber) OnConnect(c paho.Client) {
	if err := s.Subscribe(c); err != nil {
		slog.Error("mqtt: subscribe failed", "err", err)
	}
}

func subscribe(c paho.Client, topic string, qos byte, h paho.MessageHandler) error {
	token := c.Subscribe(topic, qos, h)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%s: timed out", topic)
	}
	return token.Error()
}

func (s *Subscriber) handleEntities(_ paho.Client, msg paho.Message) {
	b, err := DecodeEntities(msg.Payload(), time.Now())
	if err != nil {
		slog.Warn("mqtt: dropping entity message", "topic", msg.Topic(), "err", err)
		return
	}
	s.handler.OnEntities(b)
}

func (s *Subscriber) handleObserver(_ paho.Client, msg paho.Message) {
	p, err := DecodeObserver(msg.Payload())
	if err != nil {
		slog.Warn("mqtt: dropping observer message", "topic", msg.Topic(), "err", err)
		return
	}
	s.handler.OnObserver(p)
}

var errMissingField = errors.New("missing field")

type entityMessage struct {
	FrameID  string   `json:"frame_id"`
	Stamp    *float64 `json:"stamp"`
	Entities []struct {
		UUID string   `json:"uuid"`
		X    *float64 `json:"x"`
		Y    *float64 `json:"y"`
	} `json:"entities"`
}

// DecodeEntities parses an entity message. A missing stamp is replaced by
// now. Entities without a uuid or coordinates are dropped with a warning.
func DecodeEntities(data []byte, now time.Time) (observation.Batch, error) {
	var m entityMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return observation.Batch{}, fmt.Errorf("decode entities: %w", err)
	}
	if m.FrameID == "" {
		return observation.Batch{}, fmt.Errorf("decode entities: %w: frame_id", errMissingField)
	}

	b := observation.Batch{FrameID: m.FrameID, Stamp: now}
	if m.Stamp != nil {
		b.Stamp = secondsToTime(*m.Stamp)
	}
	b.Detections = make([]observation.Detection, 0, len(m.Entities))
	for i, e := range m.Entities {
		if e.UUID == "" || e.X == nil || e.Y == nil {
			slog.Warn("mqtt: skipping incomplete entity", "index", i, "uuid", e.UUID)
			continue
		}
		b.Detections = append(b.Detections, observation.Detection{
			UUID:     e.UUID,
			Position: observation.Point{X: *e.X, Y: *e.Y},
		})
	}
	return b, nil
}

// DecodeObserver parses an observer pose message.
func DecodeObserver(data []byte) (observation.Point, error) {
	var m struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return observation.Point{}, fmt.Errorf("decode observer: %w", err)
	}
	if m.X == nil || m.Y == nil {
		return observation.Point{}, fmt.Errorf("decode observer: %w: x, y", errMissingField)
	}
	return observation.Point{X: *m.X, Y: *m.Y}, nil
}

func secondsToTime(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
