// Package alert fans trading signals out to notification channels. The
// settlement responder uses it for the audible ping on completed trades.
package alert

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Alert is one notification.
type Alert struct {
	Level   string // INFO, WARNING, ERROR
	Message string
	Fields  map[string]any
}

// Channel delivers alerts somewhere.
type Channel interface {
	Send(a Alert) error
	Name() string
}

// Throttler suppresses repeats of the same alert key inside an interval.
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow reports whether an alert with this key may be sent now.
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Manager broadcasts each alert to every channel, optionally throttled by
// message key.
type Manager struct {
	channels []Channel
	throttle *Throttler
	log      *zap.Logger
}

func NewManager(channels []Channel, throttleInterval time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	var t *Throttler
	if throttleInterval > 0 {
		t = NewThrottler(throttleInterval)
	}
	return &Manager{channels: channels, throttle: t, log: log}
}

// Notify sends a to all channels. Delivery failures are logged, never fatal.
func (m *Manager) Notify(a Alert) {
	if m == nil {
		return
	}
	if m.throttle != nil && !m.throttle.Allow(a.Message) {
		return
	}
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			m.log.Warn("alert delivery failed",
				zap.String("channel", ch.Name()), zap.Error(err))
		}
	}
}

// LogChannel writes alerts to the structured logger.
type LogChannel struct {
	Log *zap.Logger
}

func (c LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+1)
	fields = append(fields, zap.String("level", a.Level))
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	c.Log.Info(a.Message, fields...)
	return nil
}

func (c LogChannel) Name() string { return "log" }

// BellChannel rings the terminal bell, the settlement ping the operator
// hears when a trade completes.
type BellChannel struct {
	Out io.Writer
}

func (c BellChannel) Send(Alert) error {
	_, err := fmt.Fprint(c.Out, "\a")
	return err
}

func (c BellChannel) Name() string { return "bell" }
