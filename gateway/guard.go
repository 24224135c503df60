package gateway

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sleeper abstracts the cooldown wait so tests run without real delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Guard retries an operation whenever the broker answers with a throttle
// signal. Every throttle costs one full cooldown before the retry; any other
// error is surfaced to the caller untouched.
type Guard struct {
	Cooldown   time.Duration
	Sleeper    Sleeper
	Log        *zap.Logger
	OnThrottle func() // optional metrics hook
}

func NewGuard(cooldown time.Duration, log *zap.Logger) *Guard {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{Cooldown: cooldown, Sleeper: realSleeper{}, Log: log}
}

// Do runs fn, sleeping one cooldown and retrying after every ErrThrottled.
func (g *Guard) Do(op string, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrThrottled) {
			return err
		}
		g.Log.Warn("throttled, cooling down",
			zap.String("op", op),
			zap.Duration("cooldown", g.Cooldown))
		if g.OnThrottle != nil {
			g.OnThrottle()
		}
		g.Sleeper.Sleep(g.Cooldown)
	}
}
