package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RandomDelay waits for a random duration between min and max milliseconds.
func RandomDelay(min, max int) {
	duration := rand.Intn(max-min+1) + min
	time.Sleep(time.Duration(duration) * time.Millisecond)
}

// RandomPause sleeps for a random interval between min and max, returning
// early when ctx is cancelled.
func RandomPause(ctx context.Context, min, max time.Duration) {
	span := max - min
	pause := min
	if span > 0 {
		pause += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}

// MouseJiggle simulates random mouse movements to prevent idle detection.
func MouseJiggle(page playwright.Page) error {
	viewportSize := page.ViewportSize()
	if viewportSize == nil {
		return nil
	}
	for i := 0; i < 3; i++ {
		x := rand.Intn(viewportSize.Width)
		y := rand.Intn(viewportSize.Height)
		if err := page.Mouse().Move(float64(x), float64(y)); err != nil {
			return err
		}
		RandomDelay(100, 300)
	}
	return nil
}
