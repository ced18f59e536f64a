package browser

import (
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ScrollPacing bounds one advance of the auto-scroll loop: how far one step
// scrolls and how long to idle before the next one.
type ScrollPacing struct {
	MinStepPx int
	MaxStepPx int
	MinPause  time.Duration
	MaxPause  time.Duration
}

// NaturalScrollStep performs one feed advance as a burst of wheel-like
// ticks. Each tick's distance varies ±10% and ticks are separated by short
// random delays, so the trace looks like a person flicking the wheel rather
// than one synthetic jump.
func NaturalScrollStep(page playwright.Page, pacing ScrollPacing) error {
	total := pacing.MinStepPx
	if span := pacing.MaxStepPx - pacing.MinStepPx; span > 0 {
		total += rand.Intn(span)
	}
	ticks := 3 + rand.Intn(3)
	tickDistance := float64(total) / float64(ticks)

	for i := 0; i < ticks; i++ {
		step := tickDistance * (0.9 + rand.Float64()*0.2)
		if _, err := page.Evaluate("(px) => window.scrollBy(0, px)", int(step)); err != nil {
			return err
		}
		if i < ticks-1 {
			RandomDelay(50, 140)
		}
	}
	return nil
}
