package linkedin

import "errors"

// ErrStaleSelectors means the body selector failed too many times in a row,
// which almost always means LinkedIn changed its markup. The session loop
// must stop and surface this instead of silently scanning zero matches.
var ErrStaleSelectors = errors.New("post body selector failed repeatedly, feed markup may have changed")

const bodyMissLimit = 5

// BodyMissCounter tracks consecutive body-selector misses across extractor
// instances. One counter is shared per session so six broken posts in a row
// escalate regardless of which Post instance saw them.
type BodyMissCounter struct {
	misses int
}

func NewBodyMissCounter() *BodyMissCounter {
	return &BodyMissCounter{}
}

// Miss records one failed body lookup. Returns ErrStaleSelectors once the
// consecutive-miss count exceeds the limit.
func (c *BodyMissCounter) Miss() error {
	c.misses++
	if c.misses > bodyMissLimit {
		return ErrStaleSelectors
	}
	return nil
}

// Hit resets the streak. Any successful lookup clears suspicion.
func (c *BodyMissCounter) Hit() {
	c.misses = 0
}
