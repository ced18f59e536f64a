package linkedin

import (
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const BaseURL = "https://www.linkedin.com"

var activityURNRegex = regexp.MustCompile(`urn:li:activity:(\d+)`)

// ParseActivityID pulls the numeric activity id out of any string carrying an
// activity URN, e.g. "urn:li:activity:7310726920638251009" or a feed update
// href embedding the same URN. Returns "" when no URN is present.
func ParseActivityID(s string) string {
	m := activityURNRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// ActivityURL builds the canonical feed-update URL for an activity id.
func ActivityURL(id string) string {
	return fmt.Sprintf("%s/feed/update/urn:li:activity:%s", BaseURL, id)
}

// DecodePostedAt recovers the post creation time embedded in an activity id.
// The upper 41 bits of the id are milliseconds since the Unix epoch, so the
// decode is a right shift by 22. The shift runs on a big.Int: ids occupy the
// full 64-bit range and must not round-trip through a float.
func DecodePostedAt(id string) (time.Time, error) {
	v, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return time.Time{}, fmt.Errorf("activity id %q is not numeric", id)
	}
	ms := v.Rsh(v, 22)
	if !ms.IsInt64() {
		return time.Time{}, fmt.Errorf("activity id %q out of range", id)
	}
	return time.UnixMilli(ms.Int64()).UTC(), nil
}
