package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"
)

// Cookie is one entry of a browser cookie export file. Log into LinkedIn in a
// normal browser, dump cookies with any cookie-export extension, and point
// the config at the resulting JSON file.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a cookie export file into playwright's cookie format.
func LoadCookies(path string) ([]playwright.OptionalCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	pwCookies := make([]playwright.OptionalCookie, len(cookies))
	for i, c := range cookies {
		pwCookies[i] = c.toPlaywright()
	}
	return pwCookies, nil
}

func (c Cookie) toPlaywright() playwright.OptionalCookie {
	cookie := playwright.OptionalCookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: playwright.String(c.Domain),
		Path:   playwright.String(c.Path),
	}
	if c.Expires > 0 {
		cookie.Expires = playwright.Float(c.Expires)
	}
	if c.HTTPOnly {
		cookie.HttpOnly = playwright.Bool(true)
	}
	if c.Secure {
		cookie.Secure = playwright.Bool(true)
	}
	switch c.SameSite {
	case "Lax", "lax":
		cookie.SameSite = playwright.SameSiteAttributeLax
	case "Strict", "strict":
		cookie.SameSite = playwright.SameSiteAttributeStrict
	case "None", "none", "no_restriction":
		cookie.SameSite = playwright.SameSiteAttributeNone
	}
	return cookie
}
