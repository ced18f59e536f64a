package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// Manager owns the playwright runtime and the browser process.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewManager starts playwright and launches Chromium. Headful by default:
// LinkedIn's bot detection is far more aggressive against headless sessions.
func NewManager(headless bool) (*Manager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Manager{pw: pw, browser: browser}, nil
}

// NewContext creates a browser context carrying the given session cookies.
func (m *Manager) NewContext(cookies []playwright.OptionalCookie) (playwright.BrowserContext, error) {
	ctx, err := m.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	if len(cookies) > 0 {
		if err := ctx.AddCookies(cookies); err != nil {
			ctx.Close()
			return nil, fmt.Errorf("add cookies: %w", err)
		}
	}
	return ctx, nil
}

func (m *Manager) Close() error {
	if err := m.browser.Close(); err != nil {
		return err
	}
	return m.pw.Stop()
}
