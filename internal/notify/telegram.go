package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes user-visible notices to Telegram. A nil Notifier is a
// no-op, so callers never need to care whether the bot is configured.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Notifier{api: api, chatID: chatID}, nil
}

func (n *Notifier) send(text string) error {
	if n == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "HTML"
	_, err := n.api.Send(msg)
	return err
}

// SessionSummary reports the result of one scrape session.
func (n *Notifier) SessionSummary(scanned, accepted int) error {
	return n.send(fmt.Sprintf("✅ Scrape session finished: scanned <b>%d</b> posts, saved <b>%d</b> hiring posts.", scanned, accepted))
}

// Failure reports a session-level failure.
func (n *Notifier) Failure(reason string) error {
	return n.send(fmt.Sprintf("⚠️ <b>Scraper error</b>:\n%s", reason))
}
