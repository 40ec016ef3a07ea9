package notify

import (
	"context"

	"github.com/gen2brain/beeep"
	tele "gopkg.in/telebot.v4"
)

// DesktopSink shows a native desktop notification on the host running the
// daemon.
type DesktopSink struct {
	AppIcon string
}

func (DesktopSink) Name() string { return "desktop" }

func (d DesktopSink) Send(_ context.Context, title, body string) error {
	return beeep.Notify(title, body, d.AppIcon)
}

// TelegramSink forwards outcomes to a Telegram chat. Useful on headless
// hosts where desktop notifications have nowhere to go.
type TelegramSink struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	// Send-only: no poller, the bot never consumes updates.
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: bot, chat: tele.ChatID(chatID)}, nil
}

func (*TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(_ context.Context, title, body string) error {
	_, err := s.bot.Send(s.chat, title+"\n"+body)
	return err
}
