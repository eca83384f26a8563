package sink

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mtf-screener/internal/model"
)

// TelegramSender is satisfied by *tgbot.BotAPI.
type TelegramSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// NewTelegramBot authenticates against the Bot API.
func NewTelegramBot(token string) (*tgbot.BotAPI, error) {
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return bot, nil
}

// Telegram sends aligned signals, and optionally every signal, to a chat.
type Telegram struct {
	bot        TelegramSender
	chatID     int64
	allSignals bool
}

// NewTelegram creates the sink.
func NewTelegram(bot TelegramSender, chatID int64, allSignals bool) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, allSignals: allSignals}
}

func (t *Telegram) EmitSignal(_ context.Context, s model.Signal) error {
	if !t.allSignals {
		return nil
	}
	text := fmt.Sprintf("%s *%s* %s\n%s score %s",
		emoji(s.Direction()), esc(s.Pair), esc(s.Timeframe), esc(string(s.Signal)), esc(fmt.Sprintf("%.2f", s.Score)))
	return t.send(text)
}

func (t *Telegram) EmitAligned(_ context.Context, a model.AlignedSignal) error {
	text := fmt.Sprintf("%s *%s aligned %s*\nconfidence %s\n%s: %s \\(%s\\)\n%s: %s \\(%s\\)",
		emoji(a.Direction), esc(a.Pair), esc(string(a.Direction)),
		esc(fmt.Sprintf("%.2f", a.Confidence)),
		esc(a.Primary.Timeframe), esc(string(a.Primary.Signal)), esc(fmt.Sprintf("%.2f", a.Primary.Score)),
		esc(a.Secondary.Timeframe), esc(string(a.Secondary.Signal)), esc(fmt.Sprintf("%.2f", a.Secondary.Score)))
	return t.send(text)
}

func (t *Telegram) send(text string) error {
	msg := tgbot.NewMessage(t.chatID, text)
	msg.ParseMode = tgbot.ModeMarkdownV2
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func esc(s string) string { return tgbot.EscapeText(tgbot.ModeMarkdownV2, s) }

func emoji(d model.Direction) string {
	switch d {
	case model.DirBuy:
		return "🟢"
	case model.DirSell:
		return "🔴"
	default:
		return "⚪"
	}
}
