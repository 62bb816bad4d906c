package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf16"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"mindweave/internal/contact"
)

// Telegram caps a message at 4096 UTF-16 code units of text after entity
// parsing. Leave some headroom.
const telegramMaxText = 4000

type Telegram struct {
	bot    *gotgbot.Bot
	chatID int64
}

func NewTelegram(bot *gotgbot.Bot, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Notify(ctx context.Context, m contact.Message) error {
	_, err := t.bot.SendMessageWithContext(ctx, t.chatID, telegramText(m), &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	return nil
}

// telegramText renders the HTML message. Only the description is shortened,
// before escaping, so entities and tags are never cut.
func telegramText(m contact.Message) string {
	var b, plain strings.Builder
	b.WriteString("<b>New Client Entry</b>\n")
	plain.WriteString("New Client Entry\n")
	line := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s\n", label, html.EscapeString(value))
		fmt.Fprintf(&plain, "%s: %s\n", label, value)
	}
	line("Name", m.FullName())
	line("Email", m.Email)
	line("Company", m.Company)
	line("Project Type", m.ProjectType)
	line("Timeline", m.Timeline)

	budget := telegramMaxText - utf16Len(plain.String()) - utf16Len("Description: \n")
	line("Description", truncateUTF16(m.Description, budget))
	return b.String()
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// truncateUTF16 shortens s to at most max UTF-16 code units, marking the cut
// with an ellipsis.
func truncateUTF16(s string, max int) string {
	if utf16Len(s) <= max {
		return s
	}
	if max <= 1 {
		return ""
	}
	n := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if l <= 0 {
			l = 1
		}
		if n+l > max-1 {
			return s[:i] + "…"
		}
		n += l
	}
	return s
}
