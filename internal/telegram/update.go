package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Update is an inbound webhook update. Only the fields the gateway reacts to
// are modeled.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			FirstName string `json:"first_name"`
		} `json:"from"`
	} `json:"message"`
}

// inlineKeyboard is the reply markup opening the mini app.
type inlineKeyboard struct {
	InlineKeyboard [][]keyboardButton `json:"inline_keyboard"`
}

type keyboardButton struct {
	Text   string  `json:"text"`
	WebApp *webApp `json:"web_app,omitempty"`
}

type webApp struct {
	URL string `json:"url"`
}

// HandleUpdate processes one webhook update. Only /start is handled: it
// replies with a greeting and the button that opens the mini app. Everything
// else is ignored.
func (c *Client) HandleUpdate(ctx context.Context, raw []byte) error {
	var update Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	if update.Message == nil || !strings.HasPrefix(update.Message.Text, "/start") {
		return nil
	}

	name := update.Message.From.FirstName
	if name == "" {
		name = "friend"
	}

	greeting := fmt.Sprintf(
		"Hi %s! Welcome to AI Stylist, your virtual hairstyle assistant. Tap the button below to open the app.",
		name,
	)

	return c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": update.Message.Chat.ID,
		"text":    greeting,
		"reply_markup": inlineKeyboard{
			InlineKeyboard: [][]keyboardButton{{
				{Text: "Open the app", WebApp: &webApp{URL: c.cfg.AppURL}},
			}},
		},
	})
}
