package telegram

import (
	"encoding/json"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
)

// Decoder turns raw Bot API update JSON into model.Update.
type Decoder struct{}

func NewDecoder() Decoder { return Decoder{} }

func (Decoder) Decode(raw []byte, receivedAt time.Time) (model.Update, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.Update{}, &domain.DecodeError{Reason: domain.ErrMalformedPayload, Detail: err.Error()}
	}
	return FromAPI(u, receivedAt)
}

// FromAPI maps an already parsed update, as delivered by long polling.
func FromAPI(u tgbotapi.Update, receivedAt time.Time) (model.Update, error) {
	if u.UpdateID <= 0 {
		return model.Update{}, &domain.DecodeError{Reason: domain.ErrMalformedPayload, Detail: "missing update_id"}
	}
	out := model.Update{ID: int64(u.UpdateID), ReceivedAt: receivedAt}

	switch {
	case u.Message != nil:
		if err := fromMessage(&out, u.Message); err != nil {
			return model.Update{}, err
		}
		out.Kind = model.KindText
		if u.Message.Text == "" {
			out.Kind = model.KindOther
		}
	case u.EditedMessage != nil:
		if err := fromMessage(&out, u.EditedMessage); err != nil {
			return model.Update{}, err
		}
		out.Kind = model.KindEditedMessage
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil {
			// inline-mode callbacks carry no chat
			return model.Update{}, &domain.DecodeError{Reason: domain.ErrUnsupportedKind, Detail: "callback without chat"}
		}
		out.Kind = model.KindCallback
		out.ChatID = cq.Message.Chat.ID
		out.MessageID = cq.Message.MessageID
		out.CallbackID = cq.ID
		out.Payload = cq.Data
		if cq.From != nil {
			out.SenderID = cq.From.ID
			out.Username = cq.From.UserName
			out.LanguageCode = cq.From.LanguageCode
		}
	default:
		return model.Update{}, &domain.DecodeError{Reason: domain.ErrUnsupportedKind, Detail: updateType(u)}
	}
	return out, nil
}

func fromMessage(out *model.Update, m *tgbotapi.Message) error {
	if m.Chat == nil || m.Chat.ID == 0 {
		return &domain.DecodeError{Reason: domain.ErrMalformedPayload, Detail: "message without chat"}
	}
	out.ChatID = m.Chat.ID
	out.MessageID = m.MessageID
	out.Payload = m.Text
	if m.ReplyToMessage != nil {
		out.ReplyToMessageID = m.ReplyToMessage.MessageID
	}
	if m.From != nil {
		out.SenderID = m.From.ID
		out.Username = m.From.UserName
		out.LanguageCode = m.From.LanguageCode
	}
	return nil
}

func updateType(u tgbotapi.Update) string {
	switch {
	case u.InlineQuery != nil:
		return "inline_query"
	case u.ChannelPost != nil, u.EditedChannelPost != nil:
		return "channel_post"
	case u.Poll != nil, u.PollAnswer != nil:
		return "poll"
	case u.MyChatMember != nil, u.ChatMember != nil:
		return "chat_member"
	}
	return "unknown"
}
