package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/core"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// Router wires Telegram updates to handlers. It keeps no conversational
// state in memory: "what is this user writing for" is always the head of
// their open assignments in the store, so a restart loses nothing.
type Router struct {
	bot  *tgbotapi.BotAPI
	log  *zap.Logger
	repo store.Repo
	svc  *core.Service
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, svc *core.Service) *Router {
	return &Router{bot: bot, log: log, repo: repo, svc: svc}
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, msg)
		case strings.HasPrefix(text, "/help"):
			r.sendText(chatID, helpText)
		case strings.HasPrefix(text, "/new"):
			r.handleNew(ctx, msg)
		case strings.HasPrefix(text, "/inbox"):
			r.handleInbox(ctx, chatID)
		case strings.HasPrefix(text, "/skip"):
			r.handleSkip(ctx, chatID)
		case strings.HasPrefix(text, "/status"):
			r.handleStatus(ctx, chatID)
		case strings.HasPrefix(text, "/zone"):
			r.handleZone(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/zone")))
		case strings.HasPrefix(text, "/hour"):
			r.handleHour(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/hour")))
		case strings.HasPrefix(text, "/pause"):
			r.handlePause(ctx, chatID)
		case strings.HasPrefix(text, "/resume"):
			r.handleResume(ctx, chatID)
		default:
			// Free-form text or photo: a contribution to the user's
			// current assignment, or a /new caption on a photo.
			r.handleContent(ctx, msg)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		data := cb.Data
		chatID := cb.Message.Chat.ID

		switch {
		case strings.HasPrefix(data, "tz:"):
			r.handleZoneCallback(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "hour:"):
			r.handleHourCallback(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "skip:"):
			r.handleSkipCallback(ctx, chatID, data, cb.ID)
		default:
			// Unknown callback, ignore.
		}
		return
	}
}

// sendText sends a plain text message to the given chat.
func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Warn("answer callback failed", zap.Error(err))
	}
}

// mediaRef extracts the largest photo's file id, if the message carries one.
func mediaRef(msg *tgbotapi.Message) string {
	if len(msg.Photo) == 0 {
		return ""
	}
	return msg.Photo[len(msg.Photo)-1].FileID
}

// contentOf returns the usable content of a message: text, or the caption
// when it is a photo.
func contentOf(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
