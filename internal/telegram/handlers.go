package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/core"
	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

const (
	defaultNotifyHour = 9
	maxContentLen     = 1024
)

// ensureUser makes sure a user row exists; if not, creates it with defaults.
func (r *Router) ensureUser(ctx context.Context, msg *tgbotapi.Message) (*domain.User, error) {
	chatID := msg.Chat.ID
	u, err := r.repo.GetUser(ctx, chatID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	lang := "en"
	if msg.From != nil && msg.From.LanguageCode != "" {
		lang = msg.From.LanguageCode
	}
	u = &domain.User{
		ChatID:     chatID,
		TZOffset:   0,
		NotifyHour: defaultNotifyHour,
		Lang:       lang,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// getUser is ensureUser for flows where only registered users make sense.
func (r *Router) getUser(ctx context.Context, chatID int64) (*domain.User, bool) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Error("get user failed", zap.Int64("chat", chatID), zap.Error(err))
		}
		r.sendText(chatID, "Please run /start first.")
		return nil, false
	}
	return u, true
}

// --- Onboarding & settings ---

func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := r.ensureUser(ctx, msg); err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(msg.Chat.ID, retryText)
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, startText)
	out.ReplyMarkup = zoneKeyboard()
	if _, err := r.bot.Send(out); err != nil {
		r.log.Warn("send failed", zap.Error(err))
	}
}

func (r *Router) handleZone(ctx context.Context, chatID int64, arg string) {
	if _, ok := r.getUser(ctx, chatID); !ok {
		return
	}
	if arg == "" {
		out := tgbotapi.NewMessage(chatID, "Pick your timezone offset:")
		out.ReplyMarkup = zoneKeyboard()
		_, _ = r.bot.Send(out)
		return
	}
	off, err := domain.ParseOffset(arg)
	if err != nil {
		r.sendText(chatID, "Invalid offset. Examples: +3, -11, UTC+9.")
		return
	}
	r.setZone(ctx, chatID, off)
}

func (r *Router) handleZoneCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	off, err := strconv.Atoi(strings.TrimPrefix(data, "tz:"))
	if err != nil || !domain.ValidOffset(off) {
		return
	}
	r.setZone(ctx, chatID, off)
}

func (r *Router) setZone(ctx context.Context, chatID int64, off int) {
	u, ok := r.getUser(ctx, chatID)
	if !ok {
		return
	}
	u.TZOffset = off
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		r.log.Error("save offset failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	out := tgbotapi.NewMessage(chatID, "Timezone set to "+domain.FormatOffset(off)+".\n\n"+askHourText)
	out.ReplyMarkup = hourKeyboard()
	_, _ = r.bot.Send(out)
}

func (r *Router) handleHour(ctx context.Context, chatID int64, arg string) {
	if _, ok := r.getUser(ctx, chatID); !ok {
		return
	}
	if arg == "" {
		out := tgbotapi.NewMessage(chatID, askHourText)
		out.ReplyMarkup = hourKeyboard()
		_, _ = r.bot.Send(out)
		return
	}
	h, err := strconv.Atoi(arg)
	if err != nil || h < 0 || h > 23 {
		r.sendText(chatID, "Invalid hour. Use a number from 0 to 23.")
		return
	}
	r.setHour(ctx, chatID, h)
}

func (r *Router) handleHourCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	h, err := strconv.Atoi(strings.TrimPrefix(data, "hour:"))
	if err != nil || h < 0 || h > 23 {
		return
	}
	r.setHour(ctx, chatID, h)
}

func (r *Router) setHour(ctx context.Context, chatID int64, hour int) {
	u, ok := r.getUser(ctx, chatID)
	if !ok {
		return
	}
	u.NotifyHour = hour
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		r.log.Error("save hour failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	out := tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Notify hour set to %02d:00 your time. You are all set — try /new or wait for an offer.", hour))
	out.ReplyMarkup = mainMenuKeyboard(u.Enabled)
	_, _ = r.bot.Send(out)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u, ok := r.getUser(ctx, chatID)
	if !ok {
		return
	}
	enabled := "✅ receiving offers"
	if !u.Enabled {
		enabled = "⏸ paused"
	}
	body := fmt.Sprintf("🧾 Your settings:\n• Timezone: %s\n• Notify hour: %02d:00\n• %s\n",
		domain.FormatOffset(u.TZOffset), u.NotifyHour, enabled)

	open, err := r.repo.ListOpenAssignments(ctx, chatID)
	if err != nil {
		r.log.Error("list open failed", zap.Error(err))
	}
	if len(open) > 0 {
		body += fmt.Sprintf("\nCurrent offer: slot %d, expires %s UTC. Reply with content or /skip.",
			open[0].SlotIndex, open[0].ExpiresAt.UTC().Format("15:04"))
	} else {
		body += "\nNo offer pending right now."
	}

	out := tgbotapi.NewMessage(chatID, body)
	out.ReplyMarkup = mainMenuKeyboard(u.Enabled)
	_, _ = r.bot.Send(out)
}

func (r *Router) handlePause(ctx context.Context, chatID int64) {
	if err := r.repo.SetEnabled(ctx, chatID, false); err != nil {
		r.log.Error("pause failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	out := tgbotapi.NewMessage(chatID, pausedText)
	out.ReplyMarkup = mainMenuKeyboard(false)
	_, _ = r.bot.Send(out)
}

func (r *Router) handleResume(ctx context.Context, chatID int64) {
	if err := r.repo.SetEnabled(ctx, chatID, true); err != nil {
		r.log.Error("resume failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	out := tgbotapi.NewMessage(chatID, resumedText)
	out.ReplyMarkup = mainMenuKeyboard(true)
	_, _ = r.bot.Send(out)
}

// --- Chain & contribution flows ---

func (r *Router) handleNew(ctx context.Context, msg *tgbotapi.Message) {
	u, err := r.ensureUser(ctx, msg)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(msg.Chat.ID, retryText)
		return
	}
	content := strings.TrimSpace(strings.TrimPrefix(contentOf(msg), "/new"))
	if content == "" && mediaRef(msg) == "" {
		r.sendText(u.ChatID, "Add your content: /new <text>, or send a photo with a /new caption.")
		return
	}
	if len(content) > maxContentLen {
		r.sendText(u.ChatID, "Too long. Please keep it under 1024 characters.")
		return
	}

	chain, err := r.svc.CreateChain(ctx, u.ChatID, content, mediaRef(msg))
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			r.sendText(u.ChatID, "🚫 That content did not pass review ("+verr.Reason+"). Try different content.")
			return
		}
		r.log.Error("create chain failed", zap.Error(err))
		r.sendText(u.ChatID, retryText)
		return
	}
	r.sendText(u.ChatID, fmt.Sprintf(
		"🚀 Chain started! You filled slot 1 (%s). It now travels westward; "+
			"I will deliver the result to you in 24 hours.",
		domain.FormatOffset(chain.CreatorTZ)))
}

func (r *Router) handleInbox(ctx context.Context, chatID int64) {
	if _, ok := r.getUser(ctx, chatID); !ok {
		return
	}
	offer, err := r.svc.Inbox(ctx, chatID)
	if err != nil {
		r.log.Error("inbox failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	r.sendOffer(chatID, offer)
}

func (r *Router) handleSkip(ctx context.Context, chatID int64) {
	if _, ok := r.getUser(ctx, chatID); !ok {
		return
	}
	open, err := r.repo.ListOpenAssignments(ctx, chatID)
	if err != nil {
		r.log.Error("list open failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	if len(open) == 0 {
		r.sendText(chatID, nothingPendingText)
		return
	}
	r.skip(ctx, chatID, open[0].ID)
}

func (r *Router) handleSkipCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	r.skip(ctx, chatID, strings.TrimPrefix(data, "skip:"))
}

func (r *Router) skip(ctx context.Context, chatID int64, assignmentID string) {
	next, err := r.svc.SkipAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, core.ErrAssignmentClosed) {
			r.sendText(chatID, "That offer is no longer open.")
			return
		}
		r.log.Error("skip failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	r.sendOffer(chatID, next)
}

// handleContent feeds free-form text or a photo into the user's current
// assignment.
func (r *Router) handleContent(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if _, ok := r.getUser(ctx, chatID); !ok {
		return
	}

	content := strings.TrimSpace(contentOf(msg))
	// A photo captioned "/new ..." starts a chain even though Telegram
	// does not treat captions as commands.
	if strings.HasPrefix(content, "/new") {
		r.handleNew(ctx, msg)
		return
	}
	if content == "" && mediaRef(msg) == "" {
		return
	}
	if len(content) > maxContentLen {
		r.sendText(chatID, "Too long. Please keep it under 1024 characters.")
		return
	}

	open, err := r.repo.ListOpenAssignments(ctx, chatID)
	if err != nil {
		r.log.Error("list open failed", zap.Error(err))
		r.sendText(chatID, retryText)
		return
	}
	if len(open) == 0 {
		r.sendText(chatID, nothingPendingText)
		return
	}

	res, err := r.svc.SubmitBlock(ctx, open[0].ID, content, mediaRef(msg))
	if err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			// The offer stays open; ask again.
			r.sendText(chatID, "🚫 That content did not pass review ("+verr.Reason+"). "+
				"Send something else, or /skip.")
		case errors.Is(err, core.ErrAssignmentClosed):
			r.sendText(chatID, "That offer already resolved.")
		default:
			r.log.Error("submit failed", zap.Error(err))
			r.sendText(chatID, retryText)
		}
		return
	}

	switch {
	case !res.Accepted:
		r.sendText(chatID, "That chain closed before your contribution arrived.")
	case res.Forked:
		r.sendText(chatID, fmt.Sprintf(
			"⚡ Someone beat you to slot %d, so your contribution started a new branch. "+
				"It now competes for completion on its own!", res.Block.SlotIndex))
	case res.Completed:
		r.sendText(chatID, "🧩 Accepted, and that was the final slot! The chain is complete.")
	default:
		r.sendText(chatID, fmt.Sprintf("🧩 Accepted! You filled slot %d of %d.",
			res.Block.SlotIndex, domain.SlotCount))
	}
	r.sendOffer(chatID, res.Next)
}

// sendOffer renders the next offer, or the empty-inbox message for nil.
func (r *Router) sendOffer(chatID int64, offer *domain.AssignmentOffered) {
	if offer == nil {
		r.sendText(chatID, nothingPendingText)
		return
	}
	out := tgbotapi.NewMessage(chatID, renderOffer(*offer))
	out.ReplyMarkup = offerKeyboard(offer.Assignment.ID)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Warn("send offer failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}
