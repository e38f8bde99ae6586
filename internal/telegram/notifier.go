package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// Notifier renders core events into Telegram messages. It satisfies
// core.Notifier and is the only outbound path from the core to users.
type Notifier struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

func NewNotifier(bot *tgbotapi.BotAPI, log *zap.Logger) *Notifier {
	return &Notifier{bot: bot, log: log}
}

// OfferAssignment pushes "a chain awaits you" to the assignee.
func (n *Notifier) OfferAssignment(_ context.Context, ev domain.AssignmentOffered) error {
	msg := tgbotapi.NewMessage(ev.Assignment.UserID, renderOffer(ev))
	msg.ReplyMarkup = offerKeyboard(ev.Assignment.ID)
	_, err := n.bot.Send(msg)
	return err
}

// NotifyCompleted tells the creator their chain closed.
func (n *Notifier) NotifyCompleted(_ context.Context, ev domain.ChainCompleted) error {
	_, err := n.bot.Send(tgbotapi.NewMessage(ev.Chain.CreatorID, renderCompleted(ev)))
	return err
}

// DeliverChain sends the one-time summary, then the contributed photos.
// The summary is the delivery; photo sends after it are best-effort.
func (n *Notifier) DeliverChain(_ context.Context, ev domain.ChainDelivered) error {
	if _, err := n.bot.Send(tgbotapi.NewMessage(ev.Chain.CreatorID, renderDelivery(ev))); err != nil {
		return err
	}
	for _, b := range ev.Blocks {
		if b.MediaRef == "" {
			continue
		}
		photo := tgbotapi.NewPhoto(ev.Chain.CreatorID, tgbotapi.FileID(b.MediaRef))
		photo.Caption = domain.FormatOffset(b.TZOffset)
		if _, err := n.bot.Send(photo); err != nil {
			n.log.Warn("photo send failed",
				zap.String("chain", ev.Chain.ID),
				zap.Int("slot", b.SlotIndex),
				zap.Error(err))
		}
	}
	return nil
}
