package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// UI texts in English
const (
	startText = "🌍 I relay content around the world.\n\n" +
		"Start a chain with /new <your text> (or a photo with a /new caption) " +
		"and it will travel through all 24 timezones in 24 hours, one " +
		"contributor per slot. When a chain needs your slot, I will ping you " +
		"at your notify hour.\n\n" +
		"First, pick your timezone offset below."

	helpText = "Commands:\n" +
		"/new <text> — start a chain with your content\n" +
		"/inbox — show the chain currently awaiting you\n" +
		"/skip — pass on the current offer\n" +
		"/status — your settings and current offer\n" +
		"/zone — set your timezone offset\n" +
		"/hour — set your notify hour (local)\n" +
		"/pause, /resume — stop or restart offers"

	nothingPendingText = "Nothing pending. Start your own chain with /new!"
	askHourText        = "At which local hour should I offer you chains? (0–23)"
	pausedText         = "Paused ⏸ You will receive no offers until /resume."
	resumedText        = "Resumed ✅"
	retryText          = "Something went wrong, please try again."
)

// renderOffer turns an offer event into the "a chain awaits you" prompt.
func renderOffer(ev domain.AssignmentOffered) string {
	exp := ev.Assignment.ExpiresAt.UTC().Format("15:04")
	return fmt.Sprintf(
		"✉️ A chain awaits you!\n\n"+
			"Slot %d of %d, representing %s.\n"+
			"Reply with your text (or a photo) to fill it, or /skip to pass.\n"+
			"The offer expires at %s UTC.",
		ev.Assignment.SlotIndex, domain.SlotCount,
		domain.FormatOffset(ev.NeededOffset), exp)
}

// renderCompleted announces a closed chain to its creator.
func renderCompleted(ev domain.ChainCompleted) string {
	when := ""
	if ev.Chain.DeliverAt != nil {
		when = " I will deliver it at " + ev.Chain.DeliverAt.UTC().Format("15:04 MST") + "."
	}
	// A fork reaches slot 24 with fewer own blocks than a root does.
	if ev.Chain.NextSlot() > domain.SlotCount {
		return fmt.Sprintf("🎉 Your chain went all the way around to slot %d!%s",
			domain.SlotCount, when)
	}
	return fmt.Sprintf("⏰ Your chain's 24 hours are up. It closed with %d contribution(s).%s",
		ev.Chain.BlockCount, when)
}

// renderDelivery builds the final summary text for a delivered chain.
func renderDelivery(ev domain.ChainDelivered) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🌏 Your chain is complete — %d contribution(s):\n\n", len(ev.Blocks))
	for _, b := range ev.Blocks {
		fmt.Fprintf(&sb, "%2d. %s — %s", b.SlotIndex, domain.FormatOffset(b.TZOffset), b.Content)
		if b.MediaRef != "" {
			sb.WriteString(" 📷")
		}
		sb.WriteString("\n")
	}
	if ev.Chain.IsFork() {
		sb.WriteString("\nThis chain branched from another at slot ")
		sb.WriteString(strconv.Itoa(*ev.Chain.ForkSlot))
		sb.WriteString(".")
	}
	return sb.String()
}

// zoneKeyboard offers all 24 offsets, four per row, east to west.
func zoneKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for off := domain.MaxOffset; off >= domain.MinOffset; off-- {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			domain.FormatOffset(off), "tz:"+strconv.Itoa(off)))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// hourKeyboard offers common notify hours; /hour <n> covers the rest.
func hourKeyboard() tgbotapi.InlineKeyboardMarkup {
	hours := []int{7, 9, 12, 15, 18, 21}
	var row []tgbotapi.InlineKeyboardButton
	for _, h := range hours {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%02d:00", h), "hour:"+strconv.Itoa(h)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// offerKeyboard attaches a skip shortcut to an offer message.
func offerKeyboard(assignmentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", "skip:"+assignmentID),
		),
	)
}

// mainMenuKeyboard is the persistent reply keyboard.
func mainMenuKeyboard(enabled bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/pause"
	if !enabled {
		toggle = "/resume"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/inbox"),
			tgbotapi.NewKeyboardButton("/status"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}
