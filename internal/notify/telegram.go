package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flexa/stylebot/internal/models"
)

// TelegramSink sends events to the configured admin groups and to users
// directly. It renders minimal operational text; the full chat UI lives in the
// transport layer, not here.
type TelegramSink struct {
	bot            *tgbotapi.BotAPI
	manualGroupID  int64
	paymentGroupID int64
	newUserGroupID int64
}

func NewTelegramSink(bot *tgbotapi.BotAPI, manualGroupID, paymentGroupID, newUserGroupID int64) *TelegramSink {
	return &TelegramSink{
		bot:            bot,
		manualGroupID:  manualGroupID,
		paymentGroupID: paymentGroupID,
		newUserGroupID: newUserGroupID,
	}
}

func (s *TelegramSink) Send(_ context.Context, event Event) error {
	switch e := event.(type) {
	case UserJoined:
		return s.sendText(s.newUserGroupID, fmt.Sprintf(
			"New user joined\nName: %s @%s\nID: %d\nLanguage: %s\nStarting credits: %d",
			e.User.FirstName, orDash(e.User.Username), e.User.ID, e.User.Language, e.User.CreditBalance))

	case PaymentSubmitted:
		text := fmt.Sprintf(
			"New payment %s\nUser: %s @%s (ID %d)\nPackage: %s\nAmount: %d Birr\nCredits: %d",
			shortID(e.Payment.ID), e.User.FirstName, orDash(e.User.Username), e.User.ID,
			e.Payment.PackageType, e.Payment.AmountBirr, e.Payment.CreditsAmount)
		if ocr := e.Payment.OCRData; ocr != nil {
			text += fmt.Sprintf("\nOCR: amount=%s txn=%s sender=%s",
				orDash(ocr.Amount), orDash(ocr.TransactionID), orDash(ocr.Sender))
		}
		return s.sendText(s.paymentGroupID, text)

	case PaymentApproved:
		return s.sendText(e.UserID, userText(e.Language,
			fmt.Sprintf("Payment approved. %d credits added, balance is now %d.", e.Credits, e.NewBalance),
			fmt.Sprintf("ክፍያው ጸድቋል። %d ክሬዲት ታክሏል፣ ቀሪ ሂሳብ %d ነው።", e.Credits, e.NewBalance)))

	case PaymentRejected:
		return s.sendText(e.UserID, userText(e.Language,
			fmt.Sprintf("Payment rejected: %s", e.Reason),
			fmt.Sprintf("ክፍያው ተቀባይነት አላገኘም፦ %s", e.Reason)))

	case GenerationQueuedManual:
		return s.sendText(s.manualGroupID, fmt.Sprintf(
			"Manual queue alert #%d\nUser: %s @%s (ID %d)\nStyle: %s\nCredits spent: %d\nPrompt: %s",
			e.QueueTotal, e.User.FirstName, orDash(e.User.Username), e.User.ID,
			orDash(e.StyleName), e.Generation.CreditsSpent, truncate(e.Prompt, 200)))

	case GenerationCompleted:
		return s.sendPhoto(e.UserID, e.ResultURL, userText(e.Language,
			"Your transformed photo is ready!",
			"የተቀየረው ፎቶዎ ዝግጁ ነው!"))

	case GenerationCancelled:
		return s.sendText(e.UserID, userText(e.Language,
			fmt.Sprintf("We could not complete your generation (%s). %d credits were refunded, balance is now %d.", e.Reason, e.Refunded, e.NewBalance),
			fmt.Sprintf("ትውልዱን ማጠናቀቅ አልተቻለም (%s)። %d ክሬዲት ተመልሷል፣ ቀሪ ሂሳብ %d ነው።", e.Reason, e.Refunded, e.NewBalance)))

	default:
		return fmt.Errorf("unknown event type %T", event)
	}
}

func (s *TelegramSink) sendText(chatID int64, text string) error {
	if chatID == 0 {
		return nil
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *TelegramSink) sendPhoto(chatID int64, photoURL, caption string) error {
	if chatID == 0 {
		return nil
	}
	if photoURL == "" {
		return s.sendText(chatID, caption)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	if _, err := s.bot.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func userText(lang models.Language, en, am string) string {
	if lang == models.LanguageAM {
		return am
	}
	return en
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
