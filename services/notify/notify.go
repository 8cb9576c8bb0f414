package notifysvc

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

var subjects = map[schedule.NoticeKind]string{
	schedule.NoticePostponed: "Lecture postponed",
	schedule.NoticeCancelled: "Postponement cancelled",
}

type emailNotifier struct {
	mailer core.EmailService
}

// NewEmailNotifier mails notices to the trainer, using the template named after the notice kind.
func NewEmailNotifier(mailer core.EmailService) schedule.Notifier {
	return &emailNotifier{mailer: mailer}
}

func (n *emailNotifier) Notify(_ context.Context, notice schedule.Notice) error {
	if notice.Trainer.Email == "" {
		return nil
	}
	subject, ok := subjects[notice.Kind]
	if !ok {
		return errors.Errorf("unknown notice kind %q", notice.Kind)
	}
	n.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: notice.Trainer.Name, Address: notice.Trainer.Email}},
		Subject:      subject,
		TemplateName: string(notice.Kind),
		TemplateData: notice,
	})
	return nil
}

// TelegramSender is the part of *tgbotapi.BotAPI used to deliver notices.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramNotifier struct {
	bot TelegramSender
}

// NewTelegramBot connects to the Bot API. It returns nil when no token is configured.
func NewTelegramBot(conf *core.Config) (*tgbotapi.BotAPI, error) {
	if conf.Telegram.BotToken == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(conf.Telegram.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "connecting telegram bot")
	}
	bot.Debug = conf.Debug
	return bot, nil
}

// NewTelegramNotifier messages trainers having a telegram chat.
func NewTelegramNotifier(bot TelegramSender) schedule.Notifier {
	return &telegramNotifier{bot: bot}
}

func (n *telegramNotifier) Notify(_ context.Context, notice schedule.Notice) error {
	if notice.Trainer.TelegramChatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(notice.Trainer.TelegramChatID, Text(notice))
	if _, err := n.bot.Send(msg); err != nil {
		return errors.Wrap(err, "sending telegram message")
	}
	return nil
}

// Text is the plain-text body of a notice.
func Text(n schedule.Notice) string {
	var b strings.Builder
	switch n.Kind {
	case schedule.NoticePostponed:
		fmt.Fprintf(&b, "Lecture #%d of %q planned on %s has been postponed (%s).", n.OriginalSequence, n.CourseTitle, n.OriginalDate, n.Status)
		fmt.Fprintf(&b, "\nMakeup lecture #%d: %s", n.MakeupSequence, n.MakeupDate)
		if !n.MakeupTime.IsZero() {
			fmt.Fprintf(&b, " at %s", n.MakeupTime)
		}
		if n.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s", n.Reason)
		}
	case schedule.NoticeCancelled:
		fmt.Fprintf(&b, "The postponement of lecture #%d of %q has been cancelled: it takes place on %s as planned.", n.OriginalSequence, n.CourseTitle, n.OriginalDate)
		if n.MakeupSequence > 0 {
			fmt.Fprintf(&b, "\nMakeup lecture #%d on %s has been removed.", n.MakeupSequence, n.MakeupDate)
		}
	default:
		fmt.Fprintf(&b, "%s: lecture #%d of %q", n.Kind, n.OriginalSequence, n.CourseTitle)
	}
	return b.String()
}

type multiNotifier []schedule.Notifier

// Multi fans a notice out to every notifier. All of them are tried; the first error is returned.
func Multi(notifiers ...schedule.Notifier) schedule.Notifier {
	ns := make(multiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return ns
}

func (ns multiNotifier) Notify(ctx context.Context, notice schedule.Notice) error {
	var first error
	for _, n := range ns {
		if err := n.Notify(ctx, notice); err != nil && first == nil {
			first = err
		}
	}
	return first
}
