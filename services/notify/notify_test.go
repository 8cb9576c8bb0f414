package notifysvc

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/services/email"
	"github.com/trezcool/letsspeak/tests"
)

type fakeSender struct {
	err  error
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, schedule.Notice) error {
	n.calls++
	return n.err
}

func postponedNotice() schedule.Notice {
	return schedule.Notice{
		Kind:             schedule.NoticePostponed,
		Trainer:          schedule.Trainer{ID: "t1", Name: "Jane", Email: "jane@test.test", TelegramChatID: 42},
		CourseID:         "c1",
		CourseTitle:      "English B1",
		OriginalSequence: 3,
		OriginalDate:     "2024-01-15",
		Status:           schedule.AttendancePostponedByStudent,
		Reason:           "exams",
		MakeupSequence:   9,
		MakeupDate:       "2024-03-04",
		MakeupTime:       "18:00",
	}
}

func TestText(t *testing.T) {
	cancelled := postponedNotice()
	cancelled.Kind = schedule.NoticeCancelled

	withoutMakeup := cancelled
	withoutMakeup.MakeupSequence = 0

	tests := []struct {
		name   string
		notice schedule.Notice
		want   string
	}{
		{
			name:   "postponed",
			notice: postponedNotice(),
			want: "Lecture #3 of \"English B1\" planned on 2024-01-15 has been postponed (postponed_by_student).\n" +
				"Makeup lecture #9: 2024-03-04 at 18:00\n" +
				"Reason: exams",
		},
		{
			name:   "cancelled",
			notice: cancelled,
			want: "The postponement of lecture #3 of \"English B1\" has been cancelled: it takes place on 2024-01-15 as planned.\n" +
				"Makeup lecture #9 on 2024-03-04 has been removed.",
		},
		{
			name:   "cancelled without makeup",
			notice: withoutMakeup,
			want:   "The postponement of lecture #3 of \"English B1\" has been cancelled: it takes place on 2024-01-15 as planned.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.notice); got != tt.want {
				t.Errorf("Text() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestEmailNotifier(t *testing.T) {
	conf := &core.Config{AppName: "LetsSpeak"}
	conf.Email.DefaultFromEmail = "noreply@test.test"
	mailer := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger())
	notifier := NewEmailNotifier(mailer)

	require.NoError(t, notifier.Notify(context.Background(), postponedNotice()))

	sent := mailer.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Lecture postponed", msg.Subject)
	assert.Equal(t, "jane@test.test", msg.To[0].Address)
	assert.True(t, strings.HasPrefix(msg.TextContent, "Hello Jane,"))
	assert.Contains(t, msg.TextContent, `Lecture #3 of "English B1" planned on 2024-01-15 has been postponed`)
	assert.Contains(t, msg.TextContent, "Reason: exams")
	assert.Contains(t, msg.TextContent, "The LetsSpeak team")
	assert.NotEmpty(t, msg.HTMLContent)

	t.Run("no email", func(t *testing.T) {
		n := postponedNotice()
		n.Trainer.Email = ""
		require.NoError(t, notifier.Notify(context.Background(), n))
		assert.Len(t, mailer.SentMessages(), 1)
	})

	t.Run("unknown kind", func(t *testing.T) {
		n := postponedNotice()
		n.Kind = "lecture_moved"
		assert.Error(t, notifier.Notify(context.Background(), n))
	})
}

func TestTelegramNotifier(t *testing.T) {
	t.Run("sends to the trainer chat", func(t *testing.T) {
		sender := new(fakeSender)
		require.NoError(t, NewTelegramNotifier(sender).Notify(context.Background(), postponedNotice()))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, int64(42), sender.sent[0].ChatID)
		assert.Equal(t, Text(postponedNotice()), sender.sent[0].Text)
	})

	t.Run("no chat", func(t *testing.T) {
		sender := new(fakeSender)
		n := postponedNotice()
		n.Trainer.TelegramChatID = 0
		require.NoError(t, NewTelegramNotifier(sender).Notify(context.Background(), n))
		assert.Empty(t, sender.sent)
	})

	t.Run("send failure", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("bad gateway")}
		err := NewTelegramNotifier(sender).Notify(context.Background(), postponedNotice())
		assert.EqualError(t, err, "sending telegram message: bad gateway")
	})
}

func TestNewTelegramBot_noToken(t *testing.T) {
	bot, err := NewTelegramBot(&core.Config{})
	assert.NoError(t, err)
	assert.Nil(t, bot)
}

func TestMulti(t *testing.T) {
	first := &countingNotifier{err: errors.New("first")}
	second := &countingNotifier{err: errors.New("second")}
	third := new(countingNotifier)

	err := Multi(first, nil, second, third).Notify(context.Background(), postponedNotice())
	assert.EqualError(t, err, "first")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, third.calls)

	assert.NoError(t, Multi().Notify(context.Background(), postponedNotice()))
}
