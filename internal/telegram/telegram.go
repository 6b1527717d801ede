// Package telegram publishes posts to a Telegram channel through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/feedcurator/internal/retry"
)

// ErrPublishFailed wraps the last error once every attempt has failed.
var ErrPublishFailed = errors.New("publish failed")

const (
	maxAttempts    = 3
	attemptDelay   = 5 * time.Second
	maxCaptionRune = 1024
	DefaultTimeout = 10 * time.Second
)

// Sender is the part of tgbotapi.BotAPI the publisher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot creates a Bot API client whose requests are bounded by timeout.
func NewBot(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

type Publisher struct {
	bot     Sender
	channel string
	retry   retry.RetryConfig
	log     *slog.Logger
}

// NewPublisher posts to channel, which is either "@name" or a numeric chat id.
func NewPublisher(bot Sender, channel string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{bot: bot, channel: channel, log: log}
	p.retry = retry.RetryConfig{
		MaxAttempts: maxAttempts,
		Delay:       attemptDelay,
		OnFailure: func(attempt int, err error) {
			p.log.Warn("error sending to Telegram", "attempt", attempt, "max", maxAttempts, "error", err)
		},
	}
	return p
}

// SetSleep replaces the wait between attempts; used by tests.
func (p *Publisher) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	p.retry.Sleep = sleep
}

// Publish sanitizes body and sends it as a photo caption when imageURL is set and
// the body fits a caption, otherwise as a text message. It returns the permalink
// of the sent message.
func (p *Publisher) Publish(ctx context.Context, body, imageURL string) (string, error) {
	body = Sanitize(body)
	if body == "" {
		return "", fmt.Errorf("%w: empty post", ErrPublishFailed)
	}
	msg, err := p.build(body, imageURL)
	if err != nil {
		return "", err
	}

	var sent tgbotapi.Message
	err = retry.WithRetry(ctx, p.retry, func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := p.bot.Send(msg)
		if err != nil {
			return err
		}
		sent = m
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	ref := Permalink(p.channel, sent.MessageID)
	p.log.Info("message sent to Telegram", "ref", ref)
	return ref, nil
}

func (p *Publisher) build(body, imageURL string) (tgbotapi.Chattable, error) {
	chatID, numeric := parseChatID(p.channel)
	if !numeric && !strings.HasPrefix(p.channel, "@") {
		return nil, fmt.Errorf("%w: invalid channel %q", ErrPublishFailed, p.channel)
	}

	if imageURL != "" && utf8.RuneCountInString(body) <= maxCaptionRune {
		var photo tgbotapi.PhotoConfig
		if numeric {
			photo = tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
		} else {
			photo = tgbotapi.NewPhotoToChannel(p.channel, tgbotapi.FileURL(imageURL))
		}
		photo.Caption = body
		photo.ParseMode = tgbotapi.ModeHTML
		return photo, nil
	}

	var text tgbotapi.MessageConfig
	if numeric {
		text = tgbotapi.NewMessage(chatID, body)
	} else {
		text = tgbotapi.NewMessageToChannel(p.channel, body)
	}
	text.ParseMode = tgbotapi.ModeHTML
	return text, nil
}

func parseChatID(channel string) (int64, bool) {
	id, err := strconv.ParseInt(channel, 10, 64)
	return id, err == nil
}

// Permalink builds the public link of message id in channel.
func Permalink(channel string, id int) string {
	switch {
	case strings.HasPrefix(channel, "@"):
		return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(channel, "@"), id)
	case strings.HasPrefix(channel, "-100"):
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(channel, "-100"), id)
	default:
		return fmt.Sprintf("https://t.me/%s/%d", strings.ReplaceAll(channel, "-", ""), id)
	}
}
