// Package telegram adapts gopkg.in/telebot.v4 to the transport.Gateway
// interface and hosts the long-poll bot instance.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"lessonbot/internal/transport"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter owns the telebot instance. The command layer registers its
// handlers through Bot(); the scheduler only sees transport.Gateway.
type Adapter struct {
	bot *tele.Bot
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:     cfg.Token,
		Poller:    &tele.LongPoller{Timeout: timeout},
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

// Bot exposes the underlying instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start runs the long poller until Stop is called. Blocking.
func (a *Adapter) Start() {
	a.log.Info().Msg("telegram poller starting")
	a.bot.Start()
}

// Stop terminates the long poller.
func (a *Adapter) Stop() {
	a.bot.Stop()
	a.log.Info().Msg("telegram poller stopped")
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(tele.ChatID(chatID), text)
	return err
}

func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	_, err := a.bot.Send(tele.ChatID(chatID), photo)
	return err
}

func (a *Adapter) Copy(ctx context.Context, chatID, fromChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: fromChatID}
	_, err := a.bot.Copy(tele.ChatID(chatID), src)
	return err
}

// Classify maps telebot errors onto the transport failure taxonomy.
// Typed errors are checked first; the string fallback catches API
// descriptions telebot has no variable for.
func (a *Adapter) Classify(err error) transport.FailureKind {
	if err == nil {
		return transport.FailTransient
	}
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrNotStartedByUser):
		return transport.FailPermanent
	case errors.Is(err, tele.ErrWrongFileID):
		return transport.FailInvalidContent
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked"),
		strings.Contains(msg, "deactivated"),
		strings.Contains(msg, "chat not found"):
		return transport.FailPermanent
	case strings.Contains(msg, "wrong file identifier"),
		strings.Contains(msg, "file_id_invalid"):
		return transport.FailInvalidContent
	}
	return transport.FailTransient
}
