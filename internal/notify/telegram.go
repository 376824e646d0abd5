package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"alertrouter/internal/config"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	// maxCaptionRunes is Telegram's sendPhoto caption limit.
	maxCaptionRunes = 1024
	// maxMessageRunes is Telegram's sendMessage text limit.
	maxMessageRunes = 4096

	telegramTimeout = 15 * time.Second
)

// TelegramSender delivers messages and chart photos to one Telegram chat.
// Params: per-channel bot client built at config load.
// Returns: channel sender; construction failures surface on first Send.
type TelegramSender struct {
	name    string
	client  *tgbot.Bot
	chatID  any
	log     *slog.Logger
	initErr error
}

// NewTelegramSender builds the bot client for one telegram channel.
// Params: channel name, static channel config, and log destination.
// Returns: sender carrying any init error for later reporting.
func NewTelegramSender(name string, cfg config.ChannelConfig, log *slog.Logger) *TelegramSender {
	sender := &TelegramSender{
		name:   name,
		chatID: normalizeChatID(cfg.ChatID),
		log:    log,
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(base, "/")))
	}
	if strings.TrimSpace(cfg.ProxyURL) != "" {
		client, err := newHTTPClient(cfg.ProxyURL, telegramTimeout)
		if err != nil {
			sender.initErr = fmt.Errorf("telegram channel %q: %w", name, err)
			return sender
		}
		options = append(options, tgbot.WithHTTPClient(telegramTimeout, client))
	}

	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot for channel %q: %w", name, err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Send posts the message, as a photo with caption when a valid chart is
// attached, falling back to a plain text send if the photo upload fails.
// Params: context, rendered body, and optional chart bytes.
// Returns: transport error after the fallback also fails.
func (s *TelegramSender) Send(ctx context.Context, body string, image []byte) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return errors.New("telegram client is not initialized")
	}

	text := strings.TrimSpace(body)
	if text == "" {
		text = " "
	}

	if IsPNG(image) {
		_, err := s.client.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID: s.chatID,
			Photo: &tgmodels.InputFileUpload{
				Filename: "alert.png",
				Data:     bytes.NewReader(image),
			},
			Caption: truncateRunes(text, maxCaptionRunes),
		})
		if err == nil {
			return nil
		}
		s.log.Warn("telegram photo send failed, falling back to text",
			"channel", s.name, "err", err)
	}

	_, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   truncateRunes(text, maxMessageRunes),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// normalizeChatID keeps numeric chat IDs as int64 and other IDs as string.
// Params: configured chat ID value.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
