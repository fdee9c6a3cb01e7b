// Package channel holds polling ingress adapters that feed the pipeline.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mediarelay/internal/domain"
	"mediarelay/internal/metrics"
	"mediarelay/internal/pipeline"
)

const telegramPollTimeout = 30

// Sender runs one message through the pipeline.
type Sender interface {
	ProcessAndSend(ctx context.Context, req pipeline.Request, mode domain.DeliveryMode) (*pipeline.Result, error)
}

// botAPI is the subset of *tgbotapi.BotAPI the ingress uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs; empty allows everyone
	Debug     bool
	Target    domain.DeliveryTarget // inbox that receives Telegram traffic
	Pipeline  Sender
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Telegram polls the Bot API and relays every message into one Chatwoot
// inbox. Each Telegram chat maps to one conversation for the life of the
// process.
type Telegram struct {
	token     string
	debug     bool
	allowFrom []int64
	target    domain.DeliveryTarget
	pipeline  Sender
	metrics   *metrics.Metrics

	bot    botAPI
	logger *slog.Logger

	mu            sync.Mutex
	conversations map[int64]domain.ID
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:         cfg.Token,
		debug:         cfg.Debug,
		allowFrom:     allowed,
		target:        cfg.Target,
		pipeline:      cfg.Pipeline,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.With(slog.String("component", "telegram")),
		conversations: make(map[int64]domain.ID),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return fmt.Errorf("telegram bot init: %w", err)
		}
		bot.Debug = t.debug
		t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
		t.bot = bot
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram ingress stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", msg.From.ID, "username", msg.From.UserName)
		t.reply(chatID, "⛔ Usuário não autorizado.")
		return
	}
	if msg.IsCommand() {
		if msg.Command() == "start" {
			t.reply(chatID, "👋 Olá! Envie texto, áudio, imagem, documento, vídeo ou localização e um atendente responderá em breve.")
		}
		return
	}

	req, err := t.toRequest(msg)
	if err != nil {
		t.logger.Warn("telegram message not relayed", "chat_id", chatID, "error", err)
		t.reply(chatID, "Não foi possível processar esta mensagem.")
		return
	}
	if req.MessageType == "" {
		return
	}
	t.metrics.Ingress("telegram", req.MessageType)
	t.logger.Info("telegram message received", "chat_id", chatID, "kind", req.MessageType)

	t.relay(ctx, chatID, req)
}

// relay appends to the chat's conversation when one is known and opens a
// new one otherwise. A failed append forgets the mapping.
func (t *Telegram) relay(ctx context.Context, chatID int64, req pipeline.Request) {
	target := t.target
	target.SourceID = "telegram:" + strconv.FormatInt(chatID, 10)
	mode := domain.DeliveryCreate
	if id, ok := t.conversation(chatID); ok {
		target.ConversationID = id
		mode = domain.DeliveryAppend
	}
	req.Chatwoot = &target

	res, err := t.pipeline.ProcessAndSend(ctx, req, mode)
	if err != nil {
		t.logger.Warn("telegram relay failed", "chat_id", chatID, "error", err)
		t.reply(chatID, "Não foi possível processar esta mensagem.")
		return
	}

	switch {
	case res.Delivery.Sent && mode == domain.DeliveryCreate:
		t.remember(chatID, res.Delivery.ConversationID)
	case !res.Delivery.Sent && mode == domain.DeliveryAppend:
		t.forget(chatID)
	}
}

// toRequest maps a Telegram message to a pipeline request. Unsupported
// message types yield an empty MessageType.
func (t *Telegram) toRequest(msg *tgbotapi.Message) (pipeline.Request, error) {
	var (
		req    pipeline.Request
		fileID string
	)
	switch {
	case msg.Location != nil:
		req.MessageType = string(domain.KindLocation)
		req.Latitude = domain.FlexString(strconv.FormatFloat(msg.Location.Latitude, 'f', -1, 64))
		req.Longitude = domain.FlexString(strconv.FormatFloat(msg.Location.Longitude, 'f', -1, 64))
		return req, nil
	case msg.Voice != nil:
		req.MessageType, fileID, req.ContentType = string(domain.KindAudio), msg.Voice.FileID, msg.Voice.MimeType
	case msg.Audio != nil:
		req.MessageType, fileID, req.ContentType = string(domain.KindAudio), msg.Audio.FileID, msg.Audio.MimeType
	case len(msg.Photo) > 0:
		// sizes are ordered smallest first
		req.MessageType, fileID = string(domain.KindImage), msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		req.MessageType, fileID, req.ContentType = string(domain.KindDocument), msg.Document.FileID, msg.Document.MimeType
	case msg.Video != nil:
		req.MessageType, fileID, req.ContentType = string(domain.KindVideo), msg.Video.FileID, msg.Video.MimeType
	case msg.VideoNote != nil:
		req.MessageType, fileID = string(domain.KindVideo), msg.VideoNote.FileID
	case strings.TrimSpace(msg.Text) != "":
		req.MessageType, req.TextContent = string(domain.KindText), msg.Text
		return req, nil
	default:
		return req, nil
	}

	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return req, fmt.Errorf("resolve telegram file: %w", err)
	}
	req.SourceURL = url
	return req, nil
}

func (t *Telegram) conversation(chatID int64) (domain.ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.conversations[chatID]
	return id, ok
}

func (t *Telegram) remember(chatID int64, id domain.ID) {
	t.mu.Lock()
	t.conversations[chatID] = id
	t.mu.Unlock()
}

func (t *Telegram) forget(chatID int64) {
	t.mu.Lock()
	delete(t.conversations, chatID)
	t.mu.Unlock()
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Warn("telegram reply failed", "chat_id", chatID, "error", err)
	}
}
