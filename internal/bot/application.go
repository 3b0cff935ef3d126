// Package bot wraps the Telegram Bot API behind a small application core and
// implements the campus navigator on top of it.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/navigator-bot/internal/config"
	"gitlab.com/yelinaung/navigator-bot/internal/logger"
	"gitlab.com/yelinaung/navigator-bot/internal/media"
	appmodels "gitlab.com/yelinaung/navigator-bot/internal/models"
	"gitlab.com/yelinaung/navigator-bot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pollTimeout is the long-polling timeout passed to getUpdates.
const pollTimeout = time.Minute

// MessageHandler handles an incoming message.
type MessageHandler func(ctx context.Context, msg *models.Message)

// CallbackHandler handles an inline keyboard callback query.
type CallbackHandler func(ctx context.Context, query *models.CallbackQuery)

// UserRegistrar stores the users the bot has seen.
type UserRegistrar interface {
	UpsertUser(ctx context.Context, user *appmodels.User) error
}

type commandRoute struct {
	commands []string
	handler  MessageHandler
}

type callbackRoute struct {
	prefix  string
	handler CallbackHandler
}

// Application is the bot core: it owns the Telegram client, routes updates
// to registered handlers and exposes simplified send methods.
type Application struct {
	cfg        *config.Config
	bot        *bot.Bot
	api        TelegramAPI
	users      UserRegistrar
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	httpClient *http.Client
	mediaDir   string

	mu             sync.RWMutex
	username       string
	commandRoutes  []commandRoute
	callbackRoutes []callbackRoute
}

// Option configures an Application.
type Option func(*Application)

// WithUserRegistrar upserts every user that sends an update.
func WithUserRegistrar(users UserRegistrar) Option {
	return func(a *Application) { a.users = users }
}

// WithMetrics records update and send metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Application) { a.metrics = m }
}

// WithHTTPClient overrides the HTTP client used for the Bot API.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Application) { a.httpClient = c }
}

// New creates the Telegram client from cfg and wires the dispatcher.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	a := newApplication(cfg, nil, opts...)

	httpClient := a.httpClient
	if httpClient == nil {
		httpClient = telemetry.HTTPClient()
	}

	tg, err := bot.New(cfg.TelegramBotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
		bot.WithMiddlewares(a.middleware),
		bot.WithDefaultHandler(a.route),
		bot.WithErrorsHandler(func(err error) {
			logger.Log.Error().Err(err).Msg("Telegram polling error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	a.bot = tg
	a.api = tg
	return a, nil
}

// newApplication builds an Application around api without network access.
func newApplication(cfg *config.Config, api TelegramAPI, opts ...Option) *Application {
	a := &Application{
		cfg:      cfg,
		api:      api,
		tracer:   telemetry.Tracer(),
		mediaDir: cfg.MediaDir,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drops pending updates when configured and long-polls until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if a.bot == nil {
		return errors.New("telegram client not initialized")
	}

	if me, err := a.bot.GetMe(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to fetch bot username")
	} else {
		a.setUsername(me.Username)
	}

	if a.cfg.SkipPendingUpdates {
		if _, err := a.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			return fmt.Errorf("failed to drop pending updates: %w", err)
		}
	}

	logger.Log.Info().Msg("Bot started polling")
	a.bot.Start(ctx)
	logger.Log.Info().Msg("Bot stopped polling")
	return nil
}

func (a *Application) setUsername(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.username = username
}

// AddCommandHandler subscribes h to any of commands, given without the slash.
// An empty list subscribes h to every message. Routes are tried in
// registration order and the first match wins.
func (a *Application) AddCommandHandler(commands []string, h MessageHandler) {
	normalized := make([]string, 0, len(commands))
	for _, c := range commands {
		c = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "/"))
		if c != "" {
			normalized = append(normalized, c)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.commandRoutes = append(a.commandRoutes, commandRoute{commands: normalized, handler: h})
}

// AddInlineKeyboardHandler subscribes h to every callback query.
func (a *Application) AddInlineKeyboardHandler(h CallbackHandler) {
	a.AddCallbackPrefixHandler("", h)
}

// AddCallbackPrefixHandler subscribes h to callback queries whose data starts
// with prefix.
func (a *Application) AddCallbackPrefixHandler(prefix string, h CallbackHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbackRoutes = append(a.callbackRoutes, callbackRoute{prefix: prefix, handler: h})
}

// dispatch runs one update through the middleware and the router.
func (a *Application) dispatch(ctx context.Context, update *models.Update) {
	a.middleware(a.route)(ctx, a.bot, update)
}

// middleware drops updates without a sender, registers the user and
// instruments the handler.
func (a *Application) middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
		from := updateSender(update)
		if from == nil {
			return
		}

		kind := updateKind(update)
		logUserAction(from, update)

		if err := a.registerUser(ctx, from); err != nil {
			logger.Log.Error().
				Str("user", logger.HashUserID(from.ID)).
				Err(err).
				Msg("Failed to register user")
		}

		ctx, span := a.tracer.Start(ctx, "telegram."+kind, trace.WithAttributes(
			attribute.String("update.kind", kind),
			attribute.String("user.hash", logger.HashUserID(from.ID)),
		))
		start := time.Now()
		a.metrics.RecordUpdate(ctx, kind)

		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Str("kind", kind).
					Msg("Handler panicked")
				span.SetStatus(codes.Error, "handler panic")
			}
			a.metrics.RecordHandler(ctx, kind, time.Since(start))
			span.End()
		}()

		next(ctx, tgBot, update)
	}
}

func (a *Application) registerUser(ctx context.Context, from *models.User) error {
	if a.users == nil {
		return nil
	}
	err := a.users.UpsertUser(ctx, &appmodels.User{
		ID:           from.ID,
		Username:     from.Username,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// route is the default handler: it picks the first matching route.
func (a *Application) route(ctx context.Context, _ *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		a.routeMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		a.routeCallback(ctx, update.CallbackQuery)
	}
}

func (a *Application) routeMessage(ctx context.Context, msg *models.Message) {
	name, mention, isCommand := parseCommand(msg.Text)

	a.mu.RLock()
	username := a.username
	routes := a.commandRoutes
	a.mu.RUnlock()

	if isCommand && mention != "" && username != "" && !strings.EqualFold(mention, username) {
		return
	}

	for _, r := range routes {
		if len(r.commands) == 0 {
			r.handler(ctx, msg)
			return
		}
		if !isCommand {
			continue
		}
		for _, c := range r.commands {
			if c == name {
				r.handler(ctx, msg)
				return
			}
		}
	}

	logger.Log.Debug().Str("chat", logger.HashChatID(msg.Chat.ID)).Msg("No handler matched message")
}

func (a *Application) routeCallback(ctx context.Context, query *models.CallbackQuery) {
	a.mu.RLock()
	routes := a.callbackRoutes
	a.mu.RUnlock()

	for _, r := range routes {
		if strings.HasPrefix(query.Data, r.prefix) {
			r.handler(ctx, query)
			return
		}
	}

	// Unanswered queries leave a spinner on the client.
	if err := a.AnswerCallback(ctx, query.ID, "", false); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to answer unmatched callback")
	}
}

// parseCommand splits "/name@mention args" into its lowercased name and
// mention. ok is false for text that is not a command.
func parseCommand(text string) (name, mention string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	token := text[1:]
	if i := strings.IndexFunc(token, isSpace); i >= 0 {
		token = token[:i]
	}

	name, mention, _ = strings.Cut(token, "@")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), mention, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// CommandArgs returns the text after the command token, trimmed.
func CommandArgs(text string) string {
	if _, _, ok := parseCommand(text); !ok {
		return strings.TrimSpace(text)
	}
	i := strings.IndexFunc(text, isSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

// IsPrivateMessage reports whether chatType is a one-to-one chat.
func IsPrivateMessage(chatType string) bool {
	return chatType == "private"
}

// updateSender returns the user behind a message or callback query.
func updateSender(update *models.Update) *models.User {
	switch {
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	case update.EditedMessage != nil:
		return update.EditedMessage.From
	}
	return nil
}

func updateKind(update *models.Update) string {
	switch {
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.EditedMessage != nil:
		return "edited_message"
	}
	return "other"
}

// logUserAction logs the user's input without exposing ids or text.
func logUserAction(from *models.User, update *models.Update) {
	switch {
	case update.Message != nil:
		msg := update.Message
		event := logger.Log.Info().
			Str("user", logger.HashUserID(from.ID)).
			Str("chat", logger.HashChatID(msg.Chat.ID)).
			Str("chat_type", string(msg.Chat.Type))

		if msg.Text != "" {
			event = event.Str("text", logger.SanitizeText(msg.Text))
		}
		if len(msg.Photo) > 0 {
			event = event.Str("type", "photo")
		}

		event.Msg("User input")

	case update.CallbackQuery != nil:
		logger.Log.Info().
			Str("user", logger.HashUserID(from.ID)).
			Str("data", update.CallbackQuery.Data).
			Msg("Callback query")

	case update.EditedMessage != nil:
		logger.Log.Debug().
			Str("user", logger.HashUserID(from.ID)).
			Msg("Edited message ignored")
	}
}

// SendMessage sends text to chatID. Markdown is the default parse mode.
func (a *Application) SendMessage(ctx context.Context, chatID int64, text string, opts ...SendOption) error {
	o := newSendOptions(opts)
	_, err := a.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:              chatID,
		MessageThreadID:     o.threadID,
		Text:                text,
		ParseMode:           o.parseMode,
		LinkPreviewOptions:  o.linkPreview(),
		DisableNotification: o.disableNotification,
		ProtectContent:      o.protectContent,
		ReplyParameters:     o.replyParameters(),
		ReplyMarkup:         o.replyMarkup,
	})
	a.metrics.RecordSent(ctx, "sendMessage", err)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendMessageWithPhoto sends photo with text as its caption. photo is an
// absolute path, a path under the media directory, an http(s) URL or a
// Telegram file id.
func (a *Application) SendMessageWithPhoto(ctx context.Context, chatID int64, photo, text string, opts ...SendOption) error {
	o := newSendOptions(opts)
	input, closer, err := media.OpenInputFile(photo, a.mediaDir)
	if err != nil {
		return fmt.Errorf("failed to open photo: %w", err)
	}
	defer closer.Close()

	return a.sendPhoto(ctx, chatID, input, text, o)
}

// SendPhotoBytes uploads a generated image.
func (a *Application) SendPhotoBytes(ctx context.Context, chatID int64, filename string, data []byte, caption string, opts ...SendOption) error {
	if len(data) == 0 {
		return errors.New("photo data is empty")
	}
	o := newSendOptions(opts)
	return a.sendPhoto(ctx, chatID, &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)}, caption, o)
}

func (a *Application) sendPhoto(ctx context.Context, chatID int64, photo models.InputFile, caption string, o sendOptions) error {
	_, err := a.api.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:              chatID,
		MessageThreadID:     o.threadID,
		Photo:               photo,
		Caption:             caption,
		ParseMode:           o.parseMode,
		DisableNotification: o.disableNotification,
		ProtectContent:      o.protectContent,
		ReplyParameters:     o.replyParameters(),
		ReplyMarkup:         o.replyMarkup,
	})
	a.metrics.RecordSent(ctx, "sendPhoto", err)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	return nil
}

// SendMultiplePictures sends refs as albums of at most ten photos. A trailing
// single photo is sent on its own since albums need at least two items. The
// caption set by WithCaption goes on the first album. Sending stops at the
// first failure, which is logged and returned.
func (a *Application) SendMultiplePictures(ctx context.Context, chatID int64, refs []string, opts ...SendOption) error {
	if len(refs) == 0 {
		return errors.New("no pictures to send")
	}

	o := newSendOptions(opts)
	for i, chunk := range media.Chunk(refs, media.MaxGroupSize) {
		caption := ""
		if i == 0 {
			caption = o.caption
		}

		var err error
		if len(chunk) == 1 {
			err = a.SendMessageWithPhoto(ctx, chatID, chunk[0], caption, opts...)
		} else {
			err = a.sendMediaGroup(ctx, chatID, chunk, caption, o)
		}
		if err != nil {
			logger.Log.Error().Err(err).
				Str("chat", logger.HashChatID(chatID)).
				Int("pictures", len(refs)).
				Int("chunk", i).
				Msg("Failed to send pictures")
			return err
		}
	}
	return nil
}

func (a *Application) sendMediaGroup(ctx context.Context, chatID int64, refs []string, caption string, o sendOptions) error {
	group, closer, err := media.BuildPhotoGroup(refs, a.mediaDir, caption, o.parseMode)
	if err != nil {
		return fmt.Errorf("failed to build media group: %w", err)
	}
	defer closer.Close()

	_, err = a.api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID:              chatID,
		MessageThreadID:     o.threadID,
		Media:               group,
		DisableNotification: o.disableNotification,
		ProtectContent:      o.protectContent,
		ReplyParameters:     o.replyParameters(),
	})
	a.metrics.RecordSent(ctx, "sendMediaGroup", err)
	if err != nil {
		return fmt.Errorf("failed to send media group: %w", err)
	}
	return nil
}

// SendLocation sends a map pin.
func (a *Application) SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, opts ...SendOption) error {
	o := newSendOptions(opts)
	_, err := a.api.SendLocation(ctx, &bot.SendLocationParams{
		ChatID:              chatID,
		MessageThreadID:     o.threadID,
		Latitude:            latitude,
		Longitude:           longitude,
		DisableNotification: o.disableNotification,
		ProtectContent:      o.protectContent,
		ReplyParameters:     o.replyParameters(),
		ReplyMarkup:         o.replyMarkup,
	})
	a.metrics.RecordSent(ctx, "sendLocation", err)
	if err != nil {
		return fmt.Errorf("failed to send location: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally with a toast.
func (a *Application) AnswerCallback(ctx context.Context, queryID, text string, showAlert bool) error {
	_, err := a.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	a.metrics.RecordSent(ctx, "answerCallbackQuery", err)
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}
