package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/navigator-bot/internal/config"
	"gitlab.com/yelinaung/navigator-bot/internal/gemini"
	"gitlab.com/yelinaung/navigator-bot/internal/i18n"
	"gitlab.com/yelinaung/navigator-bot/internal/locations"
	"gitlab.com/yelinaung/navigator-bot/internal/logger"
	"gitlab.com/yelinaung/navigator-bot/internal/media"
	appmodels "gitlab.com/yelinaung/navigator-bot/internal/models"
	"gitlab.com/yelinaung/navigator-bot/internal/points"
	"gitlab.com/yelinaung/navigator-bot/internal/repository"
	"gitlab.com/yelinaung/navigator-bot/internal/state"
)

// SuggestionThreshold is the minimum confidence for a "did you mean" reply.
const SuggestionThreshold = 0.6

// Callback data prefixes.
const (
	callbackLocation = "loc:"
	callbackPoint    = "pt:"
	callbackMap      = "map:"
	callbackPhotos   = "photos:"
)

// PointGetter loads a single point.
type PointGetter interface {
	GetByID(ctx context.Context, id int) (*appmodels.Point, error)
}

// RequestLog records location lookups and aggregates them.
type RequestLog interface {
	Record(ctx context.Context, userID int64, location string) error
	CountByLocation(ctx context.Context, since time.Time) ([]appmodels.LocationStat, error)
}

// UserCounter counts known users.
type UserCounter interface {
	CountUsers(ctx context.Context) (int64, error)
}

// LocationSuggester guesses a location from free text.
type LocationSuggester interface {
	SuggestLocation(ctx context.Context, query string, labels []string) (*gemini.LocationSuggestion, error)
}

// NavigatorDeps are the collaborators of a Navigator. Suggester is optional.
type NavigatorDeps struct {
	Config     *config.Config
	Translator *i18n.Translator
	States     *state.Manager
	Points     points.Lister
	PointByID  PointGetter
	Requests   RequestLog
	Users      UserCounter
	Suggester  LocationSuggester
}

// Navigator implements the campus navigation dialogue.
type Navigator struct {
	app       *Application
	cfg       *config.Config
	tr        *i18n.Translator
	states    *state.Manager
	points    points.Lister
	pointByID PointGetter
	requests  RequestLog
	users     UserCounter
	suggester LocationSuggester
	now       func() time.Time
}

// NewNavigator creates a Navigator sending through app.
func NewNavigator(app *Application, deps NavigatorDeps) *Navigator {
	return &Navigator{
		app:       app,
		cfg:       deps.Config,
		tr:        deps.Translator,
		states:    deps.States,
		points:    deps.Points,
		pointByID: deps.PointByID,
		requests:  deps.Requests,
		users:     deps.Users,
		suggester: deps.Suggester,
		now:       time.Now,
	}
}

// Register subscribes the navigator's handlers. The free-text handler is
// registered last so commands take precedence.
func (n *Navigator) Register() {
	n.app.AddCommandHandler([]string{"start"}, n.handleStart)
	n.app.AddCommandHandler([]string{"help"}, n.handleHelp)
	n.app.AddCommandHandler([]string{"locations", "menu"}, n.handleLocations)
	n.app.AddCommandHandler([]string{"cancel"}, n.handleCancel)
	n.app.AddCommandHandler([]string{"stats"}, n.handleStats)
	n.app.AddCommandHandler(nil, n.handleText)

	n.app.AddCallbackPrefixHandler(callbackLocation, n.handleLocationCallback)
	n.app.AddCallbackPrefixHandler(callbackPoint, n.handlePointCallback)
	n.app.AddCallbackPrefixHandler(callbackMap, n.handleMapCallback)
	n.app.AddCallbackPrefixHandler(callbackPhotos, n.handlePhotosCallback)
}

func (n *Navigator) lang(from *models.User) string {
	if from == nil {
		return n.tr.DefaultLanguage()
	}
	return n.tr.Language(from.LanguageCode)
}

func (n *Navigator) t(lang, id string, data map[string]any) string {
	return n.tr.T(lang, id, data)
}

// locationKeyboard lays out the catalog labels two per row.
func locationKeyboard(lang string) *models.ReplyKeyboardMarkup {
	labels := locations.Labels(lang)
	rows := make([][]models.KeyboardButton, 0, (len(labels)+1)/2)
	for i := 0; i < len(labels); i += 2 {
		row := []models.KeyboardButton{{Text: labels[i]}}
		if i+1 < len(labels) {
			row = append(row, models.KeyboardButton{Text: labels[i+1]})
		}
		rows = append(rows, row)
	}
	return &models.ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}

func (n *Navigator) send(ctx context.Context, chatID int64, text string, opts ...SendOption) {
	if err := n.app.SendMessage(ctx, chatID, text, opts...); err != nil {
		logger.Log.Error().Err(err).Str("chat", logger.HashChatID(chatID)).Msg("Failed to send reply")
	}
}

func (n *Navigator) sendError(ctx context.Context, chatID int64, lang string) {
	n.send(ctx, chatID, n.t(lang, "error_generic", nil), WithParseMode(""))
}

func (n *Navigator) setStep(ctx context.Context, userID int64, step string) {
	if err := n.states.SetStep(ctx, userID, step); err != nil {
		logger.Log.Warn().Err(err).Str("user", logger.HashUserID(userID)).Msg("Failed to save state")
	}
}

func (n *Navigator) handleStart(ctx context.Context, msg *models.Message) {
	lang := n.lang(msg.From)
	n.setStep(ctx, msg.From.ID, appmodels.StepAwaitingLocation)

	text := n.t(lang, "start", map[string]any{"Name": msg.From.FirstName})
	n.send(ctx, msg.Chat.ID, text, WithParseMode(""), WithReplyMarkup(locationKeyboard(lang)))
}

func (n *Navigator) handleHelp(ctx context.Context, msg *models.Message) {
	n.send(ctx, msg.Chat.ID, n.t(n.lang(msg.From), "help", nil), WithParseMode(""))
}

func (n *Navigator) handleLocations(ctx context.Context, msg *models.Message) {
	lang := n.lang(msg.From)
	n.setStep(ctx, msg.From.ID, appmodels.StepAwaitingLocation)
	n.send(ctx, msg.Chat.ID, n.t(lang, "choose_location", nil), WithParseMode(""), WithReplyMarkup(locationKeyboard(lang)))
}

func (n *Navigator) handleCancel(ctx context.Context, msg *models.Message) {
	lang := n.lang(msg.From)
	if err := n.states.Reset(ctx, msg.From.ID); err != nil {
		logger.Log.Warn().Err(err).Str("user", logger.HashUserID(msg.From.ID)).Msg("Failed to reset state")
	}
	n.send(ctx, msg.Chat.ID, n.t(lang, "cancelled", nil), WithParseMode(""),
		WithReplyMarkup(&models.ReplyKeyboardRemove{RemoveKeyboard: true}))
}

func (n *Navigator) handleStats(ctx context.Context, msg *models.Message) {
	lang := n.lang(msg.From)
	chatID := msg.Chat.ID

	if !n.cfg.IsAdmin(msg.From.ID, msg.From.Username) {
		n.send(ctx, chatID, n.t(lang, "stats_forbidden", nil), WithParseMode(""))
		return
	}

	now := n.now()
	since := now.AddDate(0, 0, -statsPeriodDays)
	stats, err := n.requests.CountByLocation(ctx, since)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to load location stats")
		n.sendError(ctx, chatID, lang)
		return
	}

	days := map[string]any{"Days": statsPeriodDays}
	if len(stats) == 0 {
		n.send(ctx, chatID, n.t(lang, "stats_empty", days), WithParseMode(""))
		return
	}

	users, err := n.users.CountUsers(ctx)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to count users")
	}

	chart, err := GenerateUsageChart(stats, n.t(lang, "stats_title", nil), lang)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to generate usage chart")
		n.sendError(ctx, chatID, lang)
		return
	}

	caption := n.t(lang, "stats_caption", map[string]any{"Days": statsPeriodDays, "Users": users})
	if err := n.app.SendPhotoBytes(ctx, chatID, chartFilename(now), chart, caption, WithParseMode("")); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send usage chart")
	}
}

// handleText resolves free text to a location. Only private chats are
// answered so the bot stays quiet in groups.
func (n *Navigator) handleText(ctx context.Context, msg *models.Message) {
	if !IsPrivateMessage(string(msg.Chat.Type)) || msg.From == nil {
		return
	}

	lang := n.lang(msg.From)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		n.handleHelp(ctx, msg)
		return
	}

	if loc, ok := locations.Resolve(text); ok {
		n.showLocation(ctx, msg.Chat.ID, msg.From.ID, lang, loc)
		return
	}

	if loc, ok := n.suggest(ctx, text, lang); ok {
		label := loc.DisplayLabel(lang)
		keyboard := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: label, CallbackData: callbackLocation + loc.Value}},
		}}
		n.send(ctx, msg.Chat.ID, n.t(lang, "did_you_mean", map[string]any{"Label": label}),
			WithParseMode(""), WithReplyMarkup(keyboard))
		return
	}

	n.setStep(ctx, msg.From.ID, appmodels.StepAwaitingLocation)
	n.send(ctx, msg.Chat.ID, n.t(lang, "unknown_location", nil), WithParseMode(""), WithReplyMarkup(locationKeyboard(lang)))
}

// suggest asks the optional suggester for a confident match.
func (n *Navigator) suggest(ctx context.Context, text, lang string) (appmodels.Location, bool) {
	if n.suggester == nil {
		return appmodels.Location{}, false
	}

	s, err := n.suggester.SuggestLocation(ctx, text, locations.Labels(lang))
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Location suggestion failed")
		return appmodels.Location{}, false
	}
	if s.Confidence < SuggestionThreshold {
		return appmodels.Location{}, false
	}
	return locations.ResolveLabel(s.Location)
}

// showLocation records the lookup and lists the location's points.
func (n *Navigator) showLocation(ctx context.Context, chatID, userID int64, lang string, loc appmodels.Location) {
	if err := n.requests.Record(ctx, userID, loc.Value); err != nil {
		logger.Log.Warn().Err(err).Str("location", loc.Value).Msg("Failed to record location request")
	}
	if err := n.states.SetLocation(ctx, userID, loc.Value); err != nil {
		logger.Log.Warn().Err(err).Str("user", logger.HashUserID(userID)).Msg("Failed to save state")
	}

	pts, err := n.points.GetPointsList(ctx, loc.Value)
	if err != nil {
		logger.Log.Error().Err(err).Str("location", loc.Value).Msg("Failed to load points")
		n.sendError(ctx, chatID, lang)
		return
	}

	label := loc.DisplayLabel(lang)
	if len(pts) == 0 {
		n.send(ctx, chatID, n.t(lang, "no_points", map[string]any{"Label": label}), WithParseMode(""))
		return
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(pts)+1)
	hasPhotos := false
	for _, p := range pts {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: p.Title, CallbackData: callbackPoint + strconv.Itoa(p.ID)},
		})
		hasPhotos = hasPhotos || p.HasPhoto()
	}
	if hasPhotos {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: n.t(lang, "show_photos", nil), CallbackData: callbackPhotos + loc.Value},
		})
	}

	header := n.t(lang, "points_header", map[string]any{"Label": escapeMarkdown(label), "Count": len(pts)})
	n.send(ctx, chatID, header, WithReplyMarkup(&models.InlineKeyboardMarkup{InlineKeyboard: rows}))
}

// callbackChatID returns the chat the query's message lives in, falling back
// to the sender's private chat.
func callbackChatID(query *models.CallbackQuery) int64 {
	if m := query.Message.Message; m != nil {
		return m.Chat.ID
	}
	if m := query.Message.InaccessibleMessage; m != nil {
		return m.Chat.ID
	}
	return query.From.ID
}

func (n *Navigator) answer(ctx context.Context, query *models.CallbackQuery) {
	if err := n.app.AnswerCallback(ctx, query.ID, "", false); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to answer callback query")
	}
}

func (n *Navigator) handleLocationCallback(ctx context.Context, query *models.CallbackQuery) {
	n.answer(ctx, query)
	lang := n.lang(&query.From)
	chatID := callbackChatID(query)

	loc, ok := locations.ByValue(strings.TrimPrefix(query.Data, callbackLocation))
	if !ok {
		n.send(ctx, chatID, n.t(lang, "unknown_location", nil), WithParseMode(""), WithReplyMarkup(locationKeyboard(lang)))
		return
	}
	n.showLocation(ctx, chatID, query.From.ID, lang, loc)
}

// loadPoint parses the id after prefix and loads the point, replying with a
// localized failure when it cannot.
func (n *Navigator) loadPoint(ctx context.Context, query *models.CallbackQuery, prefix, lang string) (*appmodels.Point, bool) {
	chatID := callbackChatID(query)

	id, err := strconv.Atoi(strings.TrimPrefix(query.Data, prefix))
	if err != nil {
		n.send(ctx, chatID, n.t(lang, "point_not_found", nil), WithParseMode(""))
		return nil, false
	}

	p, err := n.pointByID.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		n.send(ctx, chatID, n.t(lang, "point_not_found", nil), WithParseMode(""))
		return nil, false
	}
	if err != nil {
		logger.Log.Error().Err(err).Int("point_id", id).Msg("Failed to load point")
		n.sendError(ctx, chatID, lang)
		return nil, false
	}
	return p, true
}

func (n *Navigator) handlePointCallback(ctx context.Context, query *models.CallbackQuery) {
	n.answer(ctx, query)
	lang := n.lang(&query.From)
	chatID := callbackChatID(query)

	p, ok := n.loadPoint(ctx, query, callbackPoint, lang)
	if !ok {
		return
	}

	caption := pointCaption(p)
	opts := []SendOption{}
	if p.HasCoordinates() {
		opts = append(opts, WithReplyMarkup(&models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: n.t(lang, "show_map", nil), CallbackData: callbackMap + strconv.Itoa(p.ID)}},
		}}))
	}

	if p.HasPhoto() {
		err := n.app.SendMessageWithPhoto(ctx, chatID, p.PhotoPath, caption, opts...)
		if err == nil {
			return
		}
		logEvent := logger.Log.Error()
		if errors.Is(err, media.ErrPhotoNotFound) {
			logEvent = logger.Log.Warn()
		}
		logEvent.Err(err).Int("point_id", p.ID).Msg("Failed to send point photo, sending text")
	}

	n.send(ctx, chatID, caption, opts...)
}

func (n *Navigator) handleMapCallback(ctx context.Context, query *models.CallbackQuery) {
	n.answer(ctx, query)
	lang := n.lang(&query.From)
	chatID := callbackChatID(query)

	p, ok := n.loadPoint(ctx, query, callbackMap, lang)
	if !ok {
		return
	}

	if !p.HasCoordinates() {
		n.send(ctx, chatID, n.t(lang, "no_coordinates", nil), WithParseMode(""))
		return
	}

	lat := p.Latitude.Decimal.InexactFloat64()
	lon := p.Longitude.Decimal.InexactFloat64()
	if err := n.app.SendLocation(ctx, chatID, lat, lon); err != nil {
		logger.Log.Error().Err(err).Int("point_id", p.ID).Msg("Failed to send point location")
		n.sendError(ctx, chatID, lang)
	}
}

func (n *Navigator) handlePhotosCallback(ctx context.Context, query *models.CallbackQuery) {
	n.answer(ctx, query)
	lang := n.lang(&query.From)
	chatID := callbackChatID(query)

	loc, ok := locations.ByValue(strings.TrimPrefix(query.Data, callbackPhotos))
	if !ok {
		n.send(ctx, chatID, n.t(lang, "no_photos", nil), WithParseMode(""))
		return
	}

	pts, err := n.points.GetPointsList(ctx, loc.Value)
	if err != nil {
		logger.Log.Error().Err(err).Str("location", loc.Value).Msg("Failed to load points")
		n.sendError(ctx, chatID, lang)
		return
	}

	refs := make([]string, 0, len(pts))
	for _, p := range pts {
		if p.HasPhoto() {
			refs = append(refs, p.PhotoPath)
		}
	}

	refs, missing := media.Available(refs, n.cfg.MediaDir)
	if len(missing) > 0 {
		logger.Log.Warn().
			Str("location", loc.Value).
			Strs("missing", missing).
			Msg("Skipping photos missing from the media directory")
	}
	if len(refs) == 0 {
		n.send(ctx, chatID, n.t(lang, "no_photos", nil), WithParseMode(""))
		return
	}

	caption := "*" + escapeMarkdown(loc.DisplayLabel(lang)) + "*"
	if err := n.app.SendMultiplePictures(ctx, chatID, refs, WithCaption(caption)); err != nil {
		n.sendError(ctx, chatID, lang)
	}
}

// pointCaption formats a point as a Markdown caption.
func pointCaption(p *appmodels.Point) string {
	caption := "*" + escapeMarkdown(p.Title) + "*"
	if desc := strings.TrimSpace(p.Description); desc != "" {
		caption = fmt.Sprintf("%s\n\n%s", caption, escapeMarkdown(desc))
	}
	return caption
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escapeMarkdown escapes the characters legacy Markdown treats as entities.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
