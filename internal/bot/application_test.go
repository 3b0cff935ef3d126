package bot

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/navigator-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/navigator-bot/internal/media"
	"gitlab.com/yelinaung/navigator-bot/internal/telemetry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text        string
		wantName    string
		wantMention string
		wantOK      bool
	}{
		{"/start", "start", "", true},
		{"/start payload", "start", "", true},
		{"/start@NavBot payload", "start", "NavBot", true},
		{"/Help", "help", "", true},
		{"/stats\nextra", "stats", "", true},
		{"hello", "", "", false},
		{"", "", "", false},
		{"/", "", "", false},
		{"/@NavBot", "", "", false},
		{" /start", "", "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.text), func(t *testing.T) {
			t.Parallel()
			name, mention, ok := parseCommand(tt.text)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantName, name)
			require.Equal(t, tt.wantMention, mention)
		})
	}
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", CommandArgs("/start"))
	require.Equal(t, "abc def", CommandArgs("/start   abc def "))
	require.Equal(t, "x", CommandArgs("/start@NavBot x"))
	require.Equal(t, "plain text", CommandArgs(" plain text "))
}

func TestIsPrivateMessage(t *testing.T) {
	t.Parallel()

	require.True(t, IsPrivateMessage("private"))
	require.False(t, IsPrivateMessage("group"))
	require.False(t, IsPrivateMessage("supergroup"))
	require.False(t, IsPrivateMessage("channel"))
	require.False(t, IsPrivateMessage(""))
}

// recorder collects which handler saw which message.
type recorder struct {
	hits []string
}

func (r *recorder) message(name string) MessageHandler {
	return func(_ context.Context, msg *models.Message) {
		r.hits = append(r.hits, name+":"+msg.Text)
	}
}

func (r *recorder) callback(name string) CallbackHandler {
	return func(_ context.Context, q *models.CallbackQuery) {
		r.hits = append(r.hits, name+":"+q.Data)
	}
}

func TestCommandRouting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("routes commands and falls back to catch-all", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		rec := &recorder{}
		app.AddCommandHandler([]string{"start"}, rec.message("start"))
		app.AddCommandHandler([]string{"help", "/info"}, rec.message("help"))
		app.AddCommandHandler(nil, rec.message("any"))

		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/start"))
		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/info me"))
		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/HELP"))
		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/unknown"))
		app.dispatch(ctx, mocks.MessageUpdate(1, 2, "Корпус 1"))

		require.Equal(t, []string{
			"start:/start",
			"help:/info me",
			"help:/HELP",
			"any:/unknown",
			"any:Корпус 1",
		}, rec.hits)
	})

	t.Run("first registered match wins", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		rec := &recorder{}
		app.AddCommandHandler(nil, rec.message("any"))
		app.AddCommandHandler([]string{"start"}, rec.message("start"))

		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/start"))
		require.Equal(t, []string{"any:/start"}, rec.hits)
	})

	t.Run("plain text skips command routes", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		rec := &recorder{}
		app.AddCommandHandler([]string{"start"}, rec.message("start"))

		app.dispatch(ctx, mocks.MessageUpdate(1, 2, "start"))
		require.Empty(t, rec.hits)
	})

	t.Run("commands for another bot are ignored", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		app.setUsername("NavBot")
		rec := &recorder{}
		app.AddCommandHandler([]string{"start"}, rec.message("start"))
		app.AddCommandHandler(nil, rec.message("any"))

		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/start@OtherBot"))
		app.dispatch(ctx, mocks.CommandUpdate(1, 2, "/start@navbot"))
		require.Equal(t, []string{"start:/start@navbot"}, rec.hits)
	})
}

func TestCallbackRouting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("routes by prefix", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		rec := &recorder{}
		app.AddCallbackPrefixHandler("pt:", rec.callback("point"))
		app.AddInlineKeyboardHandler(rec.callback("any"))

		app.dispatch(ctx, mocks.CallbackQueryUpdate(1, 2, 3, "pt:7"))
		app.dispatch(ctx, mocks.CallbackQueryUpdate(1, 2, 3, "loc:street"))

		require.Equal(t, []string{"point:pt:7", "any:loc:street"}, rec.hits)
		require.Empty(t, mockBot.AnsweredCallbacks)
	})

	t.Run("answers unmatched queries", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		app.AddCallbackPrefixHandler("pt:", (&recorder{}).callback("point"))

		app.dispatch(ctx, mocks.CallbackQueryUpdate(1, 2, 3, "stale"))
		require.Len(t, mockBot.AnsweredCallbacks, 1)
		require.Equal(t, "callback-query-id", mockBot.AnsweredCallbacks[0].CallbackQueryID)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ignores updates without a sender", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{}
		app, _ := setupTestApp(t, WithUserRegistrar(users))
		rec := &recorder{}
		app.AddCommandHandler(nil, rec.message("any"))

		app.dispatch(ctx, mocks.NewUpdateBuilder().WithMessage(1, 2, "hi").WithoutSender().Build())
		app.dispatch(ctx, &models.Update{})

		require.Empty(t, rec.hits)
		require.Empty(t, users.upserted)
	})

	t.Run("registers the sender with language", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{}
		app, _ := setupTestApp(t, WithUserRegistrar(users))
		app.AddCommandHandler(nil, func(context.Context, *models.Message) {})

		app.dispatch(ctx, mocks.NewUpdateBuilder().WithMessage(1, 77, "hi").WithLanguage("en").Build())

		require.Len(t, users.upserted, 1)
		require.Equal(t, int64(77), users.upserted[0].ID)
		require.Equal(t, "testuser", users.upserted[0].Username)
		require.Equal(t, "en", users.upserted[0].LanguageCode)
	})

	t.Run("registration failure does not block handlers", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t, WithUserRegistrar(&fakeUsers{err: errBoom}))
		rec := &recorder{}
		app.AddCommandHandler(nil, rec.message("any"))

		app.dispatch(ctx, mocks.MessageUpdate(1, 2, "hi"))
		require.Equal(t, []string{"any:hi"}, rec.hits)
	})

	t.Run("recovers handler panics", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		app.AddCommandHandler(nil, func(context.Context, *models.Message) { panic("kaboom") })

		require.NotPanics(t, func() {
			app.dispatch(ctx, mocks.MessageUpdate(1, 2, "hi"))
		})
	})

	t.Run("records update metrics", func(t *testing.T) {
		t.Parallel()
		reader := sdkmetric.NewManualReader()
		metrics, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
		require.NoError(t, err)

		app, _ := setupTestApp(t, WithMetrics(metrics))
		app.AddCommandHandler(nil, func(context.Context, *models.Message) {})
		app.dispatch(ctx, mocks.MessageUpdate(1, 2, "hi"))
		app.dispatch(ctx, mocks.CallbackQueryUpdate(1, 2, 3, "x"))

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))

		var updates int64
		var sent int64
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					continue
				}
				for _, dp := range sum.DataPoints {
					switch m.Name {
					case "bot.updates":
						updates += dp.Value
					case "bot.messages.sent":
						sent += dp.Value
					}
				}
			}
		}
		require.Equal(t, int64(2), updates)
		// The unmatched callback is answered.
		require.Equal(t, int64(1), sent)
	})
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("defaults to markdown", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		require.NoError(t, app.SendMessage(ctx, 10, "*hi*"))

		msg := mockBot.LastSentMessage()
		require.Equal(t, int64(10), msg.ChatID)
		require.Equal(t, models.ParseModeMarkdownV1, msg.ParseMode)
		require.False(t, msg.PreviewDisabled)
		require.Zero(t, msg.ReplyToMessageID)
	})

	t.Run("applies every option", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		markup := &models.ForceReply{ForceReply: true}
		require.NoError(t, app.SendMessage(ctx, 10, "plain",
			WithParseMode(""),
			WithoutNotification(),
			WithProtectContent(),
			WithReplyTo(55),
			WithAllowSendingWithoutReply(),
			WithoutWebPagePreview(),
			WithReplyMarkup(markup),
			WithThreadID(9),
		))

		msg := mockBot.LastSentMessage()
		require.Equal(t, models.ParseMode(""), msg.ParseMode)
		require.True(t, msg.DisableNotification)
		require.True(t, msg.ProtectContent)
		require.Equal(t, 55, msg.ReplyToMessageID)
		require.True(t, msg.AllowWithoutReply)
		require.True(t, msg.PreviewDisabled)
		require.Same(t, markup, msg.ReplyMarkup)
		require.Equal(t, 9, msg.ThreadID)
	})

	t.Run("wraps api errors", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		mockBot.SendMessageError = errBoom
		err := app.SendMessage(ctx, 10, "x")
		require.ErrorIs(t, err, errBoom)
		require.ErrorContains(t, err, "failed to send message")
	})
}

func TestSendMessageWithPhoto(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("uploads files from the media dir", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		writeMedia(t, app.cfg, "street/gate.jpg")

		require.NoError(t, app.SendMessageWithPhoto(ctx, 10, "street/gate.jpg", "*Gate*"))

		photo := mockBot.LastSentPhoto()
		require.True(t, photo.Uploaded)
		require.Equal(t, "gate.jpg", photo.Photo)
		require.Equal(t, []byte("img:street/gate.jpg"), photo.Data)
		require.Equal(t, "*Gate*", photo.Caption)
		require.Equal(t, models.ParseModeMarkdownV1, photo.ParseMode)
	})

	t.Run("passes file ids and urls through", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)

		require.NoError(t, app.SendMessageWithPhoto(ctx, 10, "AgACAgIAAxkB", ""))
		require.NoError(t, app.SendMessageWithPhoto(ctx, 10, "https://example.com/a.jpg", ""))

		require.Equal(t, "AgACAgIAAxkB", mockBot.SentPhotos[0].Photo)
		require.Equal(t, "https://example.com/a.jpg", mockBot.SentPhotos[1].Photo)
		require.False(t, mockBot.SentPhotos[0].Uploaded)
	})

	t.Run("missing file sends nothing", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)

		err := app.SendMessageWithPhoto(ctx, 10, "nowhere/none.jpg", "")
		require.ErrorIs(t, err, media.ErrPhotoNotFound)
		require.Zero(t, mockBot.SentPhotoCount())
	})
}

func TestSendPhotoBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	app, mockBot := setupTestApp(t)
	require.Error(t, app.SendPhotoBytes(ctx, 10, "x.png", nil, ""))

	require.NoError(t, app.SendPhotoBytes(ctx, 10, "chart.png", []byte("png"), "caption", WithParseMode("")))
	photo := mockBot.LastSentPhoto()
	require.Equal(t, "chart.png", photo.Photo)
	require.Equal(t, []byte("png"), photo.Data)
	require.Equal(t, "caption", photo.Caption)
}

func fileIDs(n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = fmt.Sprintf("AgACAgIAAxkB%02d", i)
	}
	return refs
}

func TestSendMultiplePictures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name       string
		count      int
		wantGroups []int
		wantPhotos int
	}{
		{name: "single photo", count: 1, wantPhotos: 1},
		{name: "small album", count: 2, wantGroups: []int{2}},
		{name: "full album", count: 10, wantGroups: []int{10}},
		{name: "trailing single photo", count: 11, wantGroups: []int{10}, wantPhotos: 1},
		{name: "two albums", count: 12, wantGroups: []int{10, 2}},
		{name: "two albums and a photo", count: 21, wantGroups: []int{10, 10}, wantPhotos: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app, mockBot := setupTestApp(t)

			require.NoError(t, app.SendMultiplePictures(ctx, 10, fileIDs(tt.count), WithCaption("*Street*")))

			var sizes []int
			for _, g := range mockBot.SentMediaGroups {
				sizes = append(sizes, len(g.Media))
			}
			require.Equal(t, tt.wantGroups, sizes)
			require.Equal(t, tt.wantPhotos, mockBot.SentPhotoCount())

			if len(mockBot.SentMediaGroups) > 0 {
				require.Equal(t, "*Street*", mockBot.SentMediaGroups[0].Caption)
				for _, g := range mockBot.SentMediaGroups[1:] {
					require.Empty(t, g.Caption)
				}
			} else {
				require.Equal(t, "*Street*", mockBot.LastSentPhoto().Caption)
			}
		})
	}

	t.Run("uploads local files as attachments", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		writeMedia(t, app.cfg, "a.jpg")
		writeMedia(t, app.cfg, "b.png")

		require.NoError(t, app.SendMultiplePictures(ctx, 10, []string{"a.jpg", "b.png"}))
		require.Equal(t, []string{"attach://photo0.jpg", "attach://photo1.png"}, mockBot.SentMediaGroups[0].Media)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		app, _ := setupTestApp(t)
		require.Error(t, app.SendMultiplePictures(ctx, 10, nil))
	})

	t.Run("returns api failures", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)
		mockBot.SendMediaGroupError = errBoom

		err := app.SendMultiplePictures(ctx, 10, fileIDs(3))
		require.ErrorIs(t, err, errBoom)
	})

	t.Run("stops at a missing file", func(t *testing.T) {
		t.Parallel()
		app, mockBot := setupTestApp(t)

		err := app.SendMultiplePictures(ctx, 10, []string{"gone/a.jpg", "AgACAgIAAxkB"})
		require.ErrorIs(t, err, media.ErrPhotoNotFound)
		require.Zero(t, mockBot.MediaGroupCount())
	})
}

func TestSendLocationAndAnswer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	app, mockBot := setupTestApp(t)
	require.NoError(t, app.SendLocation(ctx, 10, 55.75, 37.61))
	require.Len(t, mockBot.SentLocations, 1)
	require.InDelta(t, 37.61, mockBot.SentLocations[0].Longitude, 1e-9)

	mockBot.SendLocationError = errBoom
	require.ErrorIs(t, app.SendLocation(ctx, 10, 1, 2), errBoom)

	require.NoError(t, app.AnswerCallback(ctx, "q1", "ok", true))
	answer := mockBot.LastAnsweredCallback()
	require.Equal(t, "q1", answer.CallbackQueryID)
	require.True(t, answer.ShowAlert)
}

func TestRun_WithoutClient(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	require.ErrorContains(t, app.Run(context.Background()), "not initialized")
}
