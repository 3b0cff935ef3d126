// Package mocks provides mock implementations for testing bot handlers.
package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramAPI defines the Telegram operations the application performs.
// This interface is defined here to avoid import cycles between bot and mocks packages.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error)
	SendLocation(ctx context.Context, params *bot.SendLocationParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// SentMessage captures a message sent via MockBot.
type SentMessage struct {
	ChatID              any
	ThreadID            int
	Text                string
	ParseMode           models.ParseMode
	ReplyMarkup         models.ReplyMarkup
	DisableNotification bool
	ProtectContent      bool
	ReplyToMessageID    int
	AllowWithoutReply   bool
	PreviewDisabled     bool
}

// SentPhoto captures a photo sent via MockBot. Photo is the file id or URL
// for string inputs and the upload filename for local files.
type SentPhoto struct {
	ChatID      any
	Photo       string
	Uploaded    bool
	Data        []byte
	Caption     string
	ParseMode   models.ParseMode
	ReplyMarkup models.ReplyMarkup
}

// SentMediaGroup captures an album sent via MockBot.
type SentMediaGroup struct {
	ChatID  any
	Media   []string
	Caption string
}

// SentLocation captures a map pin sent via MockBot.
type SentLocation struct {
	ChatID    any
	Latitude  float64
	Longitude float64
}

// AnsweredCallback captures a callback query answer via MockBot.
type AnsweredCallback struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
}

// Compile-time check that MockBot implements TelegramAPI.
var _ TelegramAPI = (*MockBot)(nil)

// MockBot simulates Telegram bot operations for testing.
type MockBot struct {
	mu sync.RWMutex

	SentMessages      []SentMessage
	SentPhotos        []SentPhoto
	SentMediaGroups   []SentMediaGroup
	SentLocations     []SentLocation
	AnsweredCallbacks []AnsweredCallback

	// SendMessageError allows simulating SendMessage failures.
	SendMessageError error
	// SendPhotoError allows simulating SendPhoto failures.
	SendPhotoError error
	// SendMediaGroupError allows simulating SendMediaGroup failures.
	SendMediaGroupError error
	// SendLocationError allows simulating SendLocation failures.
	SendLocationError error

	// NextMessageID is auto-incremented for each sent message.
	NextMessageID int
}

// NewMockBot creates a new MockBot instance.
func NewMockBot() *MockBot {
	return &MockBot{
		SentMessages:      make([]SentMessage, 0),
		SentPhotos:        make([]SentPhoto, 0),
		SentMediaGroups:   make([]SentMediaGroup, 0),
		SentLocations:     make([]SentLocation, 0),
		AnsweredCallbacks: make([]AnsweredCallback, 0),
		NextMessageID:     1000,
	}
}

func (m *MockBot) nextID() int {
	id := m.NextMessageID
	m.NextMessageID++
	return id
}

// SendMessage simulates sending a message.
func (m *MockBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendMessageError != nil {
		return nil, m.SendMessageError
	}

	sent := SentMessage{
		ChatID:              params.ChatID,
		ThreadID:            params.MessageThreadID,
		Text:                params.Text,
		ParseMode:           params.ParseMode,
		ReplyMarkup:         params.ReplyMarkup,
		DisableNotification: params.DisableNotification,
		ProtectContent:      params.ProtectContent,
	}
	if params.ReplyParameters != nil {
		sent.ReplyToMessageID = params.ReplyParameters.MessageID
		sent.AllowWithoutReply = params.ReplyParameters.AllowSendingWithoutReply
	}
	if params.LinkPreviewOptions != nil && params.LinkPreviewOptions.IsDisabled != nil {
		sent.PreviewDisabled = *params.LinkPreviewOptions.IsDisabled
	}
	m.SentMessages = append(m.SentMessages, sent)

	return &models.Message{
		ID:   m.nextID(),
		Chat: models.Chat{ID: chatIDToInt64(params.ChatID)},
		Text: params.Text,
	}, nil
}

// SendPhoto simulates sending a photo. Uploaded data is read in full.
func (m *MockBot) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendPhotoError != nil {
		return nil, m.SendPhotoError
	}

	sent := SentPhoto{
		ChatID:      params.ChatID,
		Caption:     params.Caption,
		ParseMode:   params.ParseMode,
		ReplyMarkup: params.ReplyMarkup,
	}
	switch p := params.Photo.(type) {
	case *models.InputFileString:
		sent.Photo = p.Data
	case *models.InputFileUpload:
		sent.Photo = p.Filename
		sent.Uploaded = true
		if p.Data != nil {
			data, err := io.ReadAll(p.Data)
			if err != nil {
				return nil, err
			}
			sent.Data = data
		}
	}
	m.SentPhotos = append(m.SentPhotos, sent)

	return &models.Message{
		ID:      m.nextID(),
		Chat:    models.Chat{ID: chatIDToInt64(params.ChatID)},
		Caption: params.Caption,
	}, nil
}

// SendMediaGroup simulates sending an album.
func (m *MockBot) SendMediaGroup(_ context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendMediaGroupError != nil {
		return nil, m.SendMediaGroupError
	}

	sent := SentMediaGroup{ChatID: params.ChatID}
	msgs := make([]*models.Message, 0, len(params.Media))
	for i, item := range params.Media {
		photo, ok := item.(*models.InputMediaPhoto)
		if !ok {
			continue
		}
		sent.Media = append(sent.Media, photo.Media)
		if i == 0 {
			sent.Caption = photo.Caption
		}
		msgs = append(msgs, &models.Message{
			ID:   m.nextID(),
			Chat: models.Chat{ID: chatIDToInt64(params.ChatID)},
		})
	}
	m.SentMediaGroups = append(m.SentMediaGroups, sent)

	return msgs, nil
}

// SendLocation simulates sending a map pin.
func (m *MockBot) SendLocation(_ context.Context, params *bot.SendLocationParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendLocationError != nil {
		return nil, m.SendLocationError
	}

	m.SentLocations = append(m.SentLocations, SentLocation{
		ChatID:    params.ChatID,
		Latitude:  params.Latitude,
		Longitude: params.Longitude,
	})

	return &models.Message{
		ID:   m.nextID(),
		Chat: models.Chat{ID: chatIDToInt64(params.ChatID)},
	}, nil
}

// AnswerCallbackQuery simulates answering a callback query.
func (m *MockBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AnsweredCallbacks = append(m.AnsweredCallbacks, AnsweredCallback{
		CallbackQueryID: params.CallbackQueryID,
		Text:            params.Text,
		ShowAlert:       params.ShowAlert,
	})

	return true, nil
}

// Reset clears all recorded interactions.
func (m *MockBot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentMessages = make([]SentMessage, 0)
	m.SentPhotos = make([]SentPhoto, 0)
	m.SentMediaGroups = make([]SentMediaGroup, 0)
	m.SentLocations = make([]SentLocation, 0)
	m.AnsweredCallbacks = make([]AnsweredCallback, 0)
	m.SendMessageError = nil
	m.SendPhotoError = nil
	m.SendMediaGroupError = nil
	m.SendLocationError = nil
}

// LastSentMessage returns the most recently sent message, or nil if none.
func (m *MockBot) LastSentMessage() *SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.SentMessages) == 0 {
		return nil
	}
	return &m.SentMessages[len(m.SentMessages)-1]
}

// SentMessageCount returns the number of messages sent.
func (m *MockBot) SentMessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.SentMessages)
}

// LastSentPhoto returns the most recently sent photo, or nil if none.
func (m *MockBot) LastSentPhoto() *SentPhoto {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.SentPhotos) == 0 {
		return nil
	}
	return &m.SentPhotos[len(m.SentPhotos)-1]
}

// SentPhotoCount returns the number of photos sent outside albums.
func (m *MockBot) SentPhotoCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.SentPhotos)
}

// MediaGroupCount returns the number of albums sent.
func (m *MockBot) MediaGroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.SentMediaGroups)
}

// LastAnsweredCallback returns the most recent callback answer, or nil if none.
func (m *MockBot) LastAnsweredCallback() *AnsweredCallback {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.AnsweredCallbacks) == 0 {
		return nil
	}
	return &m.AnsweredCallbacks[len(m.AnsweredCallbacks)-1]
}

// chatIDToInt64 converts a ChatID to int64.
func chatIDToInt64(chatID any) int64 {
	switch v := chatID.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
