package bot

import (
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type sendOptions struct {
	disableNotification bool
	protectContent      bool
	replyTo             int
	allowWithoutReply   bool
	parseMode           models.ParseMode
	disablePreview      bool
	replyMarkup         models.ReplyMarkup
	threadID            int
	caption             string
}

// SendOption tunes an outgoing message.
type SendOption func(*sendOptions)

func newSendOptions(opts []SendOption) sendOptions {
	o := sendOptions{parseMode: models.ParseModeMarkdownV1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o sendOptions) replyParameters() *models.ReplyParameters {
	if o.replyTo == 0 {
		return nil
	}
	return &models.ReplyParameters{
		MessageID:                o.replyTo,
		AllowSendingWithoutReply: o.allowWithoutReply,
	}
}

func (o sendOptions) linkPreview() *models.LinkPreviewOptions {
	if !o.disablePreview {
		return nil
	}
	return &models.LinkPreviewOptions{IsDisabled: bot.True()}
}

// WithoutNotification sends the message silently.
func WithoutNotification() SendOption {
	return func(o *sendOptions) { o.disableNotification = true }
}

// WithProtectContent forbids forwarding and saving.
func WithProtectContent() SendOption {
	return func(o *sendOptions) { o.protectContent = true }
}

// WithReplyTo sends the message as a reply to messageID.
func WithReplyTo(messageID int) SendOption {
	return func(o *sendOptions) { o.replyTo = messageID }
}

// WithAllowSendingWithoutReply sends even if the replied message is gone.
func WithAllowSendingWithoutReply() SendOption {
	return func(o *sendOptions) { o.allowWithoutReply = true }
}

// WithParseMode overrides the Markdown default. An empty mode sends plain text.
func WithParseMode(mode models.ParseMode) SendOption {
	return func(o *sendOptions) { o.parseMode = mode }
}

// WithoutWebPagePreview disables link previews.
func WithoutWebPagePreview() SendOption {
	return func(o *sendOptions) { o.disablePreview = true }
}

// WithReplyMarkup attaches an inline keyboard, reply keyboard, keyboard
// removal or force reply.
func WithReplyMarkup(markup models.ReplyMarkup) SendOption {
	return func(o *sendOptions) { o.replyMarkup = markup }
}

// WithThreadID targets a forum topic.
func WithThreadID(threadID int) SendOption {
	return func(o *sendOptions) { o.threadID = threadID }
}

// WithCaption sets the caption of the first album in SendMultiplePictures.
func WithCaption(caption string) SendOption {
	return func(o *sendOptions) { o.caption = caption }
}
