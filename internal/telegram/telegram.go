// Package telegram hosts the Telegram client and routes updates into the
// intake flow and the staff reply router.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/config"
	"tg_intake_bot/internal/feature/intake"
	"tg_intake_bot/internal/feature/reply"
	"tg_intake_bot/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and the feature handlers it routes to.
type Client struct {
	bot         botRunner
	logger      *logrus.Entry
	flow        *intake.Flow
	replies     *reply.Router
	staffChatID int64
}

// Option customizes the Client during construction.
type Option func(*Client)

// WithIntakeFlow wires the conversation flow handlers.
func WithIntakeFlow(flow *intake.Flow) Option {
	return func(c *Client) {
		c.flow = flow
	}
}

// WithReplyRouter wires the staff reply router.
func WithReplyRouter(router *reply.Router) Option {
	return func(c *Client) {
		c.replies = router
	}
}

// NewClient initializes the Telegram bot with long polling and the intake and
// reply handlers.
func NewClient(cfg config.Config, logger *logrus.Entry, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger:      logger,
		staffChatID: cfg.GroupID,
	}

	for _, opt := range options {
		opt(client)
	}

	if client.flow == nil {
		return nil, errors.New("intake flow is required")
	}
	if client.replies == nil {
		return nil, errors.New("reply router is required")
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.routeUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
		bot.WithMessageTextHandler("/start", bot.MatchTypeExact, client.handleStart),
		bot.WithMessageTextHandler("/cancel", bot.MatchTypeExact, client.handleCancel),
		bot.WithCallbackQueryDataHandler(intake.CallbackAddressPrefix, bot.MatchTypePrefix, client.handleAddress),
		bot.WithCallbackQueryDataHandler(intake.CallbackContinue, bot.MatchTypeExact, client.handleContinue),
		bot.WithCallbackQueryDataHandler(intake.CallbackSend, bot.MatchTypeExact, client.handleConfirmation),
		bot.WithCallbackQueryDataHandler(intake.CallbackCancel, bot.MatchTypeExact, client.handleConfirmation),
		bot.WithCallbackQueryDataHandler(intake.CallbackNewRequest, bot.MatchTypeExact, client.handleNewRequest),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	c.flow.HandleStart(ctx, b, update.Message)
}

func (c *Client) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	c.flow.HandleCancelCommand(ctx, b, update.Message)
}

func (c *Client) handleAddress(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	c.flow.HandleAddress(ctx, b, update)
}

func (c *Client) handleContinue(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	c.flow.HandleContinue(ctx, b, update)
}

func (c *Client) handleConfirmation(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	c.flow.HandleConfirmation(ctx, b, update)
}

func (c *Client) handleNewRequest(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	c.flow.HandleNewRequest(ctx, b, update)
}

// routeUpdate handles every update without a dedicated handler: staff-chat
// replies go to the reply router, private-chat messages advance the intake
// flow, everything else is dropped.
func (c *Client) routeUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	msg := update.Message

	if msg.Chat.ID == c.staffChatID {
		if msg.ReplyToMessage != nil {
			c.replies.Handle(ctx, b, msg)
			return
		}

		c.logger.WithFields(logging.Fields{
			"event":   "telegram_group_message",
			"chat_id": msg.Chat.ID,
		}).Debug("staff chat message is not a reply, ignoring")
		return
	}

	c.flow.HandleMessage(ctx, b, msg)
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
