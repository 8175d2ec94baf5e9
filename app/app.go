// Package app wires configuration, logging, the REST client and the session
// together and builds the per-view components on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"chatline/api"
	"chatline/chat"
	"chatline/config"
	"chatline/conversations"
	"chatline/logging"
	"chatline/models"
	"chatline/network"
	"chatline/notify"
	"chatline/session"
)

// Environment variables read when restoring or signing in without a prompt.
const (
	AccessTokenEnv  = "CHATLINE_ACCESS_TOKEN"
	RefreshTokenEnv = "CHATLINE_REFRESH_TOKEN"
	EmailEnv        = "CHATLINE_EMAIL"
	PasswordEnv     = "CHATLINE_PASSWORD"
)

var ErrNoCredentials = errors.New("no credentials: set CHATLINE_EMAIL and CHATLINE_PASSWORD or CHATLINE_ACCESS_TOKEN")

// Options controls startup.
type Options struct {
	// DataDir overrides the resolved data directory.
	DataDir string
	// Debug lowers the log level to debug with the console encoder.
	Debug bool
	// LogToStderr sends logs to stderr instead of the log file.
	LogToStderr bool
}

// App holds the long-lived client state shared by every view.
type App struct {
	Config     *config.ClientConfig
	ConfigPath string
	Client     *api.Client
	Session    *session.Session
	Counts     *notify.Counts
	Logger     *zap.SugaredLogger

	zap *zap.Logger
}

// Open loads .env and the config, then builds the logger, client and session.
func Open(opts Options) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		if err := os.Setenv(config.DataDirEnv, opts.DataDir); err != nil {
			return nil, fmt.Errorf("set data dir: %w", err)
		}
	}

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logOpts := logging.Options{Level: cfg.LogLevel, Development: opts.Debug}
	if opts.Debug {
		logOpts.Level = "debug"
	}
	if !opts.LogToStderr {
		logOpts.Path = config.LogPath(filepath.Dir(cfgPath))
	}
	zl, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}
	log := zl.Sugar().With("client_id", cfg.ClientID)

	client := api.New(api.Options{
		BaseURL: cfg.BaseAPIURL,
		Timeout: cfg.RequestTimeout(),
		Retries: cfg.RequestRetries,
		Logger:  log.Named("api"),
	})
	counts := notify.NewCounts()

	return &App{
		Config:     cfg,
		ConfigPath: cfgPath,
		Client:     client,
		Session:    session.New(client, log.Named("session"), counts),
		Counts:     counts,
		Logger:     log,
		zap:        zl,
	}, nil
}

// Close flushes the logger.
func (a *App) Close() {
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

// Login signs in and remembers the email for the next prompt.
func (a *App) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := a.Session.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.rememberEmail(email)
	return user, nil
}

// Authenticate signs in without a prompt: tokens from the environment first,
// then email and password from the environment.
func (a *App) Authenticate(ctx context.Context) (*models.User, error) {
	if user, ok := a.Session.User(); ok && !a.Session.Expired() {
		return &user, nil
	}
	if access := os.Getenv(AccessTokenEnv); access != "" {
		user, err := a.Session.Restore(ctx, access, os.Getenv(RefreshTokenEnv))
		if err == nil {
			return user, nil
		}
		a.Logger.Warnw("restoring session from environment failed", "error", err)
	}

	email := os.Getenv(EmailEnv)
	if email == "" {
		email = a.Config.Username
	}
	password := os.Getenv(PasswordEnv)
	if email == "" || password == "" {
		return nil, ErrNoCredentials
	}
	return a.Login(ctx, email, password)
}

// ChatSocketURL resolves the socket URL for a conversation with the current token.
func (a *App) ChatSocketURL(id models.ID) func() (string, error) {
	return func() (string, error) {
		if a.Session.Expired() {
			return "", session.ErrExpired
		}
		return network.ChatURL(a.Config.BaseWSURL, id, a.Session.Token())
	}
}

// NotificationsSocketURL resolves the notifications socket URL with the current token.
func (a *App) NotificationsSocketURL() (string, error) {
	if a.Session.Expired() {
		return "", session.ErrExpired
	}
	return network.NotificationsURL(a.Config.BaseWSURL, a.Session.Token())
}

// RoomHooks are the callbacks a view attaches to a Room.
type RoomHooks struct {
	OnEvent      func(chat.Event)
	OnNewMessage func(models.ID, models.Message)
}

// NewRoom builds a Room for a conversation using the configured timings.
func (a *App) NewRoom(id models.ID, hooks RoomHooks) *chat.Room {
	return chat.NewRoom(chat.RoomOptions{
		ConversationID:   id,
		Username:         a.Session.Username(),
		History:          a.Client,
		SocketURL:        a.ChatSocketURL(id),
		PageSize:         a.Config.MessagePageSize,
		ReconnectDelay:   a.Config.ReconnectDelay(),
		TypingIdle:       a.Config.TypingIdle(),
		ReadReceiptDelay: a.Config.ReadReceiptDelay(),
		OnEvent:          hooks.OnEvent,
		OnNewMessage:     hooks.OnNewMessage,
		Logger:           a.Logger.Named("chat"),
	})
}

// NotifierHooks are the callbacks a view attaches to the notifications Service.
type NotifierHooks struct {
	OnConversationUpdate func(models.Conversation, bool)
	OnConversationDelete func(models.ID)
	OnStatus             func(network.Status)
}

// NewNotifier builds the notifications Service writing into a.Counts.
func (a *App) NewNotifier(hooks NotifierHooks) *notify.Service {
	return notify.NewService(notify.ServiceOptions{
		API:                  a.Client,
		Counts:               a.Counts,
		SocketURL:            a.NotificationsSocketURL,
		ReconnectDelay:       a.Config.ReconnectDelay(),
		PingInterval:         a.Config.PingInterval(),
		OnConversationUpdate: hooks.OnConversationUpdate,
		OnConversationDelete: hooks.OnConversationDelete,
		OnStatus:             hooks.OnStatus,
		Logger:               a.Logger.Named("notify"),
	})
}

// NewConversationList builds the conversation list cache.
func (a *App) NewConversationList(onChange func()) *conversations.List {
	return conversations.New(conversations.Options{
		Source:   a.Client,
		Username: a.Session.Username(),
		PageSize: a.Config.ConversationPageSize,
		OnChange: onChange,
		Logger:   a.Logger.Named("conversations"),
	})
}

// NewComposer starts a first message to a phone number.
func (a *App) NewComposer(recipientPhone string) *chat.Composer {
	return chat.NewComposer(a.Client, a.Session.Username(), recipientPhone)
}

func (a *App) rememberEmail(email string) {
	email = strings.TrimSpace(email)
	if email == "" || email == a.Config.Username {
		return
	}
	a.Config.Username = email
	if err := config.Update(a.ConfigPath, func(cfg *config.ClientConfig) { cfg.Username = email }); err != nil {
		a.Logger.Warnw("saving config failed", "error", err)
	}
}
