package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/lifeline/internal/channel"
	"github.com/zulandar/lifeline/internal/channel/push"
	"github.com/zulandar/lifeline/internal/channel/sms"
	"github.com/zulandar/lifeline/internal/config"
	"github.com/zulandar/lifeline/internal/contacts"
	"github.com/zulandar/lifeline/internal/db"
	"github.com/zulandar/lifeline/internal/dispatch"
	"github.com/zulandar/lifeline/internal/logging"
	"github.com/zulandar/lifeline/internal/relay"
	"github.com/zulandar/lifeline/internal/relay/discord"
	"github.com/zulandar/lifeline/internal/relay/kafka"
	"github.com/zulandar/lifeline/internal/relay/slack"
	"github.com/zulandar/lifeline/internal/sos"
	"gorm.io/gorm"
)

// app is the wired service graph shared by serve and the sos commands.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	sms     *sms.Client
	push    *push.Client
	relay   *relay.Relay
	feed    *sos.Feed
	manager *sos.Manager
}

// addConfigFlag registers the --config flag every command shares.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.DefaultPath, "path to Lifeline config file")
}

// loadConfig loads path and configures logging. A missing default config
// falls back to built-in defaults; a missing explicit path is an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path == config.DefaultPath && errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect opens the configured database.
func connect(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return gormDB, nil
}

// newApp wires channels, relay sinks, and the lifecycle manager over gdb.
func newApp(ctx context.Context, cfg *config.Config, gdb *gorm.DB) *app {
	resolver := contacts.NewResolver(gdb)

	smsClient := sms.New(sms.Opts{
		AccountSID:          cfg.SMS.AccountSID,
		AuthToken:           cfg.SMS.AuthToken,
		FromNumber:          cfg.SMS.FromNumber,
		MessagingServiceSID: cfg.SMS.MessagingServiceSID,
		RatePerSecond:       cfg.SMS.RatePerSecond,
	})
	pushClient := push.New(ctx, push.Opts{
		CredentialsFile: cfg.Push.CredentialsFile,
		ProjectID:       cfg.Push.ProjectID,
		Tokens:          resolver,
	})

	feed := sos.NewFeed()
	rel := relay.New(relaySinks(cfg.Relay)...)

	mgr := sos.NewManager(sos.Opts{
		Store:    sos.NewGormStore(gdb),
		Contacts: resolver,
		Dispatcher: dispatch.New(dispatch.Opts{
			SMS:            smsClient,
			Push:           pushClient,
			MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		}),
		Feed:  feed,
		Relay: rel,
	})

	return &app{
		cfg:     cfg,
		db:      gdb,
		sms:     smsClient,
		push:    pushClient,
		relay:   rel,
		feed:    feed,
		manager: mgr,
	}
}

// relaySinks builds a sink for every configured relay. A sink that fails
// to build is logged and left out.
func relaySinks(cfg config.RelayConfig) []relay.Sink {
	var sinks []relay.Sink
	if cfg.Slack.Enabled() {
		s, err := slack.New(slack.SinkOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			logrus.WithError(err).Warn("relay: slack sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Discord.Enabled() {
		s, err := discord.New(discord.SinkOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			logrus.WithError(err).Warn("relay: discord sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Kafka.Enabled() {
		s, err := kafka.New(kafka.SinkOpts{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			logrus.WithError(err).Warn("relay: kafka sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// channels lists the alert channels for usability reports.
func (a *app) channels() []channel.Client {
	return []channel.Client{a.sms, a.push}
}

// Close waits for in-flight relay notices and stops the feed.
func (a *app) Close() {
	if err := a.relay.Close(); err != nil {
		logrus.WithError(err).Warn("relay: close")
	}
	a.feed.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
