package notify

import (
	"fmt"
	"log/slog"

	"github.com/stonefire/cloudsync/internal/utils"
)

const DefaultSubject = "CloudSync event"

type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	To             string `mapstructure:"to"`
	Subject        string `mapstructure:"subject"`
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", c.Enabled),
		slog.String("sendgrid_api_key", utils.MaskSecret(c.SendgridAPIKey)),
		slog.String("from", c.From),
		slog.String("to", c.To),
		slog.String("subject", c.Subject),
	)
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SendgridAPIKey == "" {
		return fmt.Errorf("sendgrid_api_key is required")
	}
	if c.From == "" {
		return ErrInvalidMailSender
	}
	if c.To == "" {
		return ErrInvalidMailRecipient
	}
	return nil
}
