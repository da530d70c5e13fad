package notify

import (
	"context"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
)

// ShoutrrrSender abstracts the Shoutrrr library so the channel can be
// tested without hitting real services.
type ShoutrrrSender interface {
	Send(shoutrrrURL, message string) error
}

type libSender struct{}

func (libSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// ShoutrrrChannel delivers plain-text alerts through any service
// Shoutrrr supports (Telegram, Pushover, Gotify, Matrix, ...).
type ShoutrrrChannel struct {
	Sender ShoutrrrSender
}

func (c *ShoutrrrChannel) Type() string        { return "shoutrrr" }
func (c *ShoutrrrChannel) DisplayName() string { return "Shoutrrr URL" }

func (c *ShoutrrrChannel) ConfigSchema() ChannelSchema {
	return ChannelSchema{
		Type: c.Type(), Label: c.DisplayName(),
		Fields: []ChannelField{
			{Key: "shoutrrr_url", Label: "Shoutrrr URL", Type: FieldPassword, Required: true,
				Placeholder: "telegram://token@telegram?chats=id",
				HelpText:    "Any service URL from the Shoutrrr services overview"},
		},
	}
}

func (c *ShoutrrrChannel) sender() ShoutrrrSender {
	if c.Sender != nil {
		return c.Sender
	}
	return libSender{}
}

func (c *ShoutrrrChannel) Send(ctx context.Context, config map[string]any, p Payload) error {
	url := cfgString(config, "shoutrrr_url", "")
	if url == "" {
		return fmt.Errorf("shoutrrr channel needs a service URL")
	}
	if err := c.sender().Send(url, summaryLine(p)); err != nil {
		return fmt.Errorf("shoutrrr send: %w", err)
	}
	return nil
}

func (c *ShoutrrrChannel) Test(ctx context.Context, config map[string]any) error {
	url := cfgString(config, "shoutrrr_url", "")
	if url == "" {
		return fmt.Errorf("shoutrrr channel needs a service URL")
	}
	if err := c.sender().Send(url, "🔔 sitewatch test notification"); err != nil {
		return fmt.Errorf("shoutrrr send: %w", err)
	}
	return nil
}
