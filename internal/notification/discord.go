package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
)

const (
	colorRed    = 16711680
	colorOrange = 16753920
	colorGreen  = 65280

	// Discord rejects embed descriptions above 4096 characters.
	maxDescription = 4000
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts run alerts and failures to webhooks. An empty URL disables
// the corresponding message.
type Discord struct {
	AlertURL   string
	ErrorURL   string
	HTTPClient *http.Client
}

func NewDiscord(alertURL, errorURL string) *Discord {
	return &Discord{AlertURL: alertURL, ErrorURL: errorURL, HTTPClient: http.DefaultClient}
}

func (d *Discord) SendErrorNotification(ctx context.Context, errorMessage string) error {
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 Error Notification",
				Description: truncate(fmt.Sprintf("An error occurred: %s", errorMessage)),
				Color:       colorRed,
			},
		},
	}
	return d.send(ctx, d.ErrorURL, message)
}

// SendAlertSummary reports every HIGH and MODERATE region of a ranked run.
// Nothing is sent when all regions are LOW.
func (d *Discord) SendAlertSummary(ctx context.Context, ranked []risk.Assessment) error {
	alerting := risk.Alerting(ranked)
	if len(alerting) == 0 {
		return nil
	}

	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       fmt.Sprintf("⛏️ Mine impact alert: %d of %d regions", len(alerting), len(ranked)),
				Description: truncate(AlertSummary(alerting)),
				Color:       alertColor(alerting),
			},
		},
	}
	return d.send(ctx, d.AlertURL, message)
}

// AlertSummary renders one line per assessment in rank order.
func AlertSummary(assessments []risk.Assessment) string {
	var sb strings.Builder
	for _, a := range assessments {
		fmt.Fprintf(&sb, "#%d %s %s: %.2f ha, severity %.3f, impact %.2f (%s)\n",
			a.Rank, a.RegionID, a.Risk, a.AreaHa, a.Severity, a.Impact, a.Alert)
	}
	return sb.String()
}

func alertColor(assessments []risk.Assessment) int {
	for _, a := range assessments {
		if a.Risk == risk.High {
			return colorRed
		}
	}
	if len(assessments) > 0 {
		return colorOrange
	}
	return colorGreen
}

func truncate(s string) string {
	if len(s) <= maxDescription {
		return s
	}
	return s[:maxDescription] + "…"
}

func (d *Discord) send(ctx context.Context, url string, message DiscordMessage) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
