package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alertURL = "https://discord.test/api/webhooks/alerts"
	errorURL = "https://discord.test/api/webhooks/errors"
)

func newMockedDiscord(t *testing.T) (*Discord, *[]DiscordMessage) {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	var received []DiscordMessage
	responder := func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		var msg DiscordMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		received = append(received, msg)
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	}
	httpmock.RegisterResponder(http.MethodPost, alertURL, responder)
	httpmock.RegisterResponder(http.MethodPost, errorURL, responder)

	d := NewDiscord(alertURL, errorURL)
	d.HTTPClient = client
	return d, &received
}

func ranked() []risk.Assessment {
	t := risk.DefaultThresholds()
	return risk.Rank([]risk.Assessment{
		risk.Assess("MINE_0000", 120, -0.18, t),
		risk.Assess("MINE_0001", 30, -0.04, t),
		risk.Assess("MINE_0002", 5, -0.01, t),
	})
}

func TestSendAlertSummary(t *testing.T) {
	d, received := newMockedDiscord(t)

	require.NoError(t, d.SendAlertSummary(context.Background(), ranked()))
	require.Len(t, *received, 1)

	embed := (*received)[0].Embeds[0]
	assert.Contains(t, embed.Title, "2 of 3")
	assert.Equal(t, colorRed, embed.Color)
	lines := strings.Split(strings.TrimSpace(embed.Description), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#1 MINE_0000 HIGH"), lines[0])
	assert.Contains(t, lines[1], "increased monitoring")
}

func TestSendAlertSummarySkipsLowRuns(t *testing.T) {
	d, received := newMockedDiscord(t)

	low := risk.Rank([]risk.Assessment{risk.Assess("MINE_0000", 1, -0.01, risk.DefaultThresholds())})
	require.NoError(t, d.SendAlertSummary(context.Background(), low))
	assert.Empty(t, *received)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestSendErrorNotification(t *testing.T) {
	d, received := newMockedDiscord(t)

	require.NoError(t, d.SendErrorNotification(context.Background(), "region MINE_0004 failed"))
	require.Len(t, *received, 1)
	assert.Contains(t, (*received)[0].Embeds[0].Description, "MINE_0004")
	assert.Equal(t, colorRed, (*received)[0].Embeds[0].Color)
}

func TestSendFailsOnUnexpectedStatus(t *testing.T) {
	d, _ := newMockedDiscord(t)
	httpmock.RegisterResponder(http.MethodPost, errorURL, httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	err := d.SendErrorNotification(context.Background(), "boom")
	assert.ErrorContains(t, err, "429")
}

func TestEmptyURLDisablesMessage(t *testing.T) {
	d := NewDiscord("", "")
	assert.NoError(t, d.SendErrorNotification(context.Background(), "ignored"))
	assert.NoError(t, d.SendAlertSummary(context.Background(), ranked()))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxDescription+10)
	assert.Len(t, []rune(truncate(long)), maxDescription+1)
	assert.Equal(t, "short", truncate("short"))
}
