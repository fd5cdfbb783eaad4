package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// discordLimit is the maximum content length of a webhook message.
const discordLimit = 2000

// Discord posts messages to a channel webhook.
type Discord struct {
	webhookURL string
	prefix     string
	http       *resty.Client
	now        func() time.Time
	loc        *time.Location
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == 429 || (code >= 500 && code <= 599)
}

func NewDiscord(webhookURL, prefix string, loc *time.Location) *Discord {
	if loc == nil {
		loc = time.Local
	}
	return &Discord{
		webhookURL: webhookURL,
		prefix:     prefix,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(4 * time.Second).
			AddRetryCondition(isRetryableResp),
		now: time.Now,
		loc: loc,
	}
}

func (d *Discord) Notify(ctx context.Context, msg string) bool {
	content := d.now().In(d.loc).Format("2006-01-02 15:04:05") + " " + msg
	if d.prefix != "" {
		content = d.prefix + " " + content
	}
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-3]) + "..."
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": content}).
		Post(d.webhookURL)
	if err != nil {
		logger.WithError(err).Error("Discord notification failed")
		return false
	}
	if resp.IsError() {
		logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode(),
			"body":   string(resp.Body()),
		}).Error("Discord notification rejected")
		return false
	}
	return true
}
