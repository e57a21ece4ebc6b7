package notify

import (
	"context"
	"fmt"
	"time"

	"sentinel/pkg/client"
)

const sourceHeader = "x-sentinel-source"

// ConfirmationPayload is posted to the agent's confirmation webhook after an
// approval decision commits.
type ConfirmationPayload struct {
	AppointmentID string    `json:"appointmentId"`
	Status        string    `json:"status"`
	Approved      bool      `json:"approved"`
	ReviewedBy    string    `json:"reviewedBy"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Version       int64     `json:"version"`
}

type WebhookClient interface {
	PostConfirmation(ctx context.Context, url string, payload ConfirmationPayload) error
}

type httpWebhookClient struct {
	http *client.HttpClient
}

func NewWebhookClient() WebhookClient {
	return &httpWebhookClient{
		http: client.NewHttpClient(""),
	}
}

func (c *httpWebhookClient) PostConfirmation(ctx context.Context, url string, payload ConfirmationPayload) error {
	if url == "" {
		return nil
	}

	resp, err := c.http.POSTWithHeaders(ctx, url, payload, map[string]string{
		sourceHeader: eventSource,
	})
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := resp.Body
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Errorf("webhook failed (%d): %s", resp.StatusCode, body)
	}
	return nil
}
