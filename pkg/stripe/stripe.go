package stripe

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to the Stripe API.
type Config struct {
	BaseURL    string
	SecretKey  string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Client creates subscription checkout sessions.
type Client struct {
	http       *resty.Client
	priceID    string
	successURL string
	cancelURL  string
	logger     zerolog.Logger
}

// New constructs a Stripe client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.SecretKey == "" || cfg.PriceID == "" {
		return nil, fmt.Errorf("stripe secret key and price id must be provided")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Accept", "application/json")

	return &Client{
		http:       http,
		priceID:    cfg.PriceID,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger.With().Str("component", "stripe").Logger(),
	}, nil
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a subscription checkout for one certification
// level. The returned session id must be stored so the completion webhook can
// be correlated.
func (c *Client) CreateCheckoutSession(ctx context.Context, userID uint, level int) (string, string, error) {
	var session checkoutSessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"mode":                          "subscription",
			"line_items[0][price]":          c.priceID,
			"line_items[0][quantity]":       "1",
			"success_url":                   c.successURL,
			"cancel_url":                    c.cancelURL,
			"client_reference_id":           fmt.Sprintf("%d", userID),
			"metadata[certification_level]": fmt.Sprintf("%d", level),
		}).
		SetResult(&session).
		Post("/checkout/sessions")
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("stripe checkout returned status %d", resp.StatusCode())
	}

	c.logger.Info().Str("session_id", session.ID).Msg("checkout session created")

	return session.URL, session.ID, nil
}
