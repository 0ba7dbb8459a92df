package signnow

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to the SignNow API.
type Config struct {
	BaseURL     string
	APIKey      string
	TemplateID  string
	RedirectURL string
}

// Client creates e-signature sessions from a contract template.
type Client struct {
	http       *resty.Client
	templateID string
	redirect   string
	logger     zerolog.Logger
}

// New constructs a SignNow client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.TemplateID == "" {
		return nil, fmt.Errorf("signnow base url, api key and template id must be provided")
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Client{
		http:       http,
		templateID: cfg.TemplateID,
		redirect:   cfg.RedirectURL,
		logger:     logger.With().Str("component", "signnow").Logger(),
	}, nil
}

type copyDocumentResponse struct {
	ID string `json:"id"`
}

type signingLinkResponse struct {
	URL string `json:"url"`
}

// CreateSigningSession copies the contract template into a fresh document and
// requests an embedded signing link for it.
func (c *Client) CreateSigningSession(ctx context.Context, userID uint, level int) (string, string, error) {
	var document copyDocumentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"document_name": fmt.Sprintf("certification-l%d-user-%d", level, userID),
		}).
		SetResult(&document).
		Post(fmt.Sprintf("/template/%s/copy", c.templateID))
	if err != nil {
		return "", "", fmt.Errorf("failed to copy contract template: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("signnow template copy returned status %d", resp.StatusCode())
	}

	var link signingLinkResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"document_id":  document.ID,
			"redirect_uri": c.redirect,
		}).
		SetResult(&link).
		Post("/link")
	if err != nil {
		return "", "", fmt.Errorf("failed to create signing link: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("signnow link creation returned status %d", resp.StatusCode())
	}

	c.logger.Info().Str("document_id", document.ID).Msg("signing session created")

	return link.URL, document.ID, nil
}
