package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service archives signed contract documents in Cloudinary so the workflow
// keeps a durable copy independent of the signing provider.
type Service struct {
	client *cloudinary.Cloudinary
	http   *resty.Client
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary archive service.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		http:   resty.New().SetTimeout(30 * time.Second),
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Archive downloads the signed document from the provider and stores a copy,
// returning the archived secure URL. Only PDF documents are accepted.
func (s *Service) Archive(ctx context.Context, documentID, documentURL string) (string, error) {
	resp, err := s.http.R().SetContext(ctx).Get(documentURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch signed document: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("document fetch returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	mime := mimetype.Detect(body)
	if !mime.Is("application/pdf") {
		return "", fmt.Errorf("unexpected contract document type %s", mime.String())
	}

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     fmt.Sprintf("contract-%s", documentID),
		ResourceType: "raw",
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(body), params)
	if err != nil {
		return "", fmt.Errorf("failed to archive contract: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("signed contract archived")

	return result.SecureURL, nil
}
