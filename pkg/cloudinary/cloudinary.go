package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service archives raw submission uploads to Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
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
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// ArchiveUpload stores the original upload under <folder>/<jobID>/ and returns its secure URL.
func (s *Service) ArchiveUpload(ctx context.Context, jobID, filename string, data []byte) (string, error) {
	params := uploader.UploadParams{
		Folder:         FolderFor(s.folder, jobID),
		PublicID:       PublicID(filename),
		ResourceType:   "raw",
		UseFilename:    boolPtr(true),
		UniqueFilename: boolPtr(false),
		Overwrite:      boolPtr(true),
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to archive upload: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}

	s.logger.Info().Str("job_id", jobID).Str("public_id", result.PublicID).Msg("submission archived")

	return result.SecureURL, nil
}

// FolderFor joins the configured root with the job id.
func FolderFor(root, jobID string) string {
	return path.Join(strings.Trim(root, "/"), jobID)
}

// PublicID keeps the extension because raw assets are served by public id.
func PublicID(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' {
			return r
		}
		return '-'
	}, base)

	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}

func boolPtr(v bool) *bool {
	return &v
}
