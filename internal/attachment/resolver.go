// Package attachment turns stored uploads into content parts a model can read:
// images become inline data and documents become extracted text.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

// Source loads attachments owned by a user.
type Source interface {
	GetAttachment(ctx context.Context, userID, attachmentID string) (*domain.Attachment, error)
}

// Config bounds what the resolver hands to a model.
type Config struct {
	MaxImageBytes int `env:"ATTACHMENT_MAX_IMAGE_BYTES" envDefault:"5242880"`
	MaxTextChars  int `env:"ATTACHMENT_MAX_TEXT_CHARS"  envDefault:"20000"`
}

// Resolver implements domain.AttachmentResolver.
type Resolver struct {
	source Source
	config Config
}

// NewResolver creates a resolver over source.
func NewResolver(source Source, config Config) *Resolver {
	return &Resolver{source: source, config: config}
}

//nolint:gochecknoglobals // read-only lookup table
var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Resolve loads one attachment and converts it.
func (r *Resolver) Resolve(ctx context.Context, userID, attachmentID string) (domain.ContentPart, error) {
	att, err := r.source.GetAttachment(ctx, userID, attachmentID)
	if err != nil {
		return domain.ContentPart{}, fmt.Errorf("load attachment %s: %w", attachmentID, err)
	}

	mediaType, _, err := mime.ParseMediaType(att.MimeType)
	if err != nil {
		mediaType = strings.ToLower(att.MimeType)
	}

	switch {
	case imageTypes[mediaType]:
		return r.image(att, mediaType)
	case mediaType == "text/html":
		markdown, convErr := htmltomarkdown.ConvertString(string(att.Data))
		if convErr != nil {
			return domain.ContentPart{}, domain.WrapError(domain.CodeParse, "convert html attachment", convErr)
		}
		return r.document(ctx, att, markdown), nil
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		if !utf8.Valid(att.Data) {
			return domain.ContentPart{}, domain.NewError(domain.CodeValidation, "attachment is not valid UTF-8 text")
		}
		return r.document(ctx, att, string(att.Data)), nil
	default:
		return domain.ContentPart{}, domain.NewError(domain.CodeValidation,
			fmt.Sprintf("unsupported attachment type %q", att.MimeType))
	}
}

func (r *Resolver) image(att *domain.Attachment, mediaType string) (domain.ContentPart, error) {
	if r.config.MaxImageBytes > 0 && len(att.Data) > r.config.MaxImageBytes {
		return domain.ContentPart{}, domain.NewError(domain.CodeValidation,
			fmt.Sprintf("image %s exceeds %d bytes", att.FileName, r.config.MaxImageBytes))
	}

	return domain.ContentPart{
		Type:     domain.PartImage,
		MimeType: mediaType,
		Data:     base64.StdEncoding.EncodeToString(att.Data),
	}, nil
}

func (r *Resolver) document(ctx context.Context, att *domain.Attachment, text string) domain.ContentPart {
	text = strings.TrimSpace(text)

	if limit := r.config.MaxTextChars; limit > 0 && utf8.RuneCountInString(text) > limit {
		observability.FromContext(ctx).Debug("truncating attachment text",
			observability.String("attachment_id", att.ID),
			observability.Int("limit", limit))
		text = string([]rune(text)[:limit]) + "\n[truncated]"
	}

	return domain.ContentPart{
		Type: domain.PartText,
		Text: fmt.Sprintf("Attached file %q:\n%s", att.FileName, text),
	}
}

// ResolveAll resolves each id independently. Failed attachments are logged
// and skipped; the ids that resolved are returned alongside their parts.
func ResolveAll(
	ctx context.Context,
	resolver domain.AttachmentResolver,
	userID string,
	attachmentIDs []string,
) ([]domain.ContentPart, []string) {
	parts := make([]domain.ContentPart, 0, len(attachmentIDs))
	resolved := make([]string, 0, len(attachmentIDs))

	for _, id := range attachmentIDs {
		part, err := resolver.Resolve(ctx, userID, id)
		if err != nil {
			observability.FromContext(ctx).Warn("skipping attachment",
				observability.String("attachment_id", id),
				observability.Error(err))
			continue
		}
		parts = append(parts, part)
		resolved = append(resolved, id)
	}

	return parts, resolved
}
