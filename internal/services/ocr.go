package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

// OCRService extracts text from images. The engine is fixed at boot via
// OCR_ENGINE: "tesseract" shells out to a local tesseract binary with English
// and Russian language packs, "gcp_vision" uses the hosted Vision API.
type OCRService interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
	Close() error
}

func NewOCRService(log *logger.Logger) (OCRService, error) {
	engine := envOr("OCR_ENGINE", "tesseract")
	switch engine {
	case "tesseract":
		return newTesseractOCR(log), nil
	case "gcp_vision":
		return newVisionOCR(context.Background(), log)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", engine)
	}
}

type tesseractOCR struct {
	log       *logger.Logger
	binary    string
	languages string
}

func newTesseractOCR(log *logger.Logger) *tesseractOCR {
	binary := envOr("TESSERACT_PATH", "tesseract")
	return &tesseractOCR{
		log:       log.With("service", "OCRService", "engine", "tesseract"),
		binary:    binary,
		languages: envOr("TESSERACT_LANGUAGES", "eng+rus"),
	}
}

func (t *tesseractOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("image not readable: %w", err)
	}
	// "stdout" makes tesseract print recognized text instead of writing a file.
	cmd := exec.CommandContext(ctx, t.binary, imagePath, "stdout", "-l", t.languages)
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, truncate(stderr, 500))
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *tesseractOCR) Close() error { return nil }

type visionOCR struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func newVisionOCR(ctx context.Context, log *logger.Logger) (*visionOCR, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionOCR{
		log:    log.With("service", "OCRService", "engine", "gcp_vision"),
		client: client,
	}, nil
}

func (v *visionOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{{
				Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
			}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("vision returned no responses")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision error: %s", r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return strings.TrimSpace(r.FullTextAnnotation.Text), nil
}

func (v *visionOCR) Close() error { return v.client.Close() }
