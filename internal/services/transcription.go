package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// TranscriptionService turns an audio file into text using the engine
// selected in project settings. Video items have their audio track extracted
// by the pipeline before this is called. The hosted engine uploads the file
// as-is; the local engines require mono 16 kHz WAV, produced with ffmpeg and
// removed afterwards.
type TranscriptionService interface {
	Transcribe(ctx context.Context, audioPath string, engine types.TranscriptionEngine) (string, error)
}

type transcriptionService struct {
	log        *logger.Logger
	tools      MediaTools
	openai     LLMClient
	httpClient *http.Client

	whisperxURL string
	tOneURL     string
}

func NewTranscriptionService(log *logger.Logger, tools MediaTools, openai LLMClient) TranscriptionService {
	return &transcriptionService{
		log:         log.With("service", "TranscriptionService"),
		tools:       tools,
		openai:      openai,
		httpClient:  &http.Client{Timeout: 30 * time.Minute},
		whisperxURL: envOr("WHISPERX_URL", "http://localhost:9090"),
		tOneURL:     envOr("T_ONE_URL", "http://localhost:9091"),
	}
}

func (s *transcriptionService) Transcribe(ctx context.Context, audioPath string, engine types.TranscriptionEngine) (string, error) {
	switch engine {
	case types.TranscriptionEngineOpenAI:
		return s.openai.TranscribeFile(ctx, audioPath)
	case types.TranscriptionEngineWhisperX:
		wav, cleanup, err := s.ensureWAV(ctx, audioPath)
		if err != nil {
			return "", err
		}
		defer s.tools.Cleanup(cleanup...)
		return s.transcribeWhisperX(ctx, wav)
	case types.TranscriptionEngineTOne:
		wav, cleanup, err := s.ensureWAV(ctx, audioPath)
		if err != nil {
			return "", err
		}
		defer s.tools.Cleanup(cleanup...)
		return s.transcribeTOne(ctx, wav)
	default:
		return "", fmt.Errorf("unknown transcription engine %q", engine)
	}
}

// ensureWAV normalizes the input for the local engines. Audio extracted from
// video is already mono 16 kHz WAV and is passed through.
func (s *transcriptionService) ensureWAV(ctx context.Context, audioPath string) (string, []string, error) {
	if strings.HasSuffix(audioPath, ".normalized.wav") {
		return audioPath, nil, nil
	}
	wav, err := s.tools.NormalizeAudio(ctx, audioPath)
	if err != nil {
		return "", nil, fmt.Errorf("audio normalization: %w", err)
	}
	return wav, []string{wav}, nil
}

type localTranscriptionResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

// transcribeWhisperX posts the whole WAV to the local batch server and reads
// the result in one response.
func (s *transcriptionService) transcribeWhisperX(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.whisperxURL+"/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperx request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisperx http %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var decoded localTranscriptionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("whisperx decode: %w", err)
	}
	return assembleTranscript(decoded), nil
}

// transcribeTOne streams the raw WAV body to the local streaming server. The
// server replies with newline-delimited JSON segments as it recognizes them.
func (s *transcriptionService) transcribeTOne(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.tOneURL+"/stream", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("t-one request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("t-one http %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parts []string
	dec := json.NewDecoder(resp.Body)
	for {
		var seg struct {
			Text string `json:"text"`
		}
		if err := dec.Decode(&seg); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("t-one decode: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func assembleTranscript(r localTranscriptionResponse) string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	var parts []string
	for _, seg := range r.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
