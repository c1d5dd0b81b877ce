package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
)

// Transcription is the narrow speech-to-text result the orchestrator needs.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, language string, sampleRateHertz int) (*Transcription, error)
	Close() error
}

type speechProviderService struct {
	log    *logger.Logger
	client *speech.Client

	maxRetries int
}

func NewSpeechProviderService(log *logger.Logger) (SpeechToText, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "SpeechProviderService")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()

	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechProviderService{
		log:        slog,
		client:     c,
		maxRetries: 2,
	}, nil
}

func (s *speechProviderService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Transcribe uses synchronous recognition; turn audio is short and the call
// is on the real-time path.
func (s *speechProviderService) Transcribe(ctx context.Context, audio []byte, language string, sampleRateHertz int) (*Transcription, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if len(audio) == 0 {
		return &Transcription{}, nil
	}
	if language == "" {
		language = "en-US"
	}
	if sampleRateHertz <= 0 {
		sampleRateHertz = 16000
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               language,
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRateHertz),
			EnableAutomaticPunctuation: true,
			Model:                      "phone_call",
			UseEnhanced:                true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := s.retryRecognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}
	return parseRecognizeResponse(resp), nil
}

func (s *speechProviderService) retryRecognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	var lastErr error
	backoff := 300 * time.Millisecond
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := s.client.Recognize(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableGRPC(err) || attempt == s.maxRetries {
			return nil, err
		}
		s.log.Warn("Speech recognize retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func isRetryableGRPC(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

func parseRecognizeResponse(resp *speechpb.RecognizeResponse) *Transcription {
	out := &Transcription{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}
	var full strings.Builder
	var confSum float64
	var confCount int
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		if alt.Confidence > 0 {
			confSum += float64(alt.Confidence)
			confCount++
		}
	}
	out.Text = strings.TrimSpace(full.String())
	if confCount > 0 {
		out.Confidence = confSum / float64(confCount)
	}
	return out
}
