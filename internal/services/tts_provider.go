package services

import (
	"context"
	"fmt"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

// SpeechAudio is synthesized response audio.
type SpeechAudio struct {
	Audio       []byte `json:"-"`
	ContentType string `json:"content_type"`
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, language string) (*SpeechAudio, error)
}

type ttsProviderService struct {
	log    *logger.Logger
	client openai.Client
	voice  string
	format string
	speed  float64
}

func NewTTSProviderService(log *logger.Logger, client openai.Client) (TextToSpeech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &ttsProviderService{
		log:    log.With("service", "TTSProviderService"),
		client: client,
		voice:  utils.GetEnv("TTS_VOICE", "", nil),
		format: utils.GetEnv("TTS_FORMAT", "mp3", nil),
		speed:  utils.GetEnvAsFloat("TTS_SPEED", 1.0, nil),
	}, nil
}

func (s *ttsProviderService) Synthesize(ctx context.Context, text string, language string) (*SpeechAudio, error) {
	synth, err := s.client.SynthesizeSpeech(ctx, text, openai.SpeechOptions{
		Voice:  s.voice,
		Format: s.format,
		Speed:  s.speed,
	})
	if err != nil {
		return nil, err
	}
	return &SpeechAudio{Audio: synth.Audio, ContentType: synth.ContentType}, nil
}
