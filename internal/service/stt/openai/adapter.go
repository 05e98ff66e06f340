// Package openai provides a Whisper transcription engine over the OpenAI
// audio API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"realtime-transcription-service/internal/service/stt"
)

// noSpeechCutoff is the per-segment no-speech probability above which a
// segment is discarded when VAD is requested. The hosted model has no VAD
// switch, so segments it flags as non-speech are filtered client-side.
const noSpeechCutoff = 0.6

// Config holds client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible servers
}

// Adapter implements stt.Engine using the audio transcription endpoint.
type Adapter struct {
	client *goopenai.Client
	model  string
}

// New creates a new OpenAI Whisper engine.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Adapter{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (a *Adapter) Name() string { return "openai" }

// Transcribe uploads the WAV unit and requests verbose JSON so that the
// detected language, duration and per-segment speech probability are
// available.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	if len(audio) == 0 {
		return stt.Result{}, stt.NewEngineError(a.Name(), stt.ErrEmptyAudio)
	}

	resp, err := a.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    a.model,
		FilePath: "window.wav",
		Reader:   bytes.NewReader(audio),
		Language: opts.Language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return stt.Result{}, stt.NewEngineError(a.Name(), err)
	}

	return fromResponse(resp, opts), nil
}

func fromResponse(resp goopenai.AudioResponse, opts stt.Options) stt.Result {
	res := stt.Result{
		Language:        normalizeLanguage(resp.Language),
		DurationSeconds: resp.Duration,
	}

	if len(resp.Segments) == 0 {
		res.Text = strings.TrimSpace(resp.Text)
		if res.Text != "" {
			res.LanguageProbability = 1
		}
		return res
	}

	var (
		parts     []string
		speechSum float64
	)
	for _, seg := range resp.Segments {
		if opts.VADEnabled && seg.NoSpeechProb > noSpeechCutoff {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		speechSum += 1 - seg.NoSpeechProb
	}
	res.Text = strings.Join(parts, " ")
	if len(parts) > 0 {
		res.LanguageProbability = speechSum / float64(len(parts))
	}
	return res
}

var languageNames = map[string]string{
	"english":    "en",
	"chinese":    "zh",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"japanese":   "ja",
	"portuguese": "pt",
}

// normalizeLanguage maps the verbose response's language name to ISO-639-1.
func normalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[l]; ok {
		return code
	}
	return l
}
