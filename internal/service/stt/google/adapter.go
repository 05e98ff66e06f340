// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"realtime-transcription-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode      string // BCP-47 fallback when no hint is given
	Model             string
	EnablePunctuation bool
	// EnhancedBeam is the beam width at and above which the enhanced model
	// is requested. Cloud Speech has no beam parameter; the final pass
	// trades latency for the enhanced model instead.
	EnhancedBeam int
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:      "en-US",
		Model:             "latest_long",
		EnablePunctuation: true,
		EnhancedBeam:      10,
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Adapter implements stt.Engine using synchronous Recognize calls, one per
// window.
type Adapter struct {
	client    *speech.Client
	recognize recognizeFunc
	cfg       Config
}

// New creates a new Google STT engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	a := &Adapter{client: c, cfg: cfg}
	a.recognize = func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}
	return a, nil
}

func (a *Adapter) Name() string { return "google" }

// Transcribe sends the WAV unit as LINEAR16 content.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	pcm, err := stt.DecodeWAV(audio)
	if err != nil {
		return stt.Result{}, stt.NewEngineError(a.Name(), err)
	}

	resp, err := a.recognize(ctx, a.request(audio, pcm, opts))
	if err != nil {
		return stt.Result{}, stt.NewEngineError(a.Name(), err)
	}

	res := resultFromResponse(resp)
	res.DurationSeconds = pcm.DurationSeconds()
	if res.Language == "" {
		res.Language = baseLanguage(a.languageCode(opts.Language))
	}
	return res, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Adapter) request(audio []byte, pcm stt.PCM, opts stt.Options) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(pcm.SampleRate),
			AudioChannelCount:          int32(pcm.Channels),
			LanguageCode:               a.languageCode(opts.Language),
			Model:                      a.cfg.Model,
			UseEnhanced:                a.cfg.EnhancedBeam > 0 && opts.BeamWidth >= a.cfg.EnhancedBeam,
			EnableAutomaticPunctuation: a.cfg.EnablePunctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

var regionDefaults = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"pt": "pt-BR",
	"zh": "cmn-Hans-CN",
	"ja": "ja-JP",
}

func (a *Adapter) languageCode(hint string) string {
	if hint == "" {
		if a.cfg.LanguageCode != "" {
			return a.cfg.LanguageCode
		}
		return "en-US"
	}
	if strings.Contains(hint, "-") {
		return hint
	}
	if code, ok := regionDefaults[strings.ToLower(hint)]; ok {
		return code
	}
	return hint
}

// baseLanguage reduces a BCP-47 tag to its primary subtag ("en-US" → "en").
func baseLanguage(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		code = code[:i]
	}
	if code == "cmn" {
		return "zh"
	}
	return code
}

// resultFromResponse joins the top alternative of every result. The
// probability is the mean confidence of the alternatives used.
func resultFromResponse(resp *speechpb.RecognizeResponse) stt.Result {
	var (
		parts []string
		conf  float64
		lang  string
	)
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		conf += float64(alt.GetConfidence())
		if r.GetLanguageCode() != "" {
			lang = baseLanguage(r.GetLanguageCode())
		}
	}

	res := stt.Result{Text: strings.Join(parts, " "), Language: lang}
	if len(parts) > 0 {
		res.LanguageProbability = conf / float64(len(parts))
	}
	return res
}
