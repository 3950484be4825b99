package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/httpx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type SpeechConfig struct {
	LanguageCode    string
	Model           string
	MinSpeakerCount int
	MaxSpeakerCount int
	Credentials     string
	MaxRetries      int
}

// Speech transcribes recorded interviews. The result is formatted as
// "Speaker N: ..." lines so it reads like a typed transcript.
type Speech interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Close() error
}

type speechService struct {
	log    *logger.Logger
	cfg    SpeechConfig
	client *speech.Client
}

func NewSpeech(ctx context.Context, log *logger.Logger, cfg SpeechConfig) (Speech, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.MinSpeakerCount <= 0 {
		cfg.MinSpeakerCount = 2
	}
	if cfg.MaxSpeakerCount < cfg.MinSpeakerCount {
		cfg.MaxSpeakerCount = cfg.MinSpeakerCount + 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c, err := speech.NewClient(ctx, ClientOptions(cfg.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{
		log:    log.With("service", "gcp.Speech"),
		cfg:    cfg,
		client: c,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 10*time.Minute)
	defer cancel()
	if len(audio) == 0 {
		return "", nil
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: s.recognitionConfig(mimeType),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	return formatSpeakerTurns(resp), nil
}

func (s *speechService) recognitionConfig(mimeType string) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		LanguageCode:               s.cfg.LanguageCode,
		Model:                      s.cfg.Model,
		EnableAutomaticPunctuation: true,
		Encoding:                   inferSpeechEncoding(mimeType),
		DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int32(max0(s.cfg.MinSpeakerCount)),
			MaxSpeakerCount:          int32(max0(s.cfg.MaxSpeakerCount)),
		},
	}
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// formatSpeakerTurns groups diarized words into one line per speaker turn.
// With diarization the last result carries every word with its speaker tag;
// without tags the plain transcripts are joined.
func formatSpeakerTurns(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return ""
	}
	last := resp.Results[len(resp.Results)-1]
	if last != nil && len(last.Alternatives) > 0 && last.Alternatives[0] != nil {
		words := last.Alternatives[0].Words
		if len(words) > 0 && words[0].SpeakerTag > 0 {
			var out strings.Builder
			var line strings.Builder
			cur := words[0].SpeakerTag
			flush := func() {
				if line.Len() == 0 {
					return
				}
				fmt.Fprintf(&out, "Speaker %d: %s\n", cur, strings.TrimSpace(line.String()))
				line.Reset()
			}
			for _, w := range words {
				if w == nil {
					continue
				}
				if w.SpeakerTag != cur {
					flush()
					cur = w.SpeakerTag
				}
				line.WriteString(w.Word)
				line.WriteString(" ")
			}
			flush()
			return strings.TrimSpace(out.String())
		}
	}
	var parts []string
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *speechService) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	var last error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.cfg.MaxRetries {
			break
		}
		wait := httpx.Backoff(attempt, 750*time.Millisecond, 10*time.Second)
		s.log.Warn("Speech request retrying", "attempt", attempt+1, "sleep", wait.String(), "code", code.String())
		if err := httpx.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, last
}
