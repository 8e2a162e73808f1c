// Package google adapts Google Cloud Speech-to-Text v2 to the engine
// contract using synchronous batch recognition over LINEAR16 audio.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/wavio"
)

// Config controls recognizer selection and connection behavior.
type Config struct {
	// Recognizer is the fully qualified recognizer resource, for example
	// projects/<project>/locations/global/recognizers/_.
	Recognizer   string
	LanguageCode string
	Model        string
	// Endpoint, when set, dials a plaintext gRPC endpoint (a local proxy)
	// instead of the public API.
	Endpoint    string
	DialTimeout time.Duration
}

// Engine is a Google Cloud Speech backend.
type Engine struct {
	cfg    Config
	client *speech.Client
	conn   *grpc.ClientConn
}

// New connects a speech client. With cfg.Endpoint set the client rides an
// insecure gRPC connection that is waited into readiness first.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Recognizer) == "" {
		return nil, errors.New("google recognizer is empty")
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	var opts []option.ClientOption
	var conn *grpc.ClientConn
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		var err error
		conn, err = grpc.NewClient(
			endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, fmt.Errorf("dial speech grpc %q: %w", endpoint, err)
		}

		readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		conn.Connect()
		if err := waitForReady(readyCtx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("wait for speech grpc readiness: %w", err)
		}
		opts = append(opts, option.WithGRPCConn(conn))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	return &Engine{cfg: cfg, client: client, conn: conn}, nil
}

// Transcribe sends one synchronous Recognize request and joins the result
// alternatives into a single transcript.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	req := &speechpb.RecognizeRequest{
		Recognizer: e.cfg.Recognizer,
		Config: &speechpb.RecognitionConfig{
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   16000,
					AudioChannelCount: 1,
				},
			},
			Model:         strings.TrimSpace(e.cfg.Model),
			LanguageCodes: []string{e.cfg.LanguageCode},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{
			Content: wavio.FloatToPCM16(samples),
		},
	}

	resp, err := e.client.Recognize(ctx, req)
	if err != nil {
		return "", engine.Wrap("google", err)
	}

	segments := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(alternatives[0].GetTranscript())
		if text != "" {
			segments = append(segments, text)
		}
	}
	return strings.Join(segments, " "), nil
}

// Close releases the client and any owned connection.
func (e *Engine) Close() error {
	err := e.client.Close()
	if e.conn != nil {
		if cerr := e.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
