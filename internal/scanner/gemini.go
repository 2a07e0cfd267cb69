// Package scanner reads transactions off bank statement images and PDFs
// with Gemini models served by Vertex AI.
package scanner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"buckify/internal/core"

	aiplatform "google.golang.org/api/aiplatform/v1"
	goption "google.golang.org/api/option"
)

const (
	DefaultModel    = "gemini-2.0-flash"
	DefaultLocation = "us-central1"
)

// ErrNotConfigured is returned by Unconfigured.Scan.
var ErrNotConfigured = errors.New("statement scanning is not configured")

const prompt = `You read bank statements. Extract every outgoing transaction (money spent) from the attached document.
Answer with a JSON array only, no prose. Each element must be an object with:
  "date": the booking date as YYYY-MM-DD,
  "description": the merchant or payee as printed, at most 200 characters,
  "amount": the amount spent as a positive decimal number using a dot separator.
Skip incoming payments, balances and totals. Answer [] when there are none.`

// Config selects how the scanner reaches the model. With an API key the
// publisher endpoint is called directly (Vertex AI express mode). With a
// project, the regional project endpoint is used; without a key that path
// authenticates with Application Default Credentials.
type Config struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

type GeminiScanner struct {
	svc   *aiplatform.Service
	model string // full resource name
}

// NewGemini creates a scanner. Extra options are appended, so tests can
// point the client at another endpoint.
func NewGemini(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*GeminiScanner, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	project := strings.TrimSpace(cfg.Project)
	if apiKey == "" && project == "" {
		return nil, errors.New("missing Gemini credentials (set GEMINI_API_KEY or GEMINI_PROJECT)")
	}
	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/")
	if model == "" {
		model = DefaultModel
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = DefaultLocation
	}

	var base []goption.ClientOption
	name := "publishers/google/models/" + model
	if project != "" {
		name = fmt.Sprintf("projects/%s/locations/%s/%s", project, location, name)
		if location != "global" {
			base = append(base, goption.WithEndpoint("https://"+location+"-aiplatform.googleapis.com/"))
		}
	}
	if apiKey != "" {
		base = append(base, goption.WithHTTPClient(newHTTPClientWithPooling(apiKey)))
	}

	svc, err := aiplatform.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create aiplatform service: %w", err)
	}

	slog.InfoContext(ctx, "Gemini scanner ready", "component", "scanner", "model", name)
	return &GeminiScanner{svc: svc, model: name}, nil
}

// apiKeyTransport authenticates requests with the x-goog-api-key header;
// option.WithAPIKey is ignored once a custom HTTP client is supplied.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("x-goog-api-key", t.key)
	return t.base.RoundTrip(r)
}

// newHTTPClientWithPooling returns a keep-alive client sized for a handful
// of concurrent scans. Model calls on large PDFs are slow, hence the long timeout.
func newHTTPClientWithPooling(apiKey string) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: &apiKeyTransport{key: apiKey, base: transport},
		Timeout:   120 * time.Second,
	}
}

// Scan sends the document to the model and parses the rows it returns.
func (g *GeminiScanner) Scan(ctx context.Context, mimeType string, content []byte) ([]core.ImportRow, error) {
	req := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: []*aiplatform.GoogleCloudAiplatformV1Content{{
			Role: "user",
			Parts: []*aiplatform.GoogleCloudAiplatformV1Part{
				{Text: prompt},
				{InlineData: &aiplatform.GoogleCloudAiplatformV1Blob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(content),
				}},
			},
		}},
		GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
			ResponseMimeType: "application/json",
		},
	}

	start := time.Now()
	resp, err := g.generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	rows, err := ParseRows(text)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Statement scanned by model",
		"component", "scanner",
		"model", g.model,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds())
	return rows, nil
}

func (g *GeminiScanner) generate(ctx context.Context, req *aiplatform.GoogleCloudAiplatformV1GenerateContentRequest) (*aiplatform.GoogleCloudAiplatformV1GenerateContentResponse, error) {
	if strings.HasPrefix(g.model, "projects/") {
		return g.svc.Projects.Locations.Publishers.Models.GenerateContent(g.model, req).Context(ctx).Do()
	}
	return g.svc.Publishers.Models.GenerateContent(g.model, req).Context(ctx).Do()
}

func responseText(resp *aiplatform.GoogleCloudAiplatformV1GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty model response")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("document rejected by model: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("model returned no candidates")
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return "", fmt.Errorf("model returned no content (finish reason %s)", c.FinishReason)
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String(), nil
}

// Unconfigured fails every scan. It stands in when no credentials are set so
// uploads are marked failed instead of staying pending.
type Unconfigured struct{}

func (Unconfigured) Scan(context.Context, string, []byte) ([]core.ImportRow, error) {
	return nil, ErrNotConfigured
}
