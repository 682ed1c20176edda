package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Suggester asks Gemini which person on a scraped page is the best outreach
// contact.
type Suggester struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Suggester, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Suggester{client: client, model: model}, nil
}

func (s *Suggester) Model() string { return s.model }

type responseSchema struct {
	ContactName string          `json:"contact_name"`
	JobTitle    string          `json:"job_title"`
	Reason      string          `json:"reason"`
	Confidence  json.RawMessage `json:"confidence"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"contact_name": {Type: genai.TypeString},
		"job_title":    {Type: genai.TypeString},
		"reason":       {Type: genai.TypeString},
		"confidence":   {Type: genai.TypeInteger},
	},
	Required: []string{
		"contact_name",
		"job_title",
		"reason",
		"confidence",
	},
}

var _ enrich.Suggester = (*Suggester)(nil)

func (s *Suggester) Suggest(ctx context.Context, b enrich.Business, res enrich.Result) (enrich.Suggestion, error) {
	text := strings.TrimSpace(res.PageText)
	if text == "" {
		return enrich.Suggestion{}, errors.New("empty page text")
	}

	resp, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		genai.Text(buildPrompt(res.Website, text)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			Temperature:      genai.Ptr[float32](0.3),
			MaxOutputTokens:  256,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return enrich.Suggestion{}, classifyErr(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return enrich.Suggestion{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}

	return enrich.Suggestion{
		Name:       strings.TrimSpace(parsed.ContactName),
		Title:      strings.TrimSpace(parsed.JobTitle),
		Reason:     strings.TrimSpace(parsed.Reason),
		Confidence: parseConfidence(parsed.Confidence),
	}, nil
}

func buildPrompt(website, text string) string {
	return strings.TrimSpace(`
Given the following text extracted from the About, Team, or Contact page of a business website, suggest the most relevant person to contact for business outreach.

Return ONLY a single JSON object with these keys:
- contact_name (string; empty if no person is named)
- job_title (string)
- reason (string; why this person)
- confidence (integer 1-10; how certain you are this is the best contact)

If no contact is found, return empty strings and confidence 1.

Website: ` + website + `

Extracted Text:
` + text + `
`)
}

// parseConfidence accepts 7, 7.0 or "7" and clamps to 1..10. Anything else
// counts as 1.
func parseConfidence(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 1
	}
	n := int(f)
	return min(max(n, 1), 10)
}

func classifyErr(err error) error {
	// Wrap transient failures so callers can retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
