// Package druginfo fetches public drug-label data from OpenFDA and
// reshapes it into the three markdown sections the info panel renders.
package druginfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

var ErrNotFound = errors.New("no information found for this medication")

const (
	defaultBaseURL  = "https://api.fda.gov/drug/label.json"
	sectionMaxChars = 1200
	maxBullets      = 6
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch looks up the label by brand or generic name and builds the
// markdown sections. Returns ErrNotFound when OpenFDA has no results.
func (c *Client) Fetch(ctx context.Context, medicationName string) (model.DrugInfo, error) {
	name := strings.TrimSpace(medicationName)
	if name == "" {
		return model.DrugInfo{}, errors.New("medication name is required")
	}

	query := url.Values{}
	query.Set("search", fmt.Sprintf("openfda.brand_name:%q+openfda.generic_name:%q", name, name))
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return model.DrugInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.DrugInfo{}, fmt.Errorf("contacting openfda: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.DrugInfo{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return model.DrugInfo{}, fmt.Errorf("openfda request failed, status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.DrugInfo{}, err
	}
	var parsed struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.DrugInfo{}, fmt.Errorf("decoding openfda response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return model.DrugInfo{}, ErrNotFound
	}
	label := parsed.Results[0]

	uses := firstText(label["indications_and_usage"])
	sideEffects := firstOf(
		firstText(label["adverse_reactions"]),
		firstText(label["side_effects"]),
	)
	warnings := firstOf(
		firstText(label["warnings"]),
		firstText(label["warnings_and_cautions"]),
		firstText(label["boxed_warning"]),
	)
	dosage := firstText(label["dosage_and_administration"])

	return model.DrugInfo{
		MedicationName:      name,
		GeneralMarkdown:     generalMarkdown(uses, warnings),
		UsageMarkdown:       usageMarkdown(dosage),
		SideEffectsMarkdown: sideEffectsMarkdown(sideEffects),
		SourceURL:           sourceURL(name),
		FetchedAt:           time.Now(),
	}, nil
}

func generalMarkdown(uses, warnings string) string {
	return "### What this medicine is for\n\n" +
		toBullets(shorten(uses)) + "\n\n" +
		"### Important warnings\n\n" +
		toBullets(shorten(warnings)) + "\n\n" +
		"_Source: U.S. FDA drug label (OpenFDA). This is **not** medical advice. " +
		"Always talk to your doctor or pharmacist about your medicines._"
}

func usageMarkdown(dosage string) string {
	return "### How to use this medicine\n\n" +
		toBullets(shorten(dosage)) + "\n\n" +
		"_This is a simplified summary. Follow the instructions from your " +
		"doctor, pharmacist, or the label on your medicine._"
}

func sideEffectsMarkdown(sideEffects string) string {
	return "### Possible side effects\n\n" +
		toBullets(shorten(sideEffects)) + "\n\n" +
		"_If you feel unwell, have trouble breathing, chest pain, or any symptoms that " +
		"worry you, seek medical help immediately. This list is not complete._"
}

func sourceURL(name string) string {
	encoded := url.QueryEscape(name)
	return defaultBaseURL +
		"?search=openfda.brand_name:" + encoded +
		"+openfda.generic_name:" + encoded + "&limit=1"
}

// firstText coerces OpenFDA's list-of-strings fields to their first
// entry, tolerating plain strings.
func firstText(value any) string {
	switch v := value.(type) {
	case []any:
		if len(v) > 0 {
			return fmt.Sprint(v[0])
		}
	case string:
		return v
	}
	return ""
}

func firstOf(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// shorten trims a section to sectionMaxChars, cutting back to the last
// full sentence when possible.
func shorten(text string) string {
	if len(text) <= sectionMaxChars {
		return text
	}
	trimmed := text[:sectionMaxChars]
	if idx := strings.LastIndex(trimmed, "."); idx >= 0 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed
}

var sentenceBoundary = regexp.MustCompile(`(?:[.?!])\s+`)

// toBullets splits a paragraph on sentence boundaries into at most
// maxBullets "- " lines.
func toBullets(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Not available."
	}

	var bullets []string
	rest := text
	for {
		loc := sentenceBoundary.FindStringIndex(rest)
		var sentence string
		if loc == nil {
			sentence = strings.TrimSpace(rest)
			rest = ""
		} else {
			sentence = strings.TrimSpace(rest[:loc[0]+1])
			rest = rest[loc[1]:]
		}
		if sentence != "" {
			bullets = append(bullets, "- "+sentence)
		}
		if len(bullets) >= maxBullets || rest == "" {
			break
		}
	}

	if len(bullets) == 0 {
		return "Not available."
	}
	return strings.Join(bullets, "\n")
}
