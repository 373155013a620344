// Package orglookup provides a client for an organisation profile search
// API, used to fill buyer websites, logos, and headcounts.
package orglookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the organisation lookup operations.
type Client interface {
	// SearchByName finds the best-matching organisation profile for a name.
	// Returns nil when nothing matches.
	SearchByName(ctx context.Context, name string) (*Organization, error)
}

// Organization is the normalized profile extracted from a search hit.
type Organization struct {
	Name          string
	Website       string
	LogoURL       string
	LinkedInURL   string
	Description   string
	EmployeeCount *int
}

// Option configures the lookup client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new organisation lookup client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.thecompaniesapi.com/v2",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Companies []company `json:"companies"`
}

type company struct {
	About struct {
		Name                string `json:"name"`
		TotalEmployees      string `json:"totalEmployees"`
		TotalEmployeesExact *int   `json:"totalEmployeesExact"`
	} `json:"about"`
	Domain struct {
		Domain string `json:"domain"`
	} `json:"domain"`
	Assets struct {
		Logo struct {
			Src string `json:"src"`
		} `json:"logo"`
	} `json:"assets"`
	Socials struct {
		LinkedIn struct {
			URL string `json:"url"`
		} `json:"linkedin"`
	} `json:"socials"`
	Descriptions struct {
		Primary string `json:"primary"`
	} `json:"descriptions"`
}

func (c *httpClient) SearchByName(ctx context.Context, name string) (*Organization, error) {
	endpoint := fmt.Sprintf("%s/companies?name=%s&size=1", c.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "orglookup: build request")
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "orglookup: search %q", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, eris.Errorf("orglookup: search %q: status %d: %s", name, resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrapf(err, "orglookup: decode response for %q", name)
	}
	if len(parsed.Companies) == 0 {
		return nil, nil
	}
	return extractOrganization(&parsed.Companies[0]), nil
}

// extractOrganization maps a raw search hit to the normalized profile.
func extractOrganization(hit *company) *Organization {
	org := &Organization{
		Name:        hit.About.Name,
		LogoURL:     hit.Assets.Logo.Src,
		LinkedInURL: hit.Socials.LinkedIn.URL,
		Description: hit.Descriptions.Primary,
	}
	if hit.Domain.Domain != "" {
		org.Website = "https://" + hit.Domain.Domain
	}
	org.EmployeeCount = employeeCount(hit)
	return org
}

// employeeCount prefers the exact figure, falling back to the lower bound of
// a range like "1001-5000".
func employeeCount(hit *company) *int {
	if hit.About.TotalEmployeesExact != nil {
		return hit.About.TotalEmployeesExact
	}
	rangeStr := hit.About.TotalEmployees
	if rangeStr == "" {
		return nil
	}
	low, _, _ := strings.Cut(rangeStr, "-")
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(low), "+"))
	if err != nil {
		return nil
	}
	return &n
}
