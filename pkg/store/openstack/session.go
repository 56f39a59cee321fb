package openstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Timeouts per call class. Statistics queries aggregate server-side and
// are slow on wide windows.
const (
	defaultTimeout    = 30 * time.Second
	statisticsTimeout = 120 * time.Second
)

// Credentials for the password-scoped keystone token.
type Credentials struct {
	Username string
	Password string
	Domain   string
	Project  string
}

// Session is an authenticated client against one region's telemetry,
// identity and compute services. All calls are synchronous; each carries
// its own timeout.
type Session struct {
	client *http.Client

	keystoneURL   string
	ceilometerURL string
	computeURL    string

	token string
}

type catalogService struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Endpoints []struct {
		Region    string `json:"region"`
		Interface string `json:"interface"`
		URL       string `json:"url"`
	} `json:"endpoints"`
}

type tokenResponse struct {
	Token struct {
		Catalog []catalogService `json:"catalog"`
	} `json:"token"`
}

// Connect authenticates against keystone and resolves the region's compute
// endpoint from the service catalog. Any failure here is fatal to the run.
func Connect(ctx context.Context, creds Credentials, keystoneURL, ceilometerURL, region string) (*Session, error) {
	s := &Session{
		client:        &http.Client{},
		keystoneURL:   strings.TrimRight(keystoneURL, "/"),
		ceilometerURL: strings.TrimRight(ceilometerURL, "/"),
	}

	payload := map[string]any{
		"auth": map[string]any{
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"name":     creds.Username,
						"password": creds.Password,
						"domain":   map[string]string{"id": creds.Domain},
					},
				},
			},
			"scope": map[string]any{
				"project": map[string]any{
					"domain": map[string]string{"id": creds.Domain},
					"name":   creds.Project,
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.keystoneURL+"/auth/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach keystone: %w", err)
	}
	defer res.Body.Close()

	if !successful(res.StatusCode) {
		return nil, fmt.Errorf("could not fetch authorization token from keystone: status %d", res.StatusCode)
	}

	s.token = res.Header.Get("X-Subject-Token")
	if s.token == "" {
		return nil, fmt.Errorf("keystone response carried no subject token")
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode keystone token response: %w", err)
	}

	s.computeURL = findEndpoint(tr.Token.Catalog, "nova", "compute", region)
	if s.computeURL == "" {
		return nil, fmt.Errorf("no admin compute endpoint for region %q in service catalog", region)
	}

	zerolog.Ctx(ctx).Debug().Str("compute_url", s.computeURL).Msg("authenticated against keystone")
	return s, nil
}

func findEndpoint(catalog []catalogService, name, typ, region string) string {
	for _, svc := range catalog {
		if svc.Name != name || svc.Type != typ {
			continue
		}
		for _, ep := range svc.Endpoints {
			if ep.Region == region && ep.Interface == "admin" {
				return strings.TrimRight(ep.URL, "/")
			}
		}
	}
	return ""
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

// getJSON performs an authenticated GET and decodes the response into v.
func (s *Session) getJSON(ctx context.Context, url string, timeout time.Duration, v any) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", s.token)

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if !successful(res.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Status: res.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(res.Body).Decode(v)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// parseStamp accepts the timestamp shapes the services actually emit:
// RFC 3339 and the same without a zone designator (implicitly UTC).
func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
