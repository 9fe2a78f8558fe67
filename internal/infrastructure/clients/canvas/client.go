package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the interface consumed by the EHR sync service.
type Client interface {
	AuthorizeURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	ListPatients(ctx context.Context, accessToken string) (*Bundle, error)
	ListConditions(ctx context.Context, accessToken, patientID string) (*Bundle, error)
	ListVitalObservations(ctx context.Context, accessToken, patientID string) (*Bundle, error)
}

// HTTPClient implements Client against the Canvas Medical FHIR API.
type HTTPClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// TokenResponse is the OAuth token exchange result.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Bundle is a FHIR searchset bundle, decoded to the fields the sync reads.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry wraps one resource in a bundle.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

// Patient is a FHIR Patient resource.
type Patient struct {
	ID         string       `json:"id"`
	Name       []HumanName  `json:"name"`
	BirthDate  string       `json:"birthDate"`
	Gender     string       `json:"gender"`
	Telecom    []Telecom    `json:"telecom"`
	Identifier []Identifier `json:"identifier"`
}

// HumanName is a FHIR name element.
type HumanName struct {
	Given  []string `json:"given"`
	Family string   `json:"family"`
}

// Telecom is a FHIR contact point.
type Telecom struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Identifier is a FHIR identifier with its type coding.
type Identifier struct {
	Type  CodeableConcept `json:"type"`
	Value string          `json:"value"`
}

// CodeableConcept is a FHIR coded value.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text"`
}

// Coding is one code within a codeable concept.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Condition is a FHIR Condition resource.
type Condition struct {
	ID             string          `json:"id"`
	Subject        Reference       `json:"subject"`
	Code           CodeableConcept `json:"code"`
	OnsetDateTime  string          `json:"onsetDateTime"`
	ClinicalStatus CodeableConcept `json:"clinicalStatus"`
}

// Observation is a FHIR Observation resource (vital signs category).
type Observation struct {
	ID                string                 `json:"id"`
	Subject           Reference              `json:"subject"`
	Code              CodeableConcept        `json:"code"`
	ValueQuantity     *Quantity              `json:"valueQuantity"`
	Component         []ObservationComponent `json:"component"`
	EffectiveDateTime string                 `json:"effectiveDateTime"`
}

// ObservationComponent is one component of a multi-part observation
// (e.g. the combined blood-pressure panel).
type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity Quantity        `json:"valueQuantity"`
}

// Quantity is a FHIR measured value.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Reference is a FHIR resource reference.
type Reference struct {
	Reference string `json:"reference"`
}

// NewClient creates a new Canvas client.
func NewClient(baseURL, clientID, clientSecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthorizeURL builds the OAuth authorization URL the browser is sent to.
func (c *HTTPClient) AuthorizeURL(redirectURI, state string) string {
	authURL, err := url.Parse(c.baseURL + "/oauth/authorize")
	if err != nil {
		return ""
	}
	query := authURL.Query()
	query.Set("client_id", c.clientID)
	query.Set("response_type", "code")
	query.Set("scope", "read write")
	query.Set("redirect_uri", redirectURI)
	if state == "" {
		state = "default"
	}
	query.Set("state", state)
	authURL.RawQuery = query.Encode()
	return authURL.String()
}

// ExchangeCode exchanges an authorization code for an access token.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	token := &TokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// ListPatients fetches the Patient bundle.
func (c *HTTPClient) ListPatients(ctx context.Context, accessToken string) (*Bundle, error) {
	return c.getBundle(ctx, accessToken, "/api/fhir/Patient")
}

// ListConditions fetches the Condition bundle for one patient.
func (c *HTTPClient) ListConditions(ctx context.Context, accessToken, patientID string) (*Bundle, error) {
	return c.getBundle(ctx, accessToken, "/api/fhir/Condition?patient="+url.QueryEscape(patientID))
}

// ListVitalObservations fetches vital-sign Observations for one patient.
func (c *HTTPClient) ListVitalObservations(ctx context.Context, accessToken, patientID string) (*Bundle, error) {
	return c.getBundle(ctx, accessToken, "/api/fhir/Observation?patient="+url.QueryEscape(patientID)+"&category=vital-signs")
}

func (c *HTTPClient) getBundle(ctx context.Context, accessToken, path string) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fhir request %s failed with status %d", path, resp.StatusCode)
	}

	bundle := &Bundle{}
	if err := json.NewDecoder(resp.Body).Decode(bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}
