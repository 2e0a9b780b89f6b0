package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pianosale/api/models"
)

type AirtableConfig struct {
	BaseURL string
	APIKey  string
	BaseID  string
	Table   string
	Timeout time.Duration
}

// AirtableClient mirrors confirmed bookings into an Airtable table.
type AirtableClient struct {
	cfg        AirtableConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewAirtableClient(cfg AirtableConfig, httpClient *http.Client) *AirtableClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.airtable.com"
	}
	if cfg.Table == "" {
		cfg.Table = "Bookings"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &AirtableClient{cfg: cfg, httpClient: httpClient, now: time.Now}
}

type airtableRecord struct {
	Fields map[string]interface{} `json:"fields"`
}

type airtableCreateRequest struct {
	Records []airtableRecord `json:"records"`
}

// Mirror posts rec as a single record batch.
func (c *AirtableClient) Mirror(ctx context.Context, rec models.BookingRecord) error {
	var missing []string
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if strings.TrimSpace(c.cfg.BaseID) == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	body, err := json.Marshal(airtableCreateRequest{Records: []airtableRecord{{Fields: crmFields(rec, c.now())}}})
	if err != nil {
		return &CrmMirrorError{Err: err}
	}

	endpoint := c.cfg.BaseURL + "/v0/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(c.cfg.Table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &CrmMirrorError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CrmMirrorError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &CrmMirrorError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

func crmFields(rec models.BookingRecord, created time.Time) map[string]interface{} {
	return map[string]interface{}{
		"Name":        rec.Name,
		"Email":       rec.Email,
		"Phone":       rec.Phone,
		"Start Time":  rec.StartTime.UTC().Format(time.RFC3339),
		"End Time":    rec.EndTime.UTC().Format(time.RFC3339),
		"Event Type":  rec.EventType,
		"Location":    rec.Location,
		"Notes":       rec.AdditionalNotes,
		"Booking ID":  rec.BookingID,
		"Cal.com UID": rec.UID,
		"Created":     created.UTC().Format(time.RFC3339),
	}
}
