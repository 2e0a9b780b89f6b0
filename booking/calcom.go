package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pianosale/api/models"
)

type CalComConfig struct {
	BaseURL    string
	APIKey     string
	APIVersion string
	Username   string
	TimeZone   string
	Timeout    time.Duration
}

// CalComClient books appointments through the Cal.com v2 bookings API.
type CalComClient struct {
	cfg        CalComConfig
	httpClient *http.Client
}

func NewCalComClient(cfg CalComConfig, httpClient *http.Client) *CalComClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cal.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-08-13"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &CalComClient{cfg: cfg, httpClient: httpClient}
}

type calAttendee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	TimeZone    string `json:"timeZone"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type calBookingRequest struct {
	Start                  string            `json:"start"`
	LengthInMinutes        int               `json:"lengthInMinutes,omitempty"`
	EventTypeSlug          string            `json:"eventTypeSlug"`
	Username               string            `json:"username,omitempty"`
	Attendee               calAttendee       `json:"attendee"`
	Location               string            `json:"location,omitempty"`
	BookingFieldsResponses map[string]string `json:"bookingFieldsResponses,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

type calBookingResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID    int64     `json:"id"`
		UID   string    `json:"uid"`
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *CalComClient) Schedule(ctx context.Context, form models.BookingForm) (*ScheduledBooking, error) {
	if c.cfg.APIKey == "" {
		return nil, &SchedulingError{Message: "scheduler API key is not configured"}
	}

	length := int(form.EndTime.Sub(form.StartTime) / time.Minute)
	if length < 1 {
		return nil, &SchedulingError{Message: "booking must last at least one minute"}
	}

	payload := calBookingRequest{
		Start:           form.StartTime.UTC().Format(time.RFC3339),
		LengthInMinutes: length,
		EventTypeSlug:   form.EventType,
		Username:        c.cfg.Username,
		Attendee: calAttendee{
			Name:        form.Name,
			Email:       form.Email,
			TimeZone:    c.cfg.TimeZone,
			PhoneNumber: form.Phone,
		},
		Location: form.Location,
		Metadata: map[string]string{"source": "landing-page"},
	}
	if form.AdditionalNotes != "" {
		payload.BookingFieldsResponses = map[string]string{"notes": form.AdditionalNotes}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SchedulingError{Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/bookings", bytes.NewReader(body))
	if err != nil {
		return nil, &SchedulingError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("cal-api-version", c.cfg.APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SchedulingError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &SchedulingError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SchedulingError{StatusCode: resp.StatusCode, Message: upstreamMessage(raw, resp.Status)}
	}

	var out calBookingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &SchedulingError{StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if !strings.EqualFold(out.Status, "success") {
		return nil, &SchedulingError{StatusCode: resp.StatusCode, Message: upstreamMessage(raw, "scheduler returned status "+out.Status)}
	}
	if out.Data.ID == 0 && out.Data.UID == "" {
		return nil, &SchedulingError{StatusCode: resp.StatusCode, Message: "scheduler response missing booking identifiers"}
	}

	return &ScheduledBooking{
		BookingID: strconv.FormatInt(out.Data.ID, 10),
		UID:       out.Data.UID,
		StartTime: out.Data.Start,
		EndTime:   out.Data.End,
	}, nil
}

// upstreamMessage extracts error.message or message from a JSON error body,
// falling back to the raw text and then to fallback.
func upstreamMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != nil && body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) <= 512 {
		return s
	}
	return fallback
}
