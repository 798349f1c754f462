// Package google reads Google Calendar events over OAuth2.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
)

const (
	// Provider is the connection key used for Google calendars.
	Provider = "google"

	// ScopeCalendarReadonly grants read access to calendars.
	ScopeCalendarReadonly = "https://www.googleapis.com/auth/calendar.readonly"

	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 20
	pageSize        = "250"
)

// Client talks to the Calendar API on behalf of connected users.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxPages   int
}

// New builds a client. An empty clientID yields a client whose calls fail
// with ErrNotConfigured.
func New(clientID, clientSecret, redirectURL string, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{ScopeCalendarReadonly},
		},
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		timeout:    defaultTimeout,
		maxPages:   defaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether OAuth credentials are present.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL returns the consent URL. Offline access is requested so a
// refresh token is issued.
func (c *Client) AuthCodeURL(state string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	tok, err := c.oauth.Exchange(c.withHTTP(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	return tok, nil
}

// Events lists the events of calendarID between start and end, refreshing tok
// when needed. The returned token is the one in use after the call and
// differs from tok when a refresh happened.
func (c *Client) Events(ctx context.Context, tok *oauth2.Token, calendarID string, start, end time.Time) ([]model.CalendarEvent, *oauth2.Token, error) {
	if !c.Configured() {
		return nil, nil, ErrNotConfigured
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ts := c.oauth.TokenSource(c.withHTTP(ctx), tok)
	hc := oauth2.NewClient(c.withHTTP(ctx), ts)

	var out []model.CalendarEvent
	pageToken := ""
	for page := 0; page < c.maxPages; page++ {
		resp, err := c.fetchPage(ctx, hc, calendarID, start, end, pageToken)
		if err != nil {
			return nil, nil, err
		}
		for _, item := range resp.Items {
			if ev, ok := item.toCalendarEvent(); ok {
				out = append(out, ev)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	current, err := ts.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: token: %w", ErrUpstream, err)
	}
	return out, current, nil
}

func (c *Client) withHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) fetchPage(ctx context.Context, hc *http.Client, calendarID string, start, end time.Time, pageToken string) (*eventsResponse, error) {
	params := url.Values{}
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("maxResults", pageSize)
	params.Set("timeMin", start.UTC().Format(time.RFC3339))
	params.Set("timeMax", end.UTC().Format(time.RFC3339))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	apiURL := c.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out eventsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	return &out, nil
}

type eventsResponse struct {
	Items         []apiEvent `json:"items"`
	NextPageToken string     `json:"nextPageToken"`
}

type apiTime struct {
	Date     string `json:"date"`
	DateTime string `json:"dateTime"`
}

type apiEvent struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	EventType   string  `json:"eventType"`
	Start       apiTime `json:"start"`
	End         apiTime `json:"end"`
}

func (t apiTime) parse() (time.Time, bool, error) {
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err
	}
	v, err := time.Parse(time.DateOnly, t.Date)
	return v, true, err
}

// toCalendarEvent maps a Calendar API item, dropping cancelled events and
// items with unreadable times.
func (e apiEvent) toCalendarEvent() (model.CalendarEvent, bool) {
	if e.Status == "cancelled" {
		return model.CalendarEvent{}, false
	}
	start, allDay, err := e.Start.parse()
	if err != nil {
		return model.CalendarEvent{}, false
	}
	end, _, err := e.End.parse()
	if err != nil || end.Before(start) {
		end = start
	}
	res := leave.Classify(e.Summary, e.Description, allDay, e.EventType)
	return model.CalendarEvent{
		ID:              e.ID,
		Title:           e.Summary,
		Description:     e.Description,
		Start:           start.UTC(),
		End:             end.UTC(),
		AllDay:          allDay,
		EventType:       e.EventType,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		FinalTier:       types.DefaultTier,
		Vertical:        types.VerticalUniversal,
		IsLeave:         res.IsLeave,
		LeaveMethod:     string(res.Method),
		LeaveConfidence: string(res.Confidence),
	}, true
}
