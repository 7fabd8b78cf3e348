package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"meetme/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
	// OutOfBandRedirect is the redirect used by the command-line auth flow.
	OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a Google Calendar client authenticated with token.
// Expired tokens are refreshed through config.
func NewClient(ctx context.Context, logger *slog.Logger, config *oauth2.Config, token *oauth2.Token) (*CalendarClient, error) {
	if token == nil {
		return nil, errors.New("token cannot be nil")
	}
	service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// NewClientForAccount creates a client from a saved token file, as written by
// the 'auth' command. The accountName selects token-<accountName>.json.
func NewClientForAccount(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string) (*CalendarClient, error) {
	config, err := OAuthConfig(clientID, clientSecret, OutOfBandRedirect)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := TokenFile(accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}
	return NewClient(ctx, logger, config, token)
}

// ListCalendars returns the account's calendars, primary first, then selected
// calendars, then the rest, each group ordered by summary.
func (c *CalendarClient) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	var items []*calendar.CalendarListEntry
	err := c.service.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]models.Calendar, 0, len(items))
	for _, item := range items {
		desc := item.Description
		if desc == "" {
			desc = "(no description)"
		}
		calendars = append(calendars, models.Calendar{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: desc,
			Primary:     item.Primary,
			Selected:    item.Selected,
		})
	}
	SortCalendars(calendars)
	c.logger.Debug("Listed Google calendars", "count", len(calendars))
	return calendars, nil
}

// ListEvents fetches the busy events of one calendar in [from, to).
func (c *CalendarClient) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Event, error) {
	c.logger.Debug("Fetching events", "calendarID", calendarID, "from", from, "to", to)

	var items []*calendar.Event
	err := c.service.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	events := toInternalEvents(items, calendarID)
	c.logger.Info("Fetched events from Google Calendar", "count", len(events), "calendarID", calendarID)
	return events, nil
}

// SortCalendars orders calendars primary first, then selected, then by summary.
func SortCalendars(calendars []models.Calendar) {
	rank := func(cal models.Calendar) int {
		switch {
		case cal.Primary:
			return 0
		case cal.Selected:
			return 1
		}
		return 2
	}
	sort.SliceStable(calendars, func(i, j int) bool {
		ri, rj := rank(calendars[i]), rank(calendars[j])
		if ri != rj {
			return ri < rj
		}
		return calendars[i].Summary < calendars[j].Summary
	})
}

// toInternalEvents converts Google Calendar events to the internal Event model.
// Transparent events and events without a start time are dropped.
func toInternalEvents(googleEvents []*calendar.Event, calendarID string) []*models.Event {
	var internalEvents []*models.Event
	for _, item := range googleEvents {
		// Skip all-day events, they carry a Date but no DateTime.
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil || item.End.DateTime == "" {
			continue
		}
		if item.Transparency == "transparent" {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}

		internalEvents = append(internalEvents, &models.Event{
			ID:         item.Id,
			Title:      item.Summary,
			StartTime:  startTime,
			EndTime:    endTime,
			CalendarID: calendarID,
			Source:     "google",
		})
	}
	return internalEvents
}

// OAuthConfig returns a read-only calendar OAuth2 config redirecting to redirectURL.
// It prioritizes the given client credentials over a local credentials.json file.
func OAuthConfig(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL
	return config, nil
}

// TokenFromWeb exchanges an authorization code for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenFile returns the token file name for an account.
func TokenFile(accountName string) string {
	return fmt.Sprintf("token-%s.json", accountName)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the accounts with a token file in dir.
func GetTokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
