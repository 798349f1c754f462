package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/founderbleed/bleed/internal/adapters/calendar/google"
	"github.com/founderbleed/bleed/internal/adapters/calendar/ics"
	"github.com/founderbleed/bleed/internal/adapters/repository"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/metrics"
)

// ImportResult is the outcome of an ICS import.
type ImportResult struct {
	Events    []model.CalendarEvent `json:"events"`
	Days      int                   `json:"days"`
	Skipped   int                   `json:"skipped"`
	Truncated []string              `json:"truncated,omitempty"`
	BadRules  []string              `json:"bad_rules,omitempty"`
}

// ImportICS expands an iCalendar feed over [start, end) and classifies every
// occurrence.
func (s *Service) ImportICS(ctx context.Context, body []byte, start, end time.Time) (*ImportResult, error) {
	days, err := s.validatePeriod(start, end)
	if err != nil {
		return nil, err
	}

	feed, err := ics.Parse(body)
	if err != nil {
		metrics.RecordCalendarSyncError("ics")
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	exp, err := ics.Expand(feed.Events, ics.Window{Start: start, End: end})
	if err != nil {
		metrics.RecordCalendarSyncError("ics")
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	events := ics.ToCalendarEvents(exp.Occurrences)
	if len(events) > s.maxEvents {
		return nil, fmt.Errorf("%w: feed expands to %d events, limit is %d", ErrInvalidInput, len(events), s.maxEvents)
	}
	recordClassified(events)
	metrics.RecordCalendarSync("ics", len(events))

	if len(exp.BadRules) > 0 || len(exp.Truncated) > 0 {
		s.logger.Warn(ctx, "ics import incomplete",
			logger.Int("bad_rules", len(exp.BadRules)),
			logger.Int("truncated", len(exp.Truncated)),
		)
	}
	return &ImportResult{
		Events:    events,
		Days:      days,
		Skipped:   feed.Skipped,
		Truncated: exp.Truncated,
		BadRules:  exp.BadRules,
	}, nil
}

// GoogleAuthURL returns the consent URL that starts a Google connection for
// userID.
func (s *Service) GoogleAuthURL(_ context.Context, userID string) (string, error) {
	if err := s.googleReady(); err != nil {
		return "", err
	}
	state, err := s.tokens.IssueState(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return s.google.AuthCodeURL(state)
}

// ConnectGoogle completes the OAuth round trip and stores the connection
// with its refresh token encrypted.
func (s *Service) ConnectGoogle(ctx context.Context, code, state string) (*model.CalendarConnection, error) {
	if err := s.googleReady(); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidInput)
	}
	userID, err := s.tokens.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}

	tok, err := s.google.Exchange(ctx, code)
	if err != nil {
		metrics.RecordCalendarSyncError(google.Provider)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	conn := &model.CalendarConnection{
		UserID:      userID,
		Provider:    google.Provider,
		CalendarID:  "primary",
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}
	if tok.RefreshToken != "" {
		if conn.RefreshTokenCiphertext, err = s.cipher.EncryptString(tok.RefreshToken); err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	if err := store.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	s.logger.Info(ctx, "google calendar connected", logger.String("user_id", userID))
	return conn, nil
}

// RefreshConnected re-audits every Google-connected user over the trailing
// refresh window. Users without saved rates are skipped.
func (s *Service) RefreshConnected(ctx context.Context) error {
	if s.google == nil || !s.google.Configured() {
		return nil
	}
	store, _, err := s.components()
	if err != nil {
		return err
	}
	conns, err := store.ListConnections(ctx, google.Provider)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	end := s.now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-s.refreshWindow)

	var errs []error
	refreshed := 0
	for _, c := range conns {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.runAudit(ctx, c.UserID, AuditRequest{Source: SourceGoogle, PeriodStart: start, PeriodEnd: end}, "scheduled")
		switch {
		case err == nil:
			refreshed++
		case errors.Is(err, ErrInvalidInput):
			s.logger.Debug(ctx, "skipping refresh", logger.String("user_id", c.UserID), logger.Error(err))
		default:
			errs = append(errs, fmt.Errorf("user %s: %w", c.UserID, err))
		}
	}

	s.logger.Info(ctx, "connected calendars refreshed",
		logger.Int("connections", len(conns)),
		logger.Int("refreshed", refreshed),
		logger.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// fetchGoogleEvents reads the user's events and persists a refreshed token.
func (s *Service) fetchGoogleEvents(ctx context.Context, store repository.Store, userID string, start, end time.Time) ([]model.CalendarEvent, error) {
	if err := s.googleReady(); err != nil {
		return nil, err
	}
	conn, err := store.GetConnection(ctx, userID, google.Provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: conn.AccessToken, Expiry: conn.Expiry, TokenType: "Bearer"}
	if len(conn.RefreshTokenCiphertext) > 0 {
		if tok.RefreshToken, err = s.cipher.DecryptToString(conn.RefreshTokenCiphertext); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}

	events, current, err := s.google.Events(ctx, tok, conn.CalendarID, start, end)
	if err != nil {
		metrics.RecordCalendarSyncError(google.Provider)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	recordClassified(events)
	metrics.RecordCalendarSync(google.Provider, len(events))

	if current != nil && current.AccessToken != conn.AccessToken {
		conn.AccessToken = current.AccessToken
		conn.Expiry = current.Expiry
		if current.RefreshToken != "" && current.RefreshToken != tok.RefreshToken {
			if conn.RefreshTokenCiphertext, err = s.cipher.EncryptString(current.RefreshToken); err != nil {
				return nil, fmt.Errorf("encrypt refresh token: %w", err)
			}
		}
		if err := store.SaveConnection(ctx, conn); err != nil {
			s.logger.Warn(ctx, "failed to persist refreshed token", logger.String("user_id", userID), logger.Error(err))
		}
	}
	return events, nil
}

func (s *Service) googleReady() error {
	if s.google == nil || !s.google.Configured() || s.tokens == nil || s.cipher == nil {
		return ErrGoogleNotConfigured
	}
	return nil
}

func recordClassified(events []model.CalendarEvent) {
	for _, e := range events {
		metrics.RecordEventClassified(e.LeaveMethod, e.IsLeave)
	}
}
