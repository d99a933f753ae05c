package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/dayplanhq/dayplan/internal/remote"
)

// Calendar implements remote.CalendarAPI against the Google Calendar API.
type Calendar struct {
	calendarID string
}

// NewCalendar creates a calendar client for the given calendar id.
// Use "primary" for the user's default calendar.
func NewCalendar(calendarID string) *Calendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Calendar{calendarID: calendarID}
}

// ListEventsForDay implements remote.CalendarAPI. All-day events carry no
// concrete time range and are skipped; they are not schedulable
// commitments.
func (c *Calendar) ListEventsForDay(ctx context.Context, h remote.Handle, day time.Time) ([]remote.Event, error) {
	gh, err := asHandle(h)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var events []remote.Event
	pageToken := ""
	for {
		call := gh.calendar.Events.List(c.calendarID).
			TimeMin(dayStart.Format(time.RFC3339)).
			TimeMax(dayEnd.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		for _, item := range resp.Items {
			event, ok := mapEvent(item)
			if !ok {
				continue
			}
			events = append(events, event)
		}

		if resp.NextPageToken == "" {
			return events, nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreateEvent implements remote.CalendarAPI.
func (c *Calendar) CreateEvent(ctx context.Context, h remote.Handle, req remote.EventRequest) (string, error) {
	gh, err := asHandle(h)
	if err != nil {
		return "", err
	}

	created, err := gh.calendar.Events.Insert(c.calendarID, toGoogleEvent(req)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return created.Id, nil
}

// UpdateEvent implements remote.CalendarAPI. The stored fields overwrite
// the remote event unconditionally.
func (c *Calendar) UpdateEvent(ctx context.Context, h remote.Handle, eventID string, req remote.EventRequest) error {
	gh, err := asHandle(h)
	if err != nil {
		return err
	}

	_, err = gh.calendar.Events.Patch(c.calendarID, eventID, toGoogleEvent(req)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update event %s: %w", eventID, err)
	}
	return nil
}

// DeleteEvent implements remote.CalendarAPI. Deleting an event that is
// already gone succeeds.
func (c *Calendar) DeleteEvent(ctx context.Context, h remote.Handle, eventID string) error {
	gh, err := asHandle(h)
	if err != nil {
		return err
	}

	err = gh.calendar.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if isGone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}

func toGoogleEvent(req remote.EventRequest) *calendar.Event {
	return &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339)},
	}
}

func mapEvent(item *calendar.Event) (remote.Event, bool) {
	if item.Start == nil || item.End == nil ||
		item.Start.DateTime == "" || item.End.DateTime == "" {
		return remote.Event{}, false // all-day or malformed
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return remote.Event{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return remote.Event{}, false
	}

	event := remote.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       start,
		End:         end,
	}
	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, attendee.Email)
	}
	return event, true
}

// isGone reports whether err means the resource no longer exists.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
