package models

import (
	"encoding/json"
	"errors"
	"time"
)

// MovieStatus tracks where a movie sits in a group's watch list.
type MovieStatus string

const (
	MovieStatusTracking MovieStatus = "tracking"
	MovieStatusPlanned  MovieStatus = "planned"
	MovieStatusWatched  MovieStatus = "watched"
)

// Valid reports whether s is a known status.
func (s MovieStatus) Valid() bool {
	switch s {
	case MovieStatusTracking, MovieStatusPlanned, MovieStatusWatched:
		return true
	}
	return false
}

var (
	ErrUnknownStatus       = errors.New("status must be one of tracking, planned, watched")
	ErrPlannedDateRequired = errors.New("plannedDate is required when status is planned")
	ErrWatchedDateRequired = errors.New("watchedDate is required when status is watched")
	ErrTrackingWithDates   = errors.New("tracking movies cannot have plannedDate or watchedDate")
)

// ValidateStatusDates checks the status/date pairing rules shared by custom and group movies.
func ValidateStatusDates(status MovieStatus, plannedDate, watchedDate *time.Time) error {
	switch status {
	case MovieStatusPlanned:
		if plannedDate == nil {
			return ErrPlannedDateRequired
		}
	case MovieStatusWatched:
		if watchedDate == nil {
			return ErrWatchedDateRequired
		}
	case MovieStatusTracking:
		if plannedDate != nil || watchedDate != nil {
			return ErrTrackingWithDates
		}
	default:
		return ErrUnknownStatus
	}
	return nil
}

// OptionalTime distinguishes an omitted JSON field from an explicit null.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

// Or returns the patched value if set, else cur.
func (o OptionalTime) Or(cur *time.Time) *time.Time {
	if o.Set {
		return o.Value
	}
	return cur
}

// OptionalString distinguishes an omitted JSON field from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

// SetString returns an OptionalString holding v.
func SetString(v string) OptionalString {
	return OptionalString{Set: true, Value: &v}
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Or returns the patched value if set, else cur.
func (o OptionalString) Or(cur *string) *string {
	if o.Set {
		return o.Value
	}
	return cur
}

// StatusPatch is a partial update of a movie's status and dates.
type StatusPatch struct {
	Status      *MovieStatus `json:"status"`
	PlannedDate OptionalTime `json:"plannedDate"`
	WatchedDate OptionalTime `json:"watchedDate"`
}

// Empty reports whether the patch changes nothing.
func (p StatusPatch) Empty() bool {
	return p.Status == nil && !p.PlannedDate.Set && !p.WatchedDate.Set
}

// Apply merges p into the current values and validates the result. Switching to
// tracking drops dates the patch does not mention.
func (p StatusPatch) Apply(status MovieStatus, planned, watched *time.Time) (MovieStatus, *time.Time, *time.Time, error) {
	if p.Status != nil {
		status = *p.Status
		if status == MovieStatusTracking {
			if !p.PlannedDate.Set {
				planned = nil
			}
			if !p.WatchedDate.Set {
				watched = nil
			}
		}
	}
	planned = p.PlannedDate.Or(planned)
	watched = p.WatchedDate.Or(watched)
	if err := ValidateStatusDates(status, planned, watched); err != nil {
		return "", nil, nil, err
	}
	return status, planned, watched, nil
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageBounds normalizes 1-based page and limit and returns the row offset.
func PageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit, (page - 1) * limit
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Movie is a catalog entry shared by every group.
type Movie struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"externalId"`
	ImdbID      *string   `json:"imdbId"`
	Title       string    `json:"title"`
	PosterPath  *string   `json:"posterPath"`
	Overview    *string   `json:"overview"`
	ReleaseYear *int      `json:"releaseYear"`
	Rating      *float64  `json:"rating"`
	Runtime     *int      `json:"runtime"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CustomMovie is a movie entered by hand and owned by one group.
type CustomMovie struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"groupId"`
	Title       string      `json:"title"`
	PosterPath  *string     `json:"posterPath"`
	Overview    *string     `json:"overview"`
	ReleaseYear *int        `json:"releaseYear"`
	Runtime     *int        `json:"runtime"`
	Status      MovieStatus `json:"status"`
	PlannedDate *time.Time  `json:"plannedDate"`
	WatchedDate *time.Time  `json:"watchedDate"`
	CreatedByID *int64      `json:"createdById"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// GroupMovie links a catalog movie to a group.
type GroupMovie struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"groupId"`
	MovieID     int64       `json:"movieId"`
	AddedByID   *int64      `json:"addedById"`
	Status      MovieStatus `json:"status"`
	PlannedDate *time.Time  `json:"plannedDate"`
	WatchedDate *time.Time  `json:"watchedDate"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// GroupMovieWithMovie is a group movie joined with its catalog entry.
type GroupMovieWithMovie struct {
	GroupMovie
	Movie Movie `json:"movie"`
}
