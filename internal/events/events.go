// Package events holds the church events and calendar: listing, slots,
// registration and weekly/monthly views.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DateLayout is the calendar date format of events.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned for unknown event ids.
	ErrNotFound = errors.New("event not found")

	// ErrNoSlots is returned when registering for a full event.
	ErrNoSlots = errors.New("no slots available")
)

// Event is a scheduled church event.
type Event struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Title          string `gorm:"size:255;not null" json:"title"`
	Date           string `gorm:"size:10;index;not null" json:"date"`
	Location       string `gorm:"size:255" json:"location"`
	Description    string `gorm:"type:text" json:"description"`
	TotalSlots     int    `json:"total_slots"`
	AvailableSlots int    `json:"available_slots"`
}

// Input is the writable part of an event.
type Input struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Description string `json:"description"`
	TotalSlots  int    `json:"total_slots"`
}

// Validate checks the required fields and the date format.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return errors.Errorf("invalid date %q (expected YYYY-MM-DD)", in.Date)
	}
	if in.TotalSlots < 0 {
		return errors.New("total_slots must not be negative")
	}
	return nil
}

// CalendarEntry is the short form of an event shown in calendars.
type CalendarEntry struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Location string `json:"location"`
}

// Slots reports the capacity of an event.
type Slots struct {
	EventID        uint   `json:"event_id"`
	Title          string `json:"title"`
	AvailableSlots int    `json:"available_slots"`
	TotalSlots     int    `json:"total_slots"`
}

// Registration is the outcome of a successful registration.
type Registration struct {
	Event Event
}

// Message is the confirmation shown to the registrant.
func (r Registration) Message() string {
	return fmt.Sprintf("Inscrição realizada para %s. Vagas restantes: %d", r.Event.Title, r.Event.AvailableSlots)
}

// Defaults are the events a fresh database is seeded with.
var Defaults = []Event{
	{Title: "Culto Dominical", Date: "2024-07-07", Location: "Catedral da Reconciliação", Description: "Culto de celebração aberto a todos.", TotalSlots: 200, AvailableSlots: 120},
	{Title: "Encontro de Jovens", Date: "2024-07-13", Location: "Colégio GGE", Description: "Evento especial para a juventude da igreja.", TotalSlots: 80, AvailableSlots: 15},
	{Title: "EJC", Date: "2024-08-10", Location: "Colégio GGE", Description: "Encontro de Jovens com Cristo.", TotalSlots: 50, AvailableSlots: 10},
	{Title: "Imersão", Date: "2024-09-05", Location: "Rancho Pitanga", Description: "Retiro de imersão espiritual.", TotalSlots: 40, AvailableSlots: 5},
	{Title: "Realidade", Date: "2024-10-12", Location: "Espaço Colonial", Description: "Seminário Realidade.", TotalSlots: 100, AvailableSlots: 60},
	{Title: "Eu sou", Date: "2024-11-02", Location: "Espaço Colonial", Description: "Conferência Eu Sou.", TotalSlots: 120, AvailableSlots: 80},
	{Title: "Viva!", Date: "2024-12-01", Location: "Olinda/Recife Antigo", Description: "Celebração Viva!", TotalSlots: 150, AvailableSlots: 100},
}

// Repository stores events with gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository migrates the events table.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, errors.Wrap(err, "events: migrate")
	}
	return &Repository{db: db}, nil
}

// Seed inserts Defaults when there is no event yet. It reports whether it
// inserted anything.
func (r *Repository) Seed(ctx context.Context) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Event{}).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "events: count")
	}
	if n > 0 {
		return false, nil
	}
	rows := make([]Event, len(Defaults))
	copy(rows, Defaults)
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return false, errors.Wrap(err, "events: seed")
	}
	return true, nil
}

// List returns all events by date, then id.
func (r *Repository) List(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := r.db.WithContext(ctx).Order("date, id").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "events: list")
	}
	return out, nil
}

// Get returns one event.
func (r *Repository) Get(ctx context.Context, id uint) (Event, error) {
	var ev Event
	err := r.db.WithContext(ctx).First(&ev, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, errors.Wrap(err, "events: get")
	}
	return ev, nil
}

// Create stores a new event with every slot available.
func (r *Repository) Create(ctx context.Context, in Input) (Event, error) {
	if err := in.Validate(); err != nil {
		return Event{}, err
	}
	ev := Event{
		Title:          in.Title,
		Date:           in.Date,
		Location:       in.Location,
		Description:    in.Description,
		TotalSlots:     in.TotalSlots,
		AvailableSlots: in.TotalSlots,
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return Event{}, errors.Wrap(err, "events: create")
	}
	return ev, nil
}

// Update replaces the writable fields. Available slots are kept, capped at
// the new total.
func (r *Repository) Update(ctx context.Context, id uint, in Input) (Event, error) {
	if err := in.Validate(); err != nil {
		return Event{}, err
	}

	var out Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev Event
		if err := tx.First(&ev, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		ev.Title = in.Title
		ev.Date = in.Date
		ev.Location = in.Location
		ev.Description = in.Description
		ev.TotalSlots = in.TotalSlots
		ev.AvailableSlots = min(ev.AvailableSlots, in.TotalSlots)
		if err := tx.Save(&ev).Error; err != nil {
			return err
		}
		out = ev
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, errors.Wrap(err, "events: update")
	}
	return out, nil
}

// Delete removes an event.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Event{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "events: delete")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Slots reports the capacity of an event.
func (r *Repository) Slots(ctx context.Context, id uint) (Slots, error) {
	ev, err := r.Get(ctx, id)
	if err != nil {
		return Slots{}, err
	}
	return Slots{EventID: ev.ID, Title: ev.Title, AvailableSlots: ev.AvailableSlots, TotalSlots: ev.TotalSlots}, nil
}

// Register takes one slot. The decrement is a single conditional update, so
// concurrent registrations never oversell.
func (r *Repository) Register(ctx context.Context, id uint) (Registration, error) {
	res := r.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND available_slots > 0", id).
		Update("available_slots", gorm.Expr("available_slots - 1"))
	if res.Error != nil {
		return Registration{}, errors.Wrap(res.Error, "events: register")
	}

	ev, err := r.Get(ctx, id)
	if err != nil {
		return Registration{}, err
	}
	if res.RowsAffected == 0 {
		return Registration{}, ErrNoSlots
	}
	return Registration{Event: ev}, nil
}

// Weekly returns the events from start through the following six days.
func (r *Repository) Weekly(ctx context.Context, start time.Time) ([]CalendarEntry, error) {
	from := start.Format(DateLayout)
	to := start.AddDate(0, 0, 6).Format(DateLayout)
	return r.between(ctx, from, to)
}

// Monthly returns the events of the given month.
func (r *Repository) Monthly(ctx context.Context, year int, month time.Month) ([]CalendarEntry, error) {
	if month < time.January || month > time.December {
		return nil, errors.Errorf("invalid month %d", month)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return r.between(ctx, first.Format(DateLayout), last.Format(DateLayout))
}

// between relies on DateLayout sorting lexically.
func (r *Repository) between(ctx context.Context, from, to string) ([]CalendarEntry, error) {
	var rows []Event
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date, id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "events: calendar")
	}

	out := make([]CalendarEntry, 0, len(rows))
	for _, ev := range rows {
		out = append(out, CalendarEntry{ID: ev.ID, Title: ev.Title, Date: ev.Date, Location: ev.Location})
	}
	return out, nil
}
