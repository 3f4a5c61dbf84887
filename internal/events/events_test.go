package events

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "events.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo, err := NewRepository(db)
	require.NoError(t, err)
	seeded, err := repo.Seed(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)
	return repo
}

func TestSeedOnlyOnce(t *testing.T) {
	repo := newTestRepository(t)
	seeded, err := repo.Seed(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, len(Defaults))
	assert.Equal(t, "Culto Dominical", all[0].Title)
	assert.Equal(t, "Viva!", all[len(all)-1].Title)
}

func TestCRUD(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	ev, err := repo.Create(ctx, Input{Title: "Vigília", Date: "2024-07-20", Location: "Catedral", TotalSlots: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, ev.AvailableSlots)
	assert.NotZero(t, ev.ID)

	got, err := repo.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vigília", got.Title)

	_, err = repo.Register(ctx, ev.ID)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, ev.ID, Input{Title: "Vigília de Oração", Date: "2024-07-21", Location: "Catedral", TotalSlots: 40})
	require.NoError(t, err)
	assert.Equal(t, "Vigília de Oração", updated.Title)
	assert.Equal(t, 29, updated.AvailableSlots)

	shrunk, err := repo.Update(ctx, ev.ID, Input{Title: "Vigília", Date: "2024-07-21", TotalSlots: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, shrunk.AvailableSlots)

	require.NoError(t, repo.Delete(ctx, ev.ID))
	_, err = repo.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, ev.ID), ErrNotFound)
	_, err = repo.Update(ctx, ev.ID, Input{Title: "x", Date: "2024-01-01"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{name: "blank title", in: Input{Title: " ", Date: "2024-07-01"}},
		{name: "bad date", in: Input{Title: "x", Date: "07/01/2024"}},
		{name: "negative slots", in: Input{Title: "x", Date: "2024-07-01", TotalSlots: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.in.Validate())
		})
	}
}

func TestRegisterUntilFull(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ev, err := repo.Create(ctx, Input{Title: "Retiro", Date: "2024-09-01", TotalSlots: 2})
	require.NoError(t, err)

	reg, err := repo.Register(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Inscrição realizada para Retiro. Vagas restantes: 1", reg.Message())

	_, err = repo.Register(ctx, ev.ID)
	require.NoError(t, err)

	_, err = repo.Register(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNoSlots)

	slots, err := repo.Slots(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, Slots{EventID: ev.ID, Title: "Retiro", AvailableSlots: 0, TotalSlots: 2}, slots)

	_, err = repo.Register(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentRegistrationsNeverOversell(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ev, err := repo.Create(ctx, Input{Title: "Imersão", Date: "2024-09-05", TotalSlots: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Register(ctx, ev.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	slots, err := repo.Slots(ctx, ev.ID)
	require.NoError(t, err)
	assert.Zero(t, slots.AvailableSlots)
}

func TestWeeklyIsInclusiveOfSixthDay(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	start := time.Date(2024, 7, 7, 0, 0, 0, 0, time.UTC)
	week, err := repo.Weekly(ctx, start)
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, "Culto Dominical", week[0].Title)
	assert.Equal(t, "Encontro de Jovens", week[1].Title)

	week, err = repo.Weekly(ctx, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, "2024-07-13", week[0].Date)
}

func TestMonthly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	july, err := repo.Monthly(ctx, 2024, time.July)
	require.NoError(t, err)
	assert.Len(t, july, 2)

	oct, err := repo.Monthly(ctx, 2024, time.October)
	require.NoError(t, err)
	require.Len(t, oct, 1)
	assert.Equal(t, CalendarEntry{ID: oct[0].ID, Title: "Realidade", Date: "2024-10-12", Location: "Espaço Colonial"}, oct[0])

	none, err := repo.Monthly(ctx, 2025, time.July)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.Monthly(ctx, 2024, 13)
	assert.Error(t, err)
}
