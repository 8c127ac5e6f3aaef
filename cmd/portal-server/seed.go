package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cinportal/cinportal/internal/config"
	"github.com/cinportal/cinportal/internal/domain/appointment"
	"github.com/cinportal/cinportal/internal/domain/location"
	"github.com/cinportal/cinportal/internal/domain/schedule"
	"github.com/cinportal/cinportal/internal/platform/db"
)

var seedCities = []string{
	"Rabat", "Casablanca", "Fès", "Marrakech", "Tanger", "Agadir", "Oujda",
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with development fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			locations, _ := cmd.Flags().GetInt("locations")
			bookings, _ := cmd.Flags().GetInt("bookings")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed a production database")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return runSeed(ctx, cfg, pool, locations, bookings)
		},
	}
	cmd.Flags().Int("locations", 5, "Number of locations to create")
	cmd.Flags().Int("bookings", 25, "Number of appointments to create")
	return cmd
}

// fakeIdentity produces a plausible national identity number: one or two
// letters followed by six digits.
func fakeIdentity(f *gofakeit.Faker) string {
	letters := strings.ToUpper(f.LetterN(uint(f.IntRange(1, 2))))
	return fmt.Sprintf("%s%06d", letters, f.IntRange(0, 999999))
}

func runSeed(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, nLocations, nBookings int) error {
	f := gofakeit.New(0)

	locationRepo := location.NewRepoPG(pool)
	scheduleRepo := schedule.NewRepoPG(pool)
	appointmentRepo := appointment.NewRepoPG(pool)

	var created []*location.Location
	for i := 0; i < nLocations; i++ {
		city := seedCities[i%len(seedCities)]
		addr := f.Street()
		phone := f.Phone()
		l := &location.Location{
			Name:    fmt.Sprintf("Centre %s", f.City()),
			City:    city,
			Address: &addr,
			Phone:   &phone,
			Active:  true,
		}
		if err := locationRepo.Create(ctx, l); err != nil {
			return fmt.Errorf("seed location: %w", err)
		}
		created = append(created, l)

		scheduleCfg := &schedule.Config{
			LocationID:        l.ID,
			WorkingHours:      defaultWorkingHours(),
			MaxPerSlot:        cfg.MaxPerSlot,
			BookingWindowDays: cfg.BookingWindowDays,
		}
		if err := scheduleRepo.SaveConfig(ctx, scheduleCfg); err != nil {
			return fmt.Errorf("seed schedule config: %w", err)
		}
	}
	fmt.Printf("Created %d locations with schedule configs.\n", len(created))

	hours := defaultWorkingHours()
	booked := 0
	for i := 0; i < nBookings; i++ {
		l := created[f.IntRange(0, len(created)-1)]
		email := f.Email()
		phone := f.Phone()
		a := &appointment.Appointment{
			IdentityNumber: fakeIdentity(f),
			FullName:       f.Name(),
			Email:          email,
			Phone:          &phone,
			LocationID:     l.ID,
			Date:           time.Now().AddDate(0, 0, f.IntRange(1, 13)).Format("2006-01-02"),
			Time:           hours[f.IntRange(0, len(hours)-1)],
		}
		err := appointmentRepo.CreateWithCapacity(ctx, a, cfg.MaxPerSlot, "seed")
		if err != nil {
			// Full slots and duplicate identities are expected with
			// random data; skip and move on.
			continue
		}
		booked++
	}
	fmt.Printf("Created %d appointments.\n", booked)
	return nil
}
