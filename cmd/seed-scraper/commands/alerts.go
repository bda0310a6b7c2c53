package commands

import (
	"fmt"

	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/spf13/cobra"
)

var checkAlertsCmd = &cobra.Command{
	Use:   "check-alerts",
	Short: "Evaluate every active alert against current prices once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		triggered, err := a.manager.CheckAlerts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d alert(s) triggered\n", triggered)
		return nil
	},
}

var sweepAlertsCmd = &cobra.Command{
	Use:   "sweep-alerts",
	Short: "Delete inactive alerts older than ALERT_RETENTION_DAYS",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.manager.SweepAlerts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d inactive alert(s) deleted\n", deleted)
		return nil
	},
}

var alertFlags struct {
	user      string
	seed      string
	target    float64
	currency  string
	seedbanks []string
	packSize  string
	discount  bool
	restock   bool
}

var addAlertCmd = &cobra.Command{
	Use:   "add-alert",
	Short: "Subscribe a user to a seed's price",
	Long: `Create or update the active price alert of a user for one seed.

Examples:
  seed-scraper add-alert --user u-1 --seed northern-light --target 30
  seed-scraper add-alert --user u-1 --seed amnesia-haze --target 25 --seedbank zamnesia --notify-discount`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		seed, err := a.store.GetSeedBySlug(cmd.Context(), normalize.Slug(alertFlags.seed))
		if err != nil {
			return fmt.Errorf("failed to find seed %q: %w", alertFlags.seed, err)
		}

		alert, err := a.store.UpsertAlert(cmd.Context(), &models.PriceAlert{
			UserID:           alertFlags.user,
			SeedID:           seed.ID,
			TargetPrice:      alertFlags.target,
			Currency:         normalize.Currency(alertFlags.currency, a.cfg.Scraper.DefaultCurrency),
			Seedbanks:        alertFlags.seedbanks,
			PackSize:         alertFlags.packSize,
			NotifyOnDiscount: alertFlags.discount,
			NotifyOnRestock:  alertFlags.restock,
			IsActive:         true,
		})
		if err != nil {
			return fmt.Errorf("failed to save alert: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "alert %s: %s below %.2f %s\n", alert.ID, seed.Name, alert.TargetPrice, alert.Currency)
		return nil
	},
}

func init() {
	f := addAlertCmd.Flags()
	f.StringVar(&alertFlags.user, "user", "", "user id")
	f.StringVar(&alertFlags.seed, "seed", "", "seed slug or name")
	f.Float64Var(&alertFlags.target, "target", 0, "target price")
	f.StringVar(&alertFlags.currency, "currency", "", "currency code, SCRAPER_DEFAULT_CURRENCY when empty")
	f.StringSliceVar(&alertFlags.seedbanks, "seedbank", nil, "only consider these seedbank slugs")
	f.StringVar(&alertFlags.packSize, "pack-size", "", "only consider this pack size")
	f.BoolVar(&alertFlags.discount, "notify-discount", false, "also notify on large discounts")
	f.BoolVar(&alertFlags.restock, "notify-restock", false, "record interest in restocks")
	_ = addAlertCmd.MarkFlagRequired("user")
	_ = addAlertCmd.MarkFlagRequired("seed")
	_ = addAlertCmd.MarkFlagRequired("target")
}
