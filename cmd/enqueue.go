package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meodash/meorank/internal/rank"
)

func newEnqueueCmd() *cobra.Command {
	var (
		shopID  int64
		dateStr string
		byType  string
		byID    int64
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Upsert rank check jobs for every keyword of a shop",
		Long: `enqueue upserts one rank check job per registered keyword of the shop
for the target date. Safe to run repeatedly: keywords that already have a
queued or running job for that date are counted as existing, not duplicated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := parseDate(dateStr)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.EnqueueShopKeywords(cmd.Context(), rank.EnqueueRequest{
				ShopID:      shopID,
				TargetDate:  date,
				RequestedBy: rank.Requester{Type: byType, ID: byID},
			})
			if err != nil {
				return fmt.Errorf("enqueue shop %d: %w", shopID, err)
			}

			logger.Info("enqueue finished",
				zap.Int64("shop_id", shopID),
				zap.String("target_date", date.Format("2006-01-02")),
				zap.Int("created", result.Created),
				zap.Int("existing", result.Existing),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d existing=%d\n", result.Created, result.Existing)
			return nil
		},
	}

	cmd.Flags().Int64Var(&shopID, "shop", 0, "shop id (required)")
	cmd.Flags().StringVar(&dateStr, "date", "", "target date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&byType, "requested-by-type", "operator", "requester type recorded on the jobs")
	cmd.Flags().Int64Var(&byID, "requested-by-id", 0, "requester id recorded on the jobs")
	_ = cmd.MarkFlagRequired("shop")

	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return date, nil
}
