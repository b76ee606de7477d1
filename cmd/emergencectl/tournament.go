package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/drmixer/emergence/internal/tournament"
)

func newSelectEpochTournamentCandidatesCommand() *cobra.Command {
	var epochID, seasonIDsRaw string
	var championsPerSeason, maxTotalChampions int

	cmd := &cobra.Command{
		Use:   "select-epoch-tournament-candidates",
		Short: "score agents per season and select epoch champions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if epochID == "" {
				return userError("--epoch-id is required")
			}
			seasonIDs := splitNonEmpty(seasonIDsRaw, ",")
			if len(seasonIDs) == 0 {
				return userError("--season-ids must name at least one season_id")
			}

			ctx, cancel := commandContext()
			defer cancel()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			params := tournament.SelectionParams{
				EpochID:            epochID,
				SeasonIDs:          seasonIDs,
				ChampionsPerSeason: championsPerSeason,
			}
			if maxTotalChampions > 0 {
				params.MaxTotalChampions = &maxTotalChampions
			}

			svc := tournament.New(pool.Pool)
			report, err := svc.SelectChampions(ctx, params)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&epochID, "epoch-id", "", "epoch identifier for the report artifact")
	cmd.Flags().StringVar(&seasonIDsRaw, "season-ids", "", "comma-separated season_id list to score")
	cmd.Flags().IntVar(&championsPerSeason, "champions-per-season", 1, "number of champions to select per season")
	cmd.Flags().IntVar(&maxTotalChampions, "max-total-champions", 0, "cap on the combined champions list (0 = no cap)")
	return cmd
}

func splitNonEmpty(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
