package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/repo"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
	"github.com/tbourn/go-clickstream-warehouse/internal/sysutil"
)

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Run the pipeline over a raw event CSV and persist the star schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		path := sysutil.FirstNonEmpty(file, cfg.ETL.EventsPath)

		ctx := cmd.Context()
		defer setupTracing(ctx)()

		strategy, err := etl.ParseProductKeyStrategy(cfg.ETL.ProductKey)
		if err != nil {
			return err
		}
		db, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		svc := services.NewWarehouseService(db, repo.Store{}, strategy)
		svc.FailOnIntegrity = cfg.ETL.FailOnIntegrity
		svc.BatchSize = cfg.ETL.BatchSize

		sum, runErr := svc.RunFile(ctx, path)
		if sum != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
		}
		if errors.Is(runErr, services.ErrIntegrity) {
			return fmt.Errorf("%w: %d violations", runErr, sum.Integrity.Violations())
		}
		if runErr != nil {
			return runErr
		}
		log.Info().Str("run_id", sum.Run.ID).Str("file", path).Msg("warehouse built")
		return nil
	},
}

func init() {
	etlCmd.Flags().StringP("file", "f", "", "Raw event CSV (defaults to EVENTS_PATH)")
}
