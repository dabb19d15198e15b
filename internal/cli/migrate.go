package cli

import (
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// only the DSN matters here, so skip the provider checks in Validate
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := observability.Setup(cfg.LogLevel)

		gdb, err := db.Connect(cfg.DBDSN, cfg.DBLog)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}
		log.Info("migrations applied", "dialect", db.Dialect(cfg.DBDSN))
		return nil
	},
}
