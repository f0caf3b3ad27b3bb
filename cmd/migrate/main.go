package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"libertax/internal/config"
	"libertax/internal/db"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the LibertaX database schema",
		SilenceUsage: true,
	}
	root.AddCommand(directionCMD("up"), directionCMD("down"), versionCMD())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func directionCMD(direction string) *cobra.Command {
	var steps int
	var dsn string

	cmd := &cobra.Command{
		Use:   direction,
		Short: fmt.Sprintf("Apply migrations %s", direction),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(dsn)
			if err != nil {
				return err
			}
			if err := db.Migrate(url, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied\n", direction)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.Flags().StringVar(&dsn, "database-url", "", "postgres url (default DATABASE_URL)")
	return cmd
}

func versionCMD() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(dsn)
			if err != nil {
				return err
			}
			v, dirty, err := db.Version(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%v\n", v, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "postgres url (default DATABASE_URL)")
	return cmd
}

func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return "", err
	}
	return cfg.DatabaseURL, nil
}
