package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/lifeline/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBCreateCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBCreateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the MySQL database",
		Long:  "Creates the configured MySQL database if it does not exist. SQLite databases are created on first connect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Database.Driver != "mysql" {
				fmt.Fprintf(out, "Driver %s needs no create step\n", cfg.Database.Driver)
				return nil
			}
			adminDB, err := db.ConnectAdmin(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
				return err
			}
			fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			gormDB, err := connect(cfg)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newDBSeedCmd() *cobra.Command {
	var (
		configPath string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, contacts, and devices from a fixture",
		Long:  "Upserts the users, emergency contacts, and device tokens in a YAML fixture. Re-running with the same file is safe.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := db.LoadFixture(file)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			gormDB, err := connect(cfg)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			sum, err := db.Seed(gormDB, fixture)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d users, %d contacts, %d devices\n", sum.Users, sum.Contacts, sum.Devices)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}
