package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/arqon/siteapi/cmd/api/commands"
)

// @title Site API
// @version 1.0
// @description Contact form, landing data and admin content API

// @host localhost:3001
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the admin token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "siteapi",
		Short: "Site API server",
		Long:  `siteapi serves the landing page data, relays contact form submissions by e-mail and exposes an admin API for projects and articles.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
	rootCmd.AddCommand(commands.NewRecordsCommand())
	rootCmd.AddCommand(commands.NewImagesCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
