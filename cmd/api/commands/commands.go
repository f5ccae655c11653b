package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/imaging"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/server"
	"github.com/arqon/siteapi/internal/infrastructure/storage"
)

// Build metadata, set with -ldflags
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the API server with the record stores, contact pipeline and admin routes",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("siteapi %s\n", Version)
			fmt.Printf("Build Date: %s\n", BuildDate)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}

// NewTokenCommand creates the admin token generator
func NewTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a random admin token",
		Long:  "Print a random token suitable for ADMIN_TOKEN",
		Run: func(cmd *cobra.Command, args []string) {
			size, _ := cmd.Flags().GetInt("bytes")
			if size < 16 {
				log.Fatal("Token must be at least 16 bytes")
			}

			buf := make([]byte, size)
			if _, err := rand.Read(buf); err != nil {
				log.Fatalf("Failed to generate token: %v", err)
			}
			fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
		},
	}

	tokenCmd.Flags().Int("bytes", 32, "Random bytes in the token")
	return tokenCmd
}

// NewRecordsCommand creates the record inspection command
func NewRecordsCommand() *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect the record stores",
	}

	recordsCmd.AddCommand(&cobra.Command{
		Use:       "list [projects|articles]",
		Short:     "Print every record of a collection as JSON",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"projects", "articles"},
		Run: func(cmd *cobra.Command, args []string) {
			listRecords(args[0])
		},
	})

	return recordsCmd
}

// NewImagesCommand creates the static image tooling
func NewImagesCommand() *cobra.Command {
	imagesCmd := &cobra.Command{
		Use:   "images",
		Short: "Prepare static images",
	}

	resizeCmd := &cobra.Command{
		Use:   "resize <path>...",
		Short: "Write resized JPEG variants next to each image",
		Long:  "Write <name>-<width>.jpg for every width, keeping the aspect ratio",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			widths, _ := cmd.Flags().GetIntSlice("widths")
			quality, _ := cmd.Flags().GetInt("quality")

			cliLogger := logger.NewConsole()
			defer cliLogger.Close()

			if err := resizeImages(cliLogger, args, widths, quality); err != nil {
				cliLogger.Fatalw("Failed to resize images", "error", err)
			}
		},
	}
	resizeCmd.Flags().IntSlice("widths", imaging.DefaultWidths, "Target widths in pixels")
	resizeCmd.Flags().Int("quality", imaging.DefaultQuality, "JPEG quality (1-100)")

	imagesCmd.AddCommand(resizeCmd)
	return imagesCmd
}

func resizeImages(log *logger.Logger, paths []string, widths []int, quality int) error {
	for _, path := range paths {
		variants, err := imaging.Resize(path, widths, quality)
		for _, v := range variants {
			log.Infow("Wrote image variant", "file", v.Path, "width", v.Width, "height", v.Height)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	if Version != "dev" {
		cfg.App.Version = Version
	}

	srv, err := server.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Server failed to start", "error", err)
		}
	case sig := <-quit:
		appLogger.Infow("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorw("Graceful shutdown failed", "error", err)
		return
	}
	appLogger.Info("Server stopped")
}

func listRecords(collection string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cliLogger := logger.NewConsole()
	defer cliLogger.Close()

	if err := printRecords(os.Stdout, cliLogger, cfg.Storage.DataDir, collection); err != nil {
		cliLogger.Fatalw("Failed to list records", "collection", collection, "error", err)
	}
}

// printRecords writes one collection as indented JSON. The data file is
// only read: a missing file prints an empty list, a corrupt one fails.
func printRecords(w io.Writer, log *logger.Logger, dataDir, collection string) error {
	path := filepath.Join(dataDir, collection+".json")

	var (
		records interface{}
		err     error
	)
	switch collection {
	case "projects":
		records, err = storage.ReadFile[entities.Project](path)
	case "articles":
		records, err = storage.ReadFile[entities.Article](path)
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warnw("Data file does not exist yet", "file", path)
	case err != nil:
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
