package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"clienttabs/internal/admin"
	"clienttabs/internal/apperr"
	"clienttabs/internal/auth"
	"clienttabs/internal/config"
	"clienttabs/internal/engine"
	"clienttabs/internal/instrument"
	"clienttabs/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "server runs the client tabs API",
	Long: `server exposes client records whose tabs and fields are defined at runtime.

Configuration is read from app.yaml and the environment, e.g.
  DATABASE_HOST=db SERVER_PORT=9000 server serve`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bootstrap the database and start the HTTP server",
	RunE:  runServe,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the system tables and the default operator, then exit",
	RunE:  runBootstrap,
}

var pruneCmd = &cobra.Command{
	Use:   "prune-changes",
	Short: "Delete schema change journal entries older than --days",
	RunE:  runPrune,
}

var retentionDays int

func init() {
	pruneCmd.Flags().IntVar(&retentionDays, "days", 90, "Keep journal entries newer than this many days")
	rootCmd.AddCommand(serveCmd, bootstrapCmd, pruneCmd)
}

// open loads config, connects and bootstraps the system tables.
func open(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Println("Database connected")

	if err := db.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Println("System tables ready")
	return cfg, db, nil
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	_, db, err := open(cmd.Context())
	if err != nil {
		return err
	}
	db.Close()
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	_, db, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := instrument.PruneChanges(cmd.Context(), db.DB, retentionDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d schema changes\n", n)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Config, database, system tables
	cfg, db, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Error reporting
	if cfg.Sentry.DSN != "" {
		if err := initSentry(cfg.Sentry); err != nil {
			log.Printf("WARN: %v", err)
		}
		defer flushSentry()
	}

	// 3. Hot reload of schema settings
	config.Watch()

	// 4. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 5. Auth routes (no token required)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(db, cfg.JWTSecret))

	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 6. Schema administration
	admin.RegisterAdminRoutes(app, admin.NewHandler(db), authMW, adminMW)

	// 7. Client records
	engine.RegisterClientRoutes(app, engine.NewHandler(db), authMW)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	return app.Listen(addr)
}

func errorHandler(c *fiber.Ctx, err error) error {
	if apperr.Status(err) >= fiber.StatusInternalServerError {
		captureError(c, err)
	}
	return apperr.Respond(c, err)
}
