package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/application/submission"
	"github.com/tu-usuario/facturacion-pro/internal/domain/verifactu"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/aeat"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/postgres"
	httpRouter "github.com/tu-usuario/facturacion-pro/internal/interfaces/http"
	"github.com/tu-usuario/facturacion-pro/pkg/config"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentRepository(pool)
	jobRepo := postgres.NewSubmissionJobRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	hasher := verifactu.NewHasher()
	encoder := submission.NewPayloadEncoder(cfg.Billing.IssuerNIF)
	billingCfg := billing.BillingConfig{
		IssuerNIF:       cfg.Billing.IssuerNIF,
		SequenceRetries: cfg.Billing.SequenceRetries,
	}

	documentUC := billing.NewDocumentUseCase(docRepo, hasher, billingCfg)
	finalizeUC := billing.NewFinalizeUseCase(txRunner, docRepo, hasher, encoder, billingCfg, log)
	jobsUC := submission.NewJobsUseCase(jobRepo)

	// Cliente SOAP — solo se usa si AEAT_ENV es "test" o "prod".
	// En modo dev el worker simula la entrega.
	aeatEnv := cfg.AEAT.Env
	if aeatEnv != aeat.AppEnvTest && aeatEnv != aeat.AppEnvProd {
		aeatEnv = aeat.AppEnvDev
	}
	var submitter aeat.Submitter
	if aeatEnv != aeat.AppEnvDev {
		submitter = aeat.NewSOAPClient()
	}

	worker := submission.NewWorker(jobRepo, submitter, submission.WorkerConfig{
		PollInterval: cfg.AEAT.PollInterval,
		BaseDelay:    cfg.AEAT.BaseDelay,
		MaxAttempts:  cfg.AEAT.MaxAttempts,
		Env:          aeatEnv,
	}, log)
	worker.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación Pro API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		DocumentUC: documentUC,
		FinalizeUC: finalizeUC,
		JobsUC:     jobsUC,
		JWTSecret:  cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	// El worker termina el job en curso antes de parar; los pendientes
	// quedan en la cola durable y se retoman en el siguiente arranque.
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del worker de envíos")
	}

	log.Info().Msg("aplicación detenida")
}
