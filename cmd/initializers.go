package main

import (
	"fmt"
	"net/http"
	"time"

	"advisorhub/app/handler"
	"advisorhub/app/router"
	"advisorhub/internal/executor"
	"advisorhub/internal/llm"
	"advisorhub/internal/rules"
	"advisorhub/internal/service"
	"advisorhub/internal/syncer"
	"advisorhub/internal/tools"
	"advisorhub/internal/worker"
	"advisorhub/pkg/config"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/ratelimit"
	mysqlstore "advisorhub/pkg/store/mysql"
	redisstore "advisorhub/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	ds, err := mysqlstore.NewDatastore(app.config.MySQL.DSN())
	if err != nil {
		return err
	}
	if err := ds.AutoMigrate(); err != nil {
		return err
	}

	app.datastore = ds
	app.taskRepo = mysqlstore.NewTaskRepository(ds)
	app.ruleRepo = mysqlstore.NewRuleRepository(ds)
	app.userRepo = mysqlstore.NewUserRepository(ds)
	app.emailRepo = mysqlstore.NewEmailRepository(ds)

	app.registerCleanup(func() {
		ds.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.limiter = ratelimit.NewLimiter(client.GetClient())
	app.deduper = redisstore.NewDeduper(client.GetClient(), 24*time.Hour)

	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initDomain wires the rule engine, tools, syncers and executor.
func (app *Application) initDomain() error {
	app.llmClient = llm.NewClient(app.config.OpenAI)
	app.toolRun = tools.NewRunner(app.limiter, tools.NewHubspotClient(app.config.Hubspot.BaseURL))
	app.evaluator = rules.NewEvaluator(app.ruleRepo, app.taskRepo)

	gmailSync := syncer.NewGmailSyncer(app.emailRepo)
	calendarSync := syncer.NewCalendarSyncer(app.emailRepo)
	embeddings := syncer.NewEmbeddingPipeline(app.emailRepo, app.llmClient)

	app.exec = executor.New(
		app.taskRepo,
		app.userRepo,
		app.evaluator,
		app.ruleRepo,
		app.toolRun,
		gmailSync,
		calendarSync,
		embeddings,
		app.llmClient,
		app.limiter,
	)

	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.taskService = service.NewTaskService(app.taskRepo, app.exec)
	app.ruleService = service.NewRuleService(app.ruleRepo)
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.taskService)
	app.ruleHandler = handler.NewRuleHandler(app.ruleService)
	app.webhookHandler = handler.NewWebhookHandler(app.userRepo, app.taskService, app.evaluator, app.deduper)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()
	r := router.NewRouter(app.taskHandler, app.ruleHandler, app.webhookHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}

// newTaskWorker builds the polling worker from config.
func (app *Application) newTaskWorker() *worker.Worker {
	return worker.New(
		app.taskRepo,
		app.exec,
		time.Duration(app.config.Worker.PollInterval)*time.Second,
		time.Duration(app.config.Worker.LockTimeout)*time.Second,
		app.config.Worker.MaxConcurrent,
	)
}
