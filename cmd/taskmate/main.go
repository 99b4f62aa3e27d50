package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmate/internal/bot"
	"taskmate/internal/config"
	"taskmate/internal/eventbus"
	"taskmate/internal/logging"
	"taskmate/internal/repository"
	"taskmate/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info")
		fallback.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	bus := eventbus.New()

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	recurRepo := repository.NewRecurrenceRepository(db)

	categorySvc := service.NewCategoryService(categoryRepo)
	taskSvc := service.NewTaskService(taskRepo, categoryRepo, bus, log)
	recurSvc := service.NewRecurrenceService(recurRepo, taskRepo, bus, log)
	reminderSvc := service.NewReminderService(taskRepo, categoryRepo, recurRepo)
	triggerSvc := service.NewTriggerService(recurRepo, taskRepo, taskSvc, bus, cfg.PollBatchSize, log)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, categorySvc, taskSvc, recurSvc, reminderSvc, &cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create bot")
	}

	triggerSvc.Start(ctx)
	defer triggerSvc.Stop()

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleInterval(cfg.PollInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cfg.PollInterval)
		defer cancel()
		triggerSvc.PollDue(jobCtx)
	}); err != nil {
		log.Fatal().Err(err).Msg("schedule recurrence poll")
	}
	if cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("send reports")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("schedule reports")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Msg("taskmate bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("shutdown complete")
}
