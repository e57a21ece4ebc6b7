package main

import (
	"sentinel/internal/appointments/handler"
	"sentinel/internal/appointments/repository"
	"sentinel/internal/appointments/service"
	"sentinel/internal/appointments/validator"
	"sentinel/internal/availability"
	"sentinel/pkg/app"
	"sentinel/pkg/config"
	"sentinel/pkg/contracts"
	"sentinel/pkg/kafka"
	kafka_config "sentinel/pkg/kafka/config"
	"sentinel/pkg/notify"
)

const ServiceName = "sentinel"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Sentinel reservation service")

	producer, err := kafka.NewProducer(kafka_config.Load(), cfg.ApprovalTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	appointmentService := initServices(cfg, producer)
	appointmentHandler := handler.NewAppointmentHandler(
		appointmentService,
		validator.NewCommandValidator(cfg.Log),
		cfg.Log,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		contracts.HandlerFunc(appointmentHandler.RegisterAgentRoutes),
		contracts.HandlerFunc(appointmentHandler.RegisterApprovalRoutes),
		producer,
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, producer *kafka.Producer) service.AppointmentService {
	appointmentRepo := repository.NewMongoAppointmentRepository(cfg)
	clientRepo := repository.NewMongoClientRepository(cfg)
	claimRepo := repository.NewMongoSlotClaimRepository(cfg)
	lockRepo := repository.NewMongoAppointmentLockRepository(cfg)
	overrideRepo := repository.NewMongoOverrideRepository(cfg)

	scanner := availability.NewScanner(appointmentRepo, overrideRepo, cfg, cfg.Log)

	appointmentService := service.NewAppointmentService(
		appointmentRepo,
		clientRepo,
		claimRepo,
		lockRepo,
		scanner,
		notify.NewKafkaPushGateway(producer, cfg.Log),
		notify.NewWebhookClient(),
		cfg,
		cfg.Log,
	)

	cfg.Log.Info("Appointment service initialized", "database", cfg.MongoDatabaseName)
	return appointmentService
}
