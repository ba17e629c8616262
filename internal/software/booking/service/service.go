package service

import (
	"motoride/internal/general/config"
	"motoride/internal/general/logger"
	"motoride/internal/general/rabbitmq"
	"motoride/internal/ports"
)

// bookingService coordinates the booking lifecycle. It is the single writer
// of booking status; every other service observes through events.
type bookingService struct {
	logger       *logger.Logger
	cfg          *config.Config
	uow          ports.UnitOfWork
	bookings     ports.BookingRepository
	drivers      ports.DriverRepository
	users        ports.UserRepository
	coordination ports.CoordinationStore
	tracking     ports.TrackingClient
	pub          ports.EventPublisher
	rabbitmq     *rabbitmq.Client
}

// NewBookingService creates the booking coordinator with its dependencies.
func NewBookingService(
	log *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	bookings ports.BookingRepository,
	drivers ports.DriverRepository,
	users ports.UserRepository,
	coordination ports.CoordinationStore,
	tracking ports.TrackingClient,
	pub ports.EventPublisher,
	mq *rabbitmq.Client,
) ports.BookingService {
	return &bookingService{
		logger:       log,
		cfg:          cfg,
		uow:          uow,
		bookings:     bookings,
		drivers:      drivers,
		users:        users,
		coordination: coordination,
		tracking:     tracking,
		pub:          pub,
		rabbitmq:     mq,
	}
}
