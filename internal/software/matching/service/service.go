package service

import (
	"motoride/internal/general/config"
	"motoride/internal/general/logger"
	"motoride/internal/general/rabbitmq"
	"motoride/internal/ports"
)

// matchingService produces ranked driver candidates for pending bookings and
// maintains the derived exclusion caches.
type matchingService struct {
	logger       *logger.Logger
	cfg          *config.Config
	uow          ports.UnitOfWork
	bookings     ports.BookingRepository
	drivers      ports.DriverRepository
	coordination ports.CoordinationStore
	pub          ports.EventPublisher
	rabbitmq     *rabbitmq.Client
	sessions     ports.SessionPusher
}

// NewMatchingService creates the matching engine with its dependencies.
func NewMatchingService(
	log *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	bookings ports.BookingRepository,
	drivers ports.DriverRepository,
	coordination ports.CoordinationStore,
	pub ports.EventPublisher,
	mq *rabbitmq.Client,
	sessions ports.SessionPusher,
) ports.MatchingService {
	return &matchingService{
		logger:       log,
		cfg:          cfg,
		uow:          uow,
		bookings:     bookings,
		drivers:      drivers,
		coordination: coordination,
		pub:          pub,
		rabbitmq:     mq,
		sessions:     sessions,
	}
}
