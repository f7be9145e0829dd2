// Package app builds the object graph shared by the server, worker and
// sweeper binaries.
package app

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/compliance"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/controller"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/dispatch"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/handler"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/distlock"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/ratelimit"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/sweeper"
)

const sweeperLockKey = "agent_task_sweeper"

type App struct {
	Config *config.Config
	DB     *sql.DB
	Queue  queue.Queue

	Tasks     *repository.TaskRepository
	Leads     *repository.LeadRepository
	Orgs      *repository.OrganizationRepository
	Campaigns *repository.CampaignRepository
	Consents  *repository.ConsentRepository

	Audit        *service.Auditor
	Scheduler    *service.Scheduler
	CampaignSvc  *service.CampaignService
	TaskSvc      *service.TaskService
	HumanControl *service.HumanControlService
	ConsentSvc   *service.ConsentService
}

func New(cfg *config.Config, db *sql.DB, q queue.Queue) *App {
	a := &App{
		Config:    cfg,
		DB:        db,
		Queue:     q,
		Tasks:     &repository.TaskRepository{DB: db},
		Leads:     &repository.LeadRepository{DB: db},
		Orgs:      &repository.OrganizationRepository{DB: db},
		Campaigns: &repository.CampaignRepository{DB: db},
		Consents:  &repository.ConsentRepository{DB: db},
	}
	a.Audit = &service.Auditor{Repo: &repository.ActivityRepository{DB: db}}

	gate := compliance.NewGate(a.Leads, a.Orgs, a.Consents, cfg.Policy.Compliance)
	a.Scheduler = &service.Scheduler{
		Tasks:      a.Tasks,
		Leads:      a.Leads,
		Orgs:       a.Orgs,
		Campaigns:  a.Campaigns,
		Comms:      &repository.CommunicationRepository{DB: db},
		Compliance: gate,
		Limiter:    ratelimit.New(db),
		Dispatcher: dispatch.NewDispatcher(cfg.Channels),
		Costs:      &service.CostRecorder{Repo: &repository.CostRepository{DB: db}, Costs: cfg.Policy.Costs},
		Audit:      a.Audit,
	}
	a.CampaignSvc = &service.CampaignService{CampaignRepo: a.Campaigns, LeadRepo: a.Leads, OrgRepo: a.Orgs, Audit: a.Audit}
	a.TaskSvc = &service.TaskService{Tasks: a.Tasks, Leads: a.Leads, Queue: q}
	a.HumanControl = &service.HumanControlService{Leads: a.Leads, Audit: a.Audit}
	a.ConsentSvc = &service.ConsentService{Leads: a.Leads, Consents: a.Consents, Audit: a.Audit}
	return a
}

// Router returns the HTTP API.
func (a *App) Router() http.Handler {
	return controller.NewRouter(
		&controller.CampaignController{CampaignService: a.CampaignSvc},
		&controller.TaskController{TaskService: a.TaskSvc, Runner: a.Scheduler},
		handler.NewLeadHandler(a.HumanControl, a.ConsentSvc),
	)
}

// Worker returns the queue consumer for agent task invocations.
func (a *App) Worker(timeout time.Duration) *service.Worker {
	return service.NewWorker(a.Scheduler, timeout)
}

// Sweeper returns the due-task sweeper. A nil redis client falls back to a
// PostgreSQL advisory lock.
func (a *App) Sweeper(rdb *redis.Client) *sweeper.Sweeper {
	sc := a.Config.Sweeper
	return &sweeper.Sweeper{
		Tasks:      a.Tasks,
		Campaigns:  a.Campaigns,
		Queue:      a.Queue,
		Lock:       distlock.NewLock(rdb, a.DB, sweeperLockKey, sc.LockTTL),
		LockTTL:    sc.LockTTL,
		Audit:      a.Audit,
		BatchSize:  sc.BatchSize,
		StaleAfter: sc.StaleAfter,
	}
}

// OpenQueue dials RabbitMQ when AMQP_URL is set and otherwise returns an
// in-process queue, which only reaches subscribers in the same process.
func OpenQueue(cfg config.QueueConfig) (queue.Queue, func(), error) {
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, using in-memory queue")
		q := queue.NewInMemoryQueue()
		return q, q.Wait, nil
	}
	q, err := queue.Dial(cfg.AMQPURL, cfg.Prefetch)
	if err != nil {
		return nil, nil, err
	}
	return q, func() {
		if err := q.Close(); err != nil {
			logger.Warn("failed to close queue", "error", err)
		}
		q.Wait()
	}, nil
}

// OpenRedis returns nil when no URL is configured.
func OpenRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
