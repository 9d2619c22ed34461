package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/orchestrator"
	"github.com/use-agent/regscout/webhook"
)

// JobStore holds in-flight and completed search jobs. Jobs older than an
// hour are expired by a background goroutine.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.SearchJob

	// sem bounds how many jobs search at once; the rest queue.
	sem  *semaphore.Weighted
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewJobStore allows maxConcurrent jobs to run together.
func NewJobStore(maxConcurrent int) *JobStore {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	s := &JobStore{
		jobs: make(map[string]*models.SearchJob),
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go s.expireLoop()
	return s
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (models.SearchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.SearchJob{}, false
	}
	return *job, true
}

func (s *JobStore) put(job *models.SearchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) finish(id, status string, resp *models.SearchResponse, detail *models.ErrorDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.Response = resp
		job.Error = detail
	}
}

// Close stops the expiry goroutine.
func (s *JobStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *JobStore) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.expire(s.now().Add(-1 * time.Hour).Unix())
		case <-s.stop:
			return
		}
	}
}

func (s *JobStore) expire(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt < cutoff {
			delete(s.jobs, id)
		}
	}
}

// PostSearchJob returns a handler for POST /api/v1/search/jobs.
// It validates the request, registers a job and searches in the background.
// Caller errors are rejected up front so the job id always refers to a
// search that ran.
func PostSearchJob(o *orchestrator.Orchestrator, store *JobStore, notifier *webhook.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()
		for _, id := range req.Sources {
			if _, ok := o.Registry().Get(id); !ok {
				respondError(c, models.NewScrapeError(models.ErrCodeUnknownSource, "unknown source "+string(id), nil))
				return
			}
		}

		job := &models.SearchJob{
			ID:        "search-" + uuid.NewString(),
			Status:    "processing",
			CreatedAt: store.now().Unix(),
		}
		store.put(job)

		go runSearchJob(o, store, notifier, job.ID, req)

		c.JSON(http.StatusAccepted, models.SearchJobResponse{
			ID:     job.ID,
			Status: job.Status,
		})
	}
}

// GetSearchJob returns a handler for GET /api/v1/search/jobs/:id.
func GetSearchJob(store *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "search job not found", nil))
			return
		}
		c.JSON(http.StatusOK, models.SearchJobStatusResponse{
			ID:       job.ID,
			Status:   job.Status,
			Response: job.Response,
			Error:    job.Error,
		})
	}
}

func runSearchJob(o *orchestrator.Orchestrator, store *JobStore, notifier *webhook.Notifier, id string, req models.SearchJobRequest) {
	ctx := context.Background()
	if err := store.sem.Acquire(ctx, 1); err != nil {
		return
	}
	resp, err := o.Search(ctx, req.Query, OptionsFrom(&req.SearchRequest))
	store.sem.Release(1)

	var (
		status string
		detail *models.ErrorDetail
	)
	if err != nil {
		status = "failed"
		detail = &models.ErrorDetail{Code: models.CodeOf(err, models.ErrCodeInternal), Message: err.Error()}
	} else {
		status = models.JobStatusFor(resp)
	}
	store.finish(id, status, resp, detail)

	slog.Info("search job finished",
		"id", id,
		"status", status,
		"query", req.Query,
	)

	if req.WebhookURL != "" && notifier != nil {
		notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventSearchCompleted,
			JobID:     id,
			Status:    status,
			Timestamp: store.now().Unix(),
			Data:      resp,
		})
	}
}
