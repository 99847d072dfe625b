package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/internal/shipment/repository"
)

// maxExtractInputLen bounds the text sent to the AI provider to stay under
// token limits.
const maxExtractInputLen = 8000

// ExtractJob represents a job to extract structured shipment data for a group
type ExtractJob struct {
	UserID    string
	GroupCode string
}

// ExtractWorkerService handles background AI extraction of shipment data
type ExtractWorkerService struct {
	messageRepo repository.MessageRepository
	summaryRepo repository.SummaryRepository
	aiService   interface {
		ExtractShipmentData(ctx context.Context, text string) (string, error)
	}
	eventService EventService
	jobQueue     chan ExtractJob
	workerWg     sync.WaitGroup
	workerCount  int
	started      bool
	mu           sync.Mutex
}

// NewExtractWorkerService creates a new extraction worker service
func NewExtractWorkerService(
	messageRepo repository.MessageRepository,
	summaryRepo repository.SummaryRepository,
	workerCount int,
) *ExtractWorkerService {
	if workerCount <= 0 {
		workerCount = 3
	}

	return &ExtractWorkerService{
		messageRepo: messageRepo,
		summaryRepo: summaryRepo,
		jobQueue:    make(chan ExtractJob, 500),
		workerCount: workerCount,
	}
}

// SetAIService sets the AI provider used for extraction
func (s *ExtractWorkerService) SetAIService(svc interface {
	ExtractShipmentData(ctx context.Context, text string) (string, error)
}) {
	s.aiService = svc
}

// SetEventService allows wiring EventService after creation
func (s *ExtractWorkerService) SetEventService(svc EventService) {
	s.eventService = svc
}

// Start starts the extraction workers
func (s *ExtractWorkerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	for i := 0; i < s.workerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}
	s.started = true
	log.Printf("[ExtractWorker] Started %d workers", s.workerCount)
}

// Stop stops all workers gracefully
func (s *ExtractWorkerService) Stop() {
	close(s.jobQueue)
	s.workerWg.Wait()
	log.Println("[ExtractWorker] All workers stopped")
}

// Enqueue schedules a group for extraction. Drops the job with a warning if
// the queue is full rather than blocking a sync.
func (s *ExtractWorkerService) Enqueue(job ExtractJob) {
	select {
	case s.jobQueue <- job:
	default:
		log.Printf("[ExtractWorker] Queue full, dropping job for group %s", job.GroupCode)
	}
}

// worker processes extraction jobs from the queue
func (s *ExtractWorkerService) worker(id int) {
	defer s.workerWg.Done()

	for job := range s.jobQueue {
		s.processJob(job)
	}

	log.Printf("[ExtractWorker] Worker %d stopped", id)
}

// processJob runs one extraction: marks the group's unprocessed messages as
// processing, calls the AI provider over the combined text, caches the
// result and settles every message to processed or failed.
func (s *ExtractWorkerService) processJob(job ExtractJob) {
	if s.aiService == nil {
		return
	}

	messages, err := s.messageRepo.GetMessagesByGroup(job.UserID, job.GroupCode)
	if err != nil {
		log.Printf("[ExtractWorker] Failed to load group %s: %v", job.GroupCode, err)
		return
	}

	var pending []shipmentdomain.ShipmentEmail
	for _, m := range messages {
		if m.Status == shipmentdomain.StatusNotProcessed || m.Status == shipmentdomain.StatusFailed {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return
	}

	s.markAll(pending, shipmentdomain.StatusProcessing)

	summary, err := s.aiService.ExtractShipmentData(context.Background(), combineMessages(messages))
	if err != nil {
		log.Printf("[ExtractWorker] Extraction failed for group %s: %v", job.GroupCode, err)
		s.markAll(pending, shipmentdomain.StatusFailed)
		s.sendEvent(job.UserID, "shipment_extraction_failed", map[string]interface{}{
			"group_code": job.GroupCode,
		})
		return
	}

	if err := s.summaryRepo.SaveSummary(job.UserID, job.GroupCode, summary); err != nil {
		log.Printf("[ExtractWorker] Failed to cache summary for group %s: %v", job.GroupCode, err)
	}
	s.markAll(pending, shipmentdomain.StatusProcessed)
	s.sendEvent(job.UserID, "shipment_extraction_completed", map[string]interface{}{
		"group_code": job.GroupCode,
		"summary":    summary,
	})
}

func (s *ExtractWorkerService) markAll(messages []shipmentdomain.ShipmentEmail, status shipmentdomain.ProcessingStatus) {
	for _, m := range messages {
		if err := s.messageRepo.UpdateStatus(m.ID, status); err != nil {
			log.Printf("[ExtractWorker] Failed to update status for %s: %v", m.ID, err)
		}
	}
}

func (s *ExtractWorkerService) sendEvent(userID, eventType string, payload interface{}) {
	if s.eventService == nil {
		return
	}
	s.eventService.SendToUser(userID, eventType, payload)
}

// combineMessages flattens a group's messages into one prompt body, oldest
// first, truncated to the provider input limit.
func combineMessages(messages []shipmentdomain.ShipmentEmail) string {
	var b strings.Builder
	for i, m := range messages {
		fmt.Fprintf(&b, "--- Message %d ---\nFrom: %s\nDate: %s\nSubject: %s\n\n%s\n\n",
			i+1, m.From, m.Date.Format("2006-01-02 15:04"), m.Subject, m.Body)
		if b.Len() > maxExtractInputLen {
			break
		}
	}
	text := b.String()
	if len(text) > maxExtractInputLen {
		text = text[:maxExtractInputLen]
	}
	return text
}
