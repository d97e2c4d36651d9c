package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UploadJob is one pending media upload for a receipt whose metadata write
// already succeeded.
type UploadJob struct {
	ReceiptID   int64
	ContentType string
	Data        []byte
	Attempt     int
}

// Uploader retries failed media uploads in the background. The synchronous
// first attempt happens in the workflow; anything that fails there lands in
// this queue so the metadata write never waits on blob storage.
type Uploader struct {
	store       BlobStorage
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration

	jobs   chan UploadJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// OnStored, when set, is called after a retried upload finally lands,
	// so the receipt's media reference can be recorded.
	OnStored func(ctx context.Context, receiptID int64, ref string)
}

func NewUploader(store BlobStorage, workers, queueSize int, logger *slog.Logger) *Uploader {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		store:       store,
		logger:      logger,
		maxAttempts: 3,
		backoff:     5 * time.Second,
		jobs:        make(chan UploadJob, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	u.once.Do(func() {
		for i := 0; i < workers; i++ {
			u.wg.Add(1)
			go u.worker(i)
		}
		logger.Info("media uploader started", "workers", workers, "queue_size", queueSize)
	})

	return u
}

// Enqueue schedules a retry. Returns false when the queue is full; the
// caller then reports the upload as lost rather than blocking.
func (u *Uploader) Enqueue(job UploadJob) bool {
	select {
	case u.jobs <- job:
		return true
	default:
		u.logger.Warn("upload queue full, dropping job", "receipt_id", job.ReceiptID)
		return false
	}
}

func (u *Uploader) worker(id int) {
	defer u.wg.Done()

	for {
		select {
		case job := <-u.jobs:
			u.process(job)
		case <-u.ctx.Done():
			u.logger.Debug("upload worker shutting down", "worker_id", id)
			return
		}
	}
}

func (u *Uploader) process(job UploadJob) {
	job.Attempt++

	ref, err := u.store.Save(u.ctx, job.ReceiptID, job.ContentType, job.Data)
	if err == nil {
		u.logger.Info("media upload recovered", "receipt_id", job.ReceiptID, "attempt", job.Attempt)
		if u.OnStored != nil {
			u.OnStored(u.ctx, job.ReceiptID, ref)
		}
		return
	}

	if job.Attempt >= u.maxAttempts {
		u.logger.Error("media upload abandoned",
			"receipt_id", job.ReceiptID,
			"attempts", job.Attempt,
			"error", err)
		return
	}

	u.logger.Warn("media upload retry failed, rescheduling",
		"receipt_id", job.ReceiptID,
		"attempt", job.Attempt,
		"error", err)

	go func() {
		select {
		case <-time.After(u.backoff):
			u.Enqueue(job)
		case <-u.ctx.Done():
		}
	}()
}

// Stop drains the workers. Queued jobs that have not started are dropped.
func (u *Uploader) Stop() {
	u.cancel()
	u.wg.Wait()
}
