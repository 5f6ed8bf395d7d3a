package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/colegio-mx/backoffice/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue       *Queue
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOBQUEUE_WORKER_COUNT", "5")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount), // Workers shared by reconcile + mail jobs
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Scheduled reconciliation sweep. Default matches the freshness window
	// so payments that missed their webhook converge within one cycle.
	sweepInterval := 120 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("RECONCILE_SWEEP_INTERVAL_MINUTES", "120")); err == nil && v > 0 {
		sweepInterval = time.Duration(v) * time.Minute
	}
	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker(m.stopCh, sweepInterval)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	// Signal workers to stop. The channel stays set until the next Start so
	// a worker between select iterations still sees the close.
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// sweepWorker periodically enqueues a reconciliation sweep. The sweep runs
// through the queue so it shares retry semantics and stats with other jobs.
// The stop channel is passed in so Stop can recycle m.stopCh without racing
// the worker's select loop.
func (m *Manager) sweepWorker(stopCh <-chan struct{}, interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile sweep worker (interval: %s)", interval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if err := m.enqueueSweep(); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueuing reconcile sweep: %v", err)
			}
		}
	}
}

func (m *Manager) enqueueSweep() error {
	_, err := m.queue.EnqueueJob(JobTypeReconcileSweep, map[string]interface{}{})
	return err
}

// TriggerSweep enqueues a reconciliation sweep outside the schedule (admin use).
func (m *Manager) TriggerSweep() error {
	return m.enqueueSweep()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
