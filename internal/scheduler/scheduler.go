package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dev365-portal/internal/logging"
)

// JobFunc 定时任务函数
type JobFunc func(ctx context.Context) error

type job struct {
	spec    string
	fn      JobFunc
	entryID cron.EntryID
	lastRun time.Time
	lastErr error
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron       *cron.Cron
	tasks      map[string]*job // 任务名 -> 任务
	tasksMutex sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	timeout    time.Duration
}

// NewScheduler 创建新的定时任务调度器，timeout为单次任务的最长执行时间
func NewScheduler(timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout <= 0 {
		timeout = time.Minute
	}

	// 创建cron实例，支持秒级精度；上一次未结束时跳过本次
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:    c,
		tasks:   make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// AddJob 注册定时任务，spec为空时不注册
func (s *Scheduler) AddJob(name, spec string, fn JobFunc) error {
	if spec == "" {
		return nil
	}

	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{spec: spec, fn: fn}
	entryID, err := s.cron.AddFunc(spec, func() { s.run(name) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	j.entryID = entryID
	s.tasks[name] = j
	return nil
}

// Start 启动定时任务调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logging.DefaultLogger.Info("Scheduler started with %d jobs", len(s.ListTasks()))
}

// Stop 停止定时任务调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logging.DefaultLogger.Info("Scheduler stopped")
}

// RunNow 立即执行一次任务
func (s *Scheduler) RunNow(name string) error {
	s.tasksMutex.RLock()
	_, exists := s.tasks[name]
	s.tasksMutex.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	return s.run(name)
}

func (s *Scheduler) run(name string) error {
	s.tasksMutex.RLock()
	j := s.tasks[name]
	s.tasksMutex.RUnlock()

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)

	s.tasksMutex.Lock()
	j.lastRun = start
	j.lastErr = err
	s.tasksMutex.Unlock()

	if err != nil {
		logging.DefaultLogger.Error("Job %s failed: %v", name, err)
		return err
	}
	logging.DefaultLogger.Debug("Job %s completed in %s", name, time.Since(start))
	return nil
}

// GetTaskStatus 获取任务状态：是否已注册、下次执行时间、上次错误
func (s *Scheduler) GetTaskStatus(name string) (bool, string, error) {
	s.tasksMutex.RLock()
	j, exists := s.tasks[name]
	s.tasksMutex.RUnlock()
	if !exists {
		return false, "not scheduled", nil
	}

	entry := s.cron.Entry(j.entryID)
	if !entry.Valid() {
		return false, "not found", nil
	}
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	return true, entry.Next.Format("2006-01-02 15:04:05"), j.lastErr
}

// ListTasks 列出所有定时任务及下次执行时间
func (s *Scheduler) ListTasks() map[string]string {
	result := make(map[string]string)

	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	for name, j := range s.tasks {
		entry := s.cron.Entry(j.entryID)
		if entry.Next.IsZero() {
			result[name] = "pending"
			continue
		}
		result[name] = entry.Next.Format("2006-01-02 15:04:05")
	}
	return result
}
