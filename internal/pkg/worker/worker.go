package worker

import (
	"context"
	"sync"
	"time"

	"review_board/pkg/metrics"

	"go.uber.org/zap"
)

// Deleter 删除对象存储中的对象
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// OrphanTask 上传成功但未被任何记录引用的对象
type OrphanTask struct {
	Key   string
	Retry int // 重试次数
}

// WorkerPool 孤儿对象清理协程池
type WorkerPool struct {
	TaskQueue  chan OrphanTask
	RetryQueue chan OrphanTask // 重试队列
	Store      Deleter
	WorkerNum  int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 每次重试递增的等待时间
	Timeout    time.Duration // 单次删除超时

	log     *zap.Logger
	metrics *metrics.MetricsCollector
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewWorkerPool(store Deleter, workerNum int, bufferSize int, log *zap.Logger, m *metrics.MetricsCollector) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize < 2 {
		bufferSize = 2
	}
	return &WorkerPool{
		TaskQueue:  make(chan OrphanTask, bufferSize),
		RetryQueue: make(chan OrphanTask, bufferSize/2),
		Store:      store,
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
		RetryDelay: time.Second,
		Timeout:    10 * time.Second,
		log:        log,
		metrics:    m,
		quit:       make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("orphan sweeper started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止所有协程，队列中剩余的任务被丢弃
func (p *WorkerPool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.TaskQueue:
			p.handle(id, task)
		}
	}
}

func (p *WorkerPool) handle(id int, task OrphanTask) {
	err := p.processTask(task)
	if err == nil {
		p.record("deleted")
		return
	}

	p.log.Warn("failed to delete orphan object",
		zap.Int("worker", id), zap.String("key", task.Key), zap.Int("attempt", task.Retry+1), zap.Error(err))

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry < p.MaxRetry {
		task.Retry++
		select {
		case p.RetryQueue <- task:
			return
		default:
			p.log.Warn("retry queue full", zap.String("key", task.Key))
		}
	}
	p.logFailedTask(task, err)
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.RetryDelay)
			select {
			case <-p.quit:
				timer.Stop()
				return
			case <-timer.C:
			}

			select {
			case p.TaskQueue <- task:
			default:
				p.logFailedTask(task, nil)
			}
		}
	}
}

func (p *WorkerPool) processTask(task OrphanTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()
	return p.Store.Delete(ctx, task.Key)
}

func (p *WorkerPool) logFailedTask(task OrphanTask, err error) {
	p.record("dropped")
	p.log.Error("orphan object left in storage",
		zap.String("key", task.Key), zap.Int("attempts", task.Retry+1), zap.Error(err))
}

func (p *WorkerPool) record(status string) {
	if p.metrics != nil {
		p.metrics.RecordOrphan(status)
	}
}

// AddTask 非阻塞入队，队列满时直接记录为遗留对象
func (p *WorkerPool) AddTask(key string) {
	// 停止后队列可能仍有空位，先单独判断
	select {
	case <-p.quit:
		p.logFailedTask(OrphanTask{Key: key}, nil)
		return
	default:
	}

	select {
	case p.TaskQueue <- OrphanTask{Key: key}:
		p.record("queued")
	default:
		p.logFailedTask(OrphanTask{Key: key}, nil)
	}
}
