// Package task 以同步或协程池方式执行互不依赖的作业
package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"PowerPlantCube/src/metrics"

	"github.com/alitto/pond/v2"
)

const defaultWorkers = 6

// Job 一个独立作业，重复执行结果相同
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome 作业执行结果，Err 不为空表示该作业失败
type Outcome struct {
	Job      string
	Err      error
	Duration time.Duration
}

// Handle 已提交作业的句柄
type Handle struct {
	job     string
	result  pond.Result[Outcome]
	outcome Outcome
}

// Wait 阻塞直到作业结束
func (h *Handle) Wait() (Outcome, error) {
	if h.result == nil {
		return h.outcome, h.outcome.Err
	}
	outcome, err := h.result.Wait()
	if err != nil {
		// 池被停止或任务未能执行
		outcome = Outcome{Job: h.job, Err: err}
	}
	return outcome, outcome.Err
}

type Dispatcher struct {
	log   *slog.Logger
	async bool
	pool  pond.ResultPool[Outcome]
}

// NewDispatcher async 为 false 时作业在调用方协程上依次执行
func NewDispatcher(log *slog.Logger, async bool, workers int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{log: log, async: async}
	if async {
		if workers <= 0 {
			workers = defaultWorkers
		}
		d.pool = pond.NewResultPool[Outcome](workers)
	}
	return d
}

func (d *Dispatcher) Async() bool { return d.async }

func (d *Dispatcher) Submit(ctx context.Context, job Job) *Handle {
	if !d.async {
		return &Handle{job: job.Name, outcome: d.execute(ctx, job)}
	}
	return &Handle{
		job: job.Name,
		result: d.pool.Submit(func() Outcome {
			return d.execute(ctx, job)
		}),
	}
}

// RunAll 提交全部作业并等待，结果顺序与 jobs 一致
func (d *Dispatcher) RunAll(ctx context.Context, jobs []Job) []Outcome {
	handles := make([]*Handle, len(jobs))
	for i, job := range jobs {
		handles[i] = d.Submit(ctx, job)
	}
	outcomes := make([]Outcome, len(jobs))
	for i, h := range handles {
		outcomes[i], _ = h.Wait()
	}
	return outcomes
}

// Close 等待已提交的作业结束
func (d *Dispatcher) Close() {
	if d.pool != nil {
		d.pool.StopAndWait()
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) (outcome Outcome) {
	start := time.Now()
	outcome.Job = job.Name
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("job panicked", "job", job.Name, "panic", r, "stack", string(debug.Stack()))
			outcome.Err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		outcome.Duration = time.Since(start)
		metrics.JobsTotal.WithLabelValues(job.Name, metrics.Status(outcome.Err)).Inc()
		if outcome.Err != nil {
			d.log.Error("job failed", "job", job.Name, "error", outcome.Err, "duration", outcome.Duration)
		} else {
			d.log.Info("job finished", "job", job.Name, "duration", outcome.Duration)
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome.Err = fmt.Errorf("job %s not started: %w", job.Name, err)
		return outcome
	}
	outcome.Err = job.Run(ctx)
	return outcome
}
