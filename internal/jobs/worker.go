package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker provides APIs to register handlers and control the background worker lifecycle.
type Worker interface {
	RegisterHandler(taskType string, handler asynq.Handler)
	Start() error
	Shutdown()
}

type worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

var _ Worker = (*worker)(nil)

// NewWorker constructs a Worker backed by an asynq.Server instance.
func NewWorker(redisOpt asynq.RedisConnOpt, queues map[string]int, concurrency int, log *slog.Logger) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Queues:         queues,
		Concurrency:    concurrency,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Logger:         &asynqLogger{log: log},
	})

	mux := asynq.NewServeMux()

	return &worker{
		server: server,
		mux:    mux,
		log:    log,
	}
}

// RegisterHandler wires a task type to the provided handler.
func (w *worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Start begins processing tasks without blocking. Stop it with Shutdown.
func (w *worker) Start() error {
	if w.log != nil {
		w.log.InfoContext(context.Background(), "jobs worker: starting processing loop")
	}

	return w.server.Start(w.mux)
}

// Shutdown gracefully stops the worker.
func (w *worker) Shutdown() {
	if w.log != nil {
		w.log.InfoContext(context.Background(), "jobs worker: shutting down")
	}

	w.server.Shutdown()
}

// asynqLogger routes asynq's internal logging into slog.
type asynqLogger struct {
	log *slog.Logger
}

func (l *asynqLogger) logger() *slog.Logger {
	if l.log == nil {
		return slog.Default()
	}
	return l.log
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger().Debug("asynq", slog.Any("args", args)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger().Info("asynq", slog.Any("args", args)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger().Warn("asynq", slog.Any("args", args)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger().Error("asynq", slog.Any("args", args)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger().Error("asynq fatal", slog.Any("args", args))
}
