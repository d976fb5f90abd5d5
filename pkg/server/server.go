/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package server bootstraps the process: job store, queue, primary
// store, billing, cleanup, the embedded worker, and the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/billing"
	"github.com/PoetCoderJun/video-auto-cut/pkg/cleanup"
	"github.com/PoetCoderJun/video-auto-cut/pkg/codesheet"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	"github.com/PoetCoderJun/video-auto-cut/pkg/database/client"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/oss"
	"github.com/PoetCoderJun/video-auto-cut/pkg/pipeline"
	"github.com/PoetCoderJun/video-auto-cut/pkg/queue"
	"github.com/PoetCoderJun/video-auto-cut/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// Options selects what this process runs.
type Options struct {
	// WorkerOnly skips the HTTP API and runs only the task loop.
	WorkerOnly bool
	// Once drains at most one task, then exits. Implies WorkerOnly.
	Once bool
}

type Server struct {
	opts Options

	store   *jobstore.Store
	queue   *queue.Queue
	db      *client.Client
	billing *billing.Service
	sweeper *cleanup.Sweeper
	worker  *worker.Worker
	handler *handlers.Handler

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	isInited   bool
}

func NewServer(opts Options) (*Server, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &Server{opts: opts, ctx: ctx, cancel: cancel}
	if err := s.init(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)

	workDir := config.GetWorkDir()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir %s: %v", workDir, err)
	}
	s.store = jobstore.New(workDir)

	var err error
	if s.queue, err = queue.Open(workDir); err != nil {
		return fmt.Errorf("failed to open task queue: %v", err)
	}

	if s.db = client.NewClient(); s.db == nil {
		return fmt.Errorf("failed to open primary store")
	}

	sheet := codesheet.New(config.GetCouponSheetSource(), config.GetCouponSheetCacheTTL())
	s.billing = billing.New(s.db, sheet)
	s.sweeper = cleanup.New(s.store)
	s.worker = worker.New(s.store, s.queue, s.billing, pipeline.NewCommandDriver(), s.sweeper)
	s.handler = handlers.NewHandler(s.store, s.queue, s.billing, oss.NewClient(), s.sweeper)

	s.isInited = true
	return nil
}

func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the server first")
		return
	}
	defer s.cancel()

	s.sweeper.CleanupOnStartup()

	if s.opts.Once {
		if ran := s.worker.RunOnce(s.ctx); !ran {
			klog.Info("queue empty, nothing to run")
		}
		s.Stop()
		return
	}
	if s.opts.WorkerOnly {
		s.worker.Run(s.ctx)
		s.Stop()
		return
	}

	if config.IsEmbeddedWorkerEnabled() {
		go s.worker.Run(s.ctx)
	}
	go func() {
		if err := s.startHttpServer(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http server")
			s.cancel()
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "failed to shutdown http server")
		}
	}
	if err := s.queue.Close(); err != nil {
		klog.ErrorS(err, "failed to close task queue")
	}
	if err := s.db.Close(); err != nil {
		klog.ErrorS(err, "failed to close primary store")
	}
	klog.Info("server is stopped")
	klog.Flush()
}

func (s *Server) startHttpServer() error {
	port := config.GetServerPort()
	if port <= 0 {
		return fmt.Errorf("the server port is not defined")
	}
	engine := handlers.InitHttpHandlers(s.handler)
	s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: engine}
	klog.Infof("http server listen port: %d", port)
	return s.httpServer.ListenAndServe()
}
