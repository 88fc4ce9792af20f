// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the manual mail check and the review workflow over
// HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AyushRauniyar/RFP-Management-System/internal/ingest"
	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/review"
)

// MailChecker runs a manual mail check.
type MailChecker interface {
	CheckNow(ctx context.Context) ingest.CheckResult
	Polling() bool
}

// Reviewer is the review workflow.
type Reviewer interface {
	Accept(ctx context.Context, conversationID, reviewer string) (*models.Proposal, error)
	Reject(ctx context.Context, conversationID, reason, reviewer string) (*models.Conversation, error)
	Stats(ctx context.Context, rfpID string) (review.Stats, error)
	Evaluate(ctx context.Context, rfpID string) (*models.RFP, []models.Proposal, error)
}

// ConversationLister reads conversations for an RFP.
type ConversationLister interface {
	ListConversations(ctx context.Context, rfpID string) ([]models.Conversation, error)
}

// Pinger is a dependency health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerState reports whether scheduled polling is active.
type SchedulerState interface {
	Running() bool
}

// Config wires the server. Redis and Scheduler are optional.
type Config struct {
	Checker       MailChecker
	Reviewer      Reviewer
	Conversations ConversationLister
	Store         Pinger
	Redis         Pinger
	Scheduler     SchedulerState
}

// Server holds the HTTP routes.
type Server struct {
	cfg    Config
	router *gin.Engine
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: r}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v := s.router.Group("/api")
	v.POST("/mail/check", s.handleMailCheck)
	// :id is the RFP ID for list and stats and the conversation ID for
	// accept and reject. The router needs one wildcard name per segment.
	v.GET("/conversations/:id", s.handleListConversations)
	v.GET("/conversations/:id/stats", s.handleStats)
	v.POST("/conversations/:id/accept", s.handleAccept)
	v.POST("/conversations/:id/reject", s.handleReject)
	v.POST("/proposals/evaluate/:rfpId", s.handleEvaluate)
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Serve binds addr immediately, then serves until ctx is cancelled. The
// returned channel closes once the listener is accepting.
func Serve(ctx context.Context, addr string, h http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind http address %s: %w", addr, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
