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

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AyushRauniyar/RFP-Management-System/internal/ingest"
	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/review"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

type acceptRequest struct {
	Reviewer string `json:"reviewer"`
}

type rejectRequest struct {
	Reason   string `json:"reason"`
	Reviewer string `json:"reviewer"`
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "ok"}

	if err := s.cfg.Store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if s.cfg.Redis != nil {
		body["redis"] = "ok"
		if err := s.cfg.Redis.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["redis"] = err.Error()
		}
	}
	if s.cfg.Scheduler != nil {
		body["scheduler"] = s.cfg.Scheduler.Running()
	}
	body["polling"] = s.cfg.Checker.Polling()

	c.JSON(status, body)
}

func (s *Server) handleMailCheck(c *gin.Context) {
	res := s.cfg.Checker.CheckNow(c.Request.Context())
	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case errors.Is(res.Err, ingest.ErrPollInProgress):
		c.JSON(http.StatusConflict, res)
	default:
		slog.Error("manual mail check failed", "error", res.Err)
		c.JSON(http.StatusInternalServerError, res)
	}
}

func (s *Server) handleListConversations(c *gin.Context) {
	convs, err := s.cfg.Conversations.ListConversations(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.cfg.Reviewer.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleAccept(c *gin.Context) {
	var req acceptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	p, err := s.cfg.Reviewer.Accept(c.Request.Context(), c.Param("id"), req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quote accepted", "proposal": p})
}

func (s *Server) handleReject(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conv, err := s.cfg.Reviewer.Reject(c.Request.Context(), c.Param("id"), req.Reason, req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quote rejected", "conversation": conv})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	rfp, proposals, err := s.cfg.Reviewer.Evaluate(c.Request.Context(), c.Param("rfpId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Proposals evaluated successfully",
		"rfp":       rfp,
		"proposals": proposals,
	})
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrAlreadyAccepted):
		status = http.StatusConflict
	case errors.Is(err, review.ErrNothingToEvaluate):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
