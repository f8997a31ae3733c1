package http

import (
	"errors"
	"net/http"
	"strconv"

	"mailer/internal/app"
	"mailer/internal/domain"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	jobService app.JobService
	publisher  domain.JobPublisher
}

type EnqueueMessageRequest struct {
	JobID     int64  `json:"jobId" binding:"required"`
	JobName   string `json:"jobName"`
	AppID     int64  `json:"appId"`
	UserID    int64  `json:"userId"`
	SampleID  int64  `json:"sampleId"`
	Content   string `json:"content"`
	Recipient string `json:"receive" binding:"required"`
	SendMode  string `json:"super" binding:"required"`
}

func NewJobHandler(jobService app.JobService, publisher domain.JobPublisher) *JobHandler {
	return &JobHandler{jobService: jobService, publisher: publisher}
}

func (h *JobHandler) GetProgress(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	progress, err := h.jobService.GetProgress(c, jobID)
	if errors.Is(err, domain.ErrScheduleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, progress)
}

func (h *JobHandler) ListRecords(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = parsed
	}

	records, err := h.jobService.ListRecords(c, jobID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *JobHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.Stats())
}

func (h *JobHandler) EnqueueMessage(c *gin.Context) {
	var req EnqueueMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := domain.ParseSendMode(req.SendMode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message := &domain.Message{
		JobID:     req.JobID,
		JobName:   req.JobName,
		AppID:     req.AppID,
		UserID:    req.UserID,
		SampleID:  req.SampleID,
		Content:   req.Content,
		Recipient: req.Recipient,
		SendMode:  req.SendMode,
	}
	if err := h.publisher.Publish(c, message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, message)
}

func parseJobID(c *gin.Context) (int64, bool) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || jobID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job id must be a positive integer"})
		return 0, false
	}
	return jobID, true
}
