package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/menuforecast/internal/forecast/application"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/internal/forecast/scheduler"
	"github.com/wyfcoding/menuforecast/pkg/logger"
	"github.com/wyfcoding/pkg/response"
)

// JobRunner 由 scheduler.Scheduler 实现
type JobRunner interface {
	RunJob(ctx context.Context, name scheduler.JobName) (any, error)
	GetStats() scheduler.StatsSnapshot
}

// ForecastHandler HTTP 处理器
// 负责训练/生成的手动触发与预测查询
type ForecastHandler struct {
	app  *application.ForecastService
	jobs JobRunner
	// 作用于触发类路由，通常是限流
	triggerMiddlewares []gin.HandlerFunc
}

// NewForecastHandler 创建 HTTP 处理器实例
func NewForecastHandler(app *application.ForecastService, jobs JobRunner, triggerMiddlewares ...gin.HandlerFunc) *ForecastHandler {
	return &ForecastHandler{app: app, jobs: jobs, triggerMiddlewares: triggerMiddlewares}
}

// RegisterRoutes 注册路由
func (h *ForecastHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1/forecast")
	{
		api.GET("/predictions", h.GetPrediction)
		api.GET("/predictions/upcoming", h.ListUpcoming)
		api.GET("/accuracy", h.AccuracySummary)
		api.GET("/stats", h.Stats)

		trigger := api.Group("", h.triggerMiddlewares...)
		trigger.POST("/train", h.Train)
		trigger.POST("/predictions", h.GeneratePrediction)
		trigger.POST("/accuracy/refresh", h.RefreshAccuracy)
		trigger.POST("/jobs/:name/run", h.RunJob)
	}
}

// Health 存活检查
func (h *ForecastHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Train 重新聚合历史数据
func (h *ForecastHandler) Train(c *gin.Context) {
	n, err := h.app.Train(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to train", err)
		return
	}
	response.Success(c, gin.H{"buckets": n})
}

// GeneratePrediction 生成指定日期小时的预测，已存在时返回已有记录
func (h *ForecastHandler) GeneratePrediction(c *gin.Context) {
	var req application.GeneratePredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		h.fail(c, "Invalid date", err)
		return
	}

	dto, created, err := h.app.Generate(c.Request.Context(), date, *req.Hour)
	if err != nil {
		h.fail(c, "Failed to generate prediction", err, "date", req.Date, "hour", *req.Hour)
		return
	}
	if created {
		response.SuccessWithStatus(c, http.StatusCreated, "created", dto)
		return
	}
	response.Success(c, dto)
}

// GetPrediction 查询指定日期小时的预测
func (h *ForecastHandler) GetPrediction(c *gin.Context) {
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		h.fail(c, "Invalid date", err)
		return
	}
	hour, err := strconv.Atoi(c.Query("hour"))
	if err != nil {
		h.fail(c, "Invalid hour", &domain.ValidationError{Field: "hour", Reason: "must be an integer"})
		return
	}

	dto, err := h.app.GetPrediction(c.Request.Context(), date, hour)
	if err != nil {
		h.fail(c, "Failed to get prediction", err, "date", c.Query("date"), "hour", hour)
		return
	}
	response.Success(c, dto)
}

// ListUpcoming 接下来若干小时的预测
func (h *ForecastHandler) ListUpcoming(c *gin.Context) {
	list, err := h.app.ListUpcoming(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list upcoming predictions", err)
		return
	}
	response.Success(c, list)
}

// AccuracySummary 准确率汇总
func (h *ForecastHandler) AccuracySummary(c *gin.Context) {
	recent, err := strconv.Atoi(c.DefaultQuery("recent", "10"))
	if err != nil || recent < 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid recent", "")
		return
	}
	summary, err := h.app.AccuracySummary(c.Request.Context(), recent)
	if err != nil {
		h.fail(c, "Failed to summarize accuracy", err)
		return
	}
	response.Success(c, summary)
}

// RefreshAccuracy 立即执行一次准确率回填
func (h *ForecastHandler) RefreshAccuracy(c *gin.Context) {
	h.runJob(c, scheduler.JobAccuracyRefresh)
}

// RunJob 按名称立即执行调度任务
func (h *ForecastHandler) RunJob(c *gin.Context) {
	h.runJob(c, scheduler.JobName(c.Param("name")))
}

// Stats 调度统计
func (h *ForecastHandler) Stats(c *gin.Context) {
	response.Success(c, h.jobs.GetStats())
}

func (h *ForecastHandler) runJob(c *gin.Context, name scheduler.JobName) {
	res, err := h.jobs.RunJob(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "Failed to run job", err, "job", name)
		return
	}
	response.Success(c, gin.H{"job": name, "result": res})
}

func (h *ForecastHandler) parseDate(s string) (time.Time, error) {
	date, err := time.ParseInLocation(domain.DateLayout, s, h.app.Location())
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return date, nil
}

// fail 将领域错误映射为 HTTP 状态码
func (h *ForecastHandler) fail(c *gin.Context, msg string, err error, args ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, append(args, "error", err)...)
	} else {
		logger.Debug(c.Request.Context(), msg, append(args, "error", err)...)
	}
	response.ErrorWithStatus(c, status, err.Error(), "")
}

func statusFor(err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPredictionNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrJobInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
