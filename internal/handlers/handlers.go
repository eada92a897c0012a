package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/plantdx/internal/analyzer"
	"github.com/example/plantdx/internal/flash"
	"github.com/example/plantdx/internal/logging"
	"github.com/example/plantdx/internal/upload"
	"github.com/example/plantdx/internal/usecase"
)

// multipartSlack is allowed on top of the file limit for boundaries and part headers.
const multipartSlack = 1 << 20

//go:embed templates/*.html
var templatesFS embed.FS

// Diagnoser runs one submission through storage and analysis.
type Diagnoser interface {
	Diagnose(ctx context.Context, file *multipart.FileHeader) (*usecase.Diagnosis, error)
}

// MetricsReporter exposes in-process diagnosis counters.
type MetricsReporter interface {
	GetMetricsSummary() usecase.MetricsSummary
}

// Dependencies is everything the routes need. Metrics is optional.
type Dependencies struct {
	Diagnoser      Diagnoser
	Metrics        MetricsReporter
	Flash          flash.Store
	Logger         *zap.Logger
	PublicBaseURL  string
	UploadDir      string
	UploadPrefix   string
	MaxUploadBytes int64
}

type indexPage struct {
	Flash     flash.Data
	UploadURL string
	FieldName string
}

type routes struct {
	deps   Dependencies
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	router.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	r := &routes{deps: deps, logger: deps.Logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics/summary", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Metrics.GetMetricsSummary())
		})
	}
	router.GET("/", r.index)
	router.GET("/home", r.index)
	router.POST("/upload", r.upload)
	router.Static("/"+strings.Trim(deps.UploadPrefix, "/"), deps.UploadDir)
}

func (r *routes) index(c *gin.Context) {
	data, err := r.deps.Flash.Pop(c)
	if err != nil {
		r.opLogger(c, "http.index").Warn("failed to read flash", zap.Error(err))
	}
	r.renderIndex(c, http.StatusOK, data)
}

func (r *routes) renderIndex(c *gin.Context, status int, data flash.Data) {
	c.HTML(status, "index.html", indexPage{
		Flash:     data,
		UploadURL: "/upload",
		FieldName: upload.FieldName,
	})
}

func (r *routes) upload(c *gin.Context) {
	async := wantsJSON(c)
	opLogger := r.opLogger(c, "http.upload")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.deps.MaxUploadBytes+multipartSlack)
	file, err := c.FormFile(upload.FieldName)
	if err != nil {
		if isBodyTooLarge(err) {
			r.rejected(c, async, upload.TooLarge(upload.FieldName, r.deps.MaxUploadBytes))
			return
		}
		file = nil
	}

	d, err := r.deps.Diagnoser.Diagnose(c.Request.Context(), file)
	if err != nil {
		var vErr *upload.ValidationError
		var cfgErr *analyzer.ConfigurationError
		switch {
		case errors.As(err, &vErr):
			r.rejected(c, async, vErr)
		case errors.As(err, &cfgErr):
			opLogger.Error("analyzer unavailable", zap.Error(err), zap.String("failed_operation", logging.OperationOf(err)))
			r.failed(c, async, "Analyzer unavailable")
		default:
			opLogger.Error("upload failed", zap.Error(err), zap.String("failed_operation", logging.OperationOf(err)))
			r.failed(c, async, "Internal server error")
		}
		return
	}

	imageURL := r.imageURL(c, d.Image.PublicPath)

	if !d.Succeeded() {
		if async {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Analyzer failed",
				"details": d.Result.RawOutput,
			})
			return
		}
		r.redirectWith(c, flash.Data{
			ImageURL: imageURL,
			Error:    "Analyzer failed",
			Details:  d.Result.RawOutput,
		})
		return
	}

	if async {
		c.JSON(http.StatusOK, gin.H{
			"imageUrl": imageURL,
			"analysis": d.Result.Text,
		})
		return
	}
	r.redirectWith(c, flash.Data{ImageURL: imageURL, Analysis: d.Result.Text})
}

func (r *routes) rejected(c *gin.Context, async bool, vErr *upload.ValidationError) {
	if async {
		c.JSON(vErr.Status, gin.H{
			"error":  vErr.Reason,
			"errors": gin.H{vErr.Field: []string{vErr.Reason}},
		})
		return
	}
	r.redirectWith(c, flash.Data{Errors: []string{vErr.Reason}})
}

func (r *routes) failed(c *gin.Context, async bool, message string) {
	if async {
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
		return
	}
	r.renderIndex(c, http.StatusInternalServerError, flash.Data{Errors: []string{message}})
}

func (r *routes) redirectWith(c *gin.Context, data flash.Data) {
	if err := r.deps.Flash.Put(c, data); err != nil {
		r.opLogger(c, "http.flash").Error("failed to store flash", zap.Error(err))
	}
	c.Redirect(http.StatusFound, "/")
}

// imageURL makes publicPath absolute, preferring the configured base URL over the request host.
func (r *routes) imageURL(c *gin.Context, publicPath string) string {
	base := r.deps.PublicBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(publicPath, "/")
}

func (r *routes) opLogger(c *gin.Context, operation string) *zap.Logger {
	return logging.WithOperation(r.logger, operation, logging.RequestIDFromContext(c.Request.Context()))
}

// wantsJSON reports whether the client asked for a JSON answer instead of a page.
func wantsJSON(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	if c.GetHeader("Accept") == "" {
		return false
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
