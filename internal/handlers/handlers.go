package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/example/face-detect/internal/annotation"
	"github.com/example/face-detect/internal/auth"
	"github.com/example/face-detect/internal/logging"
	"github.com/example/face-detect/internal/usecase"
	"github.com/example/face-detect/internal/view"
)

// RequestIDHeader carries the per-request identifier.
const RequestIDHeader = "X-Request-ID"

// maxCaptionFields bounds the image<i> form fields read from one submission.
const maxCaptionFields = 1000

type submitImageRequest struct {
	ImageTitle string `json:"imageTitle" form:"imageTitle" binding:"required"`
	ImagePath  string `json:"imagePath" form:"imagePath" binding:"required"`
}

type saveCaptionsRequest struct {
	Captions []string `json:"captions"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.AnnotationUseCase, authMiddleware gin.HandlerFunc) {
	router.Use(requestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	docs := router.Group("/documents/:documentID", authMiddleware)

	docs.GET("", func(c *gin.Context) {
		userID, documentID := identity(c)
		snap, err := uc.View(c.Request.Context(), userID, documentID)
		respond(c, snap, err)
	})

	docs.POST("/modal", func(c *gin.Context) {
		userID, documentID := identity(c)
		snap, err := uc.OpenModal(c.Request.Context(), userID, documentID)
		respond(c, snap, err)
	})

	docs.DELETE("/modal", func(c *gin.Context) {
		userID, documentID := identity(c)
		snap, err := uc.CloseModal(c.Request.Context(), userID, documentID)
		respond(c, snap, err)
	})

	docs.POST("/image", func(c *gin.Context) {
		var req submitImageRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imageTitle and imagePath are required"})
			return
		}
		if strings.TrimSpace(req.ImageTitle) == "" || strings.TrimSpace(req.ImagePath) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imageTitle and imagePath are required"})
			return
		}

		userID, documentID := identity(c)
		snap, err := uc.SubmitImage(c.Request.Context(), userID, documentID, req.ImageTitle, req.ImagePath)
		respond(c, snap, err)
	})

	docs.POST("/captions", func(c *gin.Context) {
		captions, err := readCaptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for i, caption := range captions {
			if strings.TrimSpace(caption) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": view.CaptionField(i) + " is required"})
				return
			}
		}

		userID, documentID := identity(c)
		snap, err := uc.SaveCaptions(c.Request.Context(), userID, documentID, captions)
		respond(c, snap, err)
	})

	docs.POST("/reset", func(c *gin.Context) {
		userID, documentID := identity(c)
		snap, err := uc.Reset(c.Request.Context(), userID, documentID)
		respond(c, snap, err)
	})
}

// readCaptions accepts {"captions": [...]} or the image0..imageN form fields.
func readCaptions(c *gin.Context) ([]string, error) {
	if c.ContentType() == binding.MIMEJSON {
		var req saveCaptionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, errors.New("invalid captions payload")
		}
		if req.Captions == nil {
			return []string{}, nil
		}
		return req.Captions, nil
	}

	captions := []string{}
	for i := 0; i < maxCaptionFields; i++ {
		value, ok := c.GetPostForm(view.CaptionField(i))
		if !ok {
			break
		}
		captions = append(captions, value)
	}
	return captions, nil
}

func identity(c *gin.Context) (userID, documentID string) {
	userID, _ = auth.GetUserID(c.Request.Context())
	return userID, c.Param("documentID")
}

func respond(c *gin.Context, snap *usecase.Snapshot, err error) {
	if err != nil {
		status, message := classify(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state": snap,
		"view":  view.Render(snap.Main, snap.Modal),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, annotation.ErrMissingField),
		errors.Is(err, annotation.ErrMissingCaption),
		errors.Is(err, annotation.ErrCaptionCount):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, annotation.ErrInvalidState):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "failed to update annotation"
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
