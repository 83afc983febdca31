// Package archive persists completed session snapshots: the flat document
// (metadata + feedback log + embedded audio) is spooled locally and uploaded
// to S3, from where review mode fetches it via pre-signed URLs.
package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/script-narration/backend/internal/auth"
	"github.com/script-narration/backend/internal/metrics"
	"github.com/script-narration/backend/internal/review"
	"github.com/script-narration/backend/internal/sessions"
	"github.com/script-narration/backend/pkg/queue"
	"github.com/script-narration/backend/pkg/response"
	"github.com/script-narration/backend/pkg/storage"
)

// MaxAudioSize bounds the uploaded recording (64MB).
const MaxAudioSize = 64 * 1024 * 1024

// Handler serves archive endpoints.
type Handler struct {
	registry *sessions.Registry
	tokens   *auth.TokenService
	s3       *storage.S3   // may be nil when archiving is disabled
	queue    *queue.Queue  // may be nil; uploads run inline then
	clock    clockwork.Clock
	spoolDir string
	logger   *zap.Logger
}

// NewHandler creates the archive handler. spoolDir empty means os.TempDir().
func NewHandler(registry *sessions.Registry, tokens *auth.TokenService, s3 *storage.S3, q *queue.Queue, clock clockwork.Clock, spoolDir string, logger *zap.Logger) *Handler {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return &Handler{
		registry: registry,
		tokens:   tokens,
		s3:       s3,
		queue:    q,
		clock:    clock,
		spoolDir: spoolDir,
		logger:   logger,
	}
}

// Archive builds and stores the snapshot document for a stopped session.
// The narrator uploads the recorded audio here after stopping; the feedback
// log comes from the live registry entry.
// POST /sessions/:id/archive (multipart: audio file + control token)
func (h *Handler) Archive(c *gin.Context) {
	sessionID := c.Param("id")

	token := bearerToken(c)
	if token == "" {
		token = c.PostForm("token")
	}
	if err := h.tokens.ValidateNarrator(token, sessionID); err != nil {
		response.Unauthorized(c, "invalid control token")
		return
	}

	if h.s3 == nil {
		response.ServiceUnavailable(c, "archiving not configured")
		return
	}

	file, _, err := c.Request.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, MaxAudioSize+1))
	if err != nil {
		response.BadRequest(c, "could not read audio")
		return
	}
	if len(audio) > MaxAudioSize {
		response.BadRequest(c, "audio exceeds size limit")
		return
	}

	snapshot, err := h.registry.Snapshot(sessionID, audio)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}

	doc := review.BuildDocument(snapshot, h.clock.Now())
	encoded, err := review.EncodeDocument(doc)
	if err != nil {
		response.Internal(c, "could not encode snapshot")
		return
	}

	archiveID := uuid.New()
	key := storage.ArchiveKey(sessionID, archiveID.String())

	if h.queue != nil {
		path := filepath.Join(h.spoolDir, archiveID.String()+".json")
		if err := os.WriteFile(path, encoded, 0o600); err != nil {
			h.logger.Error("spool archive", zap.Error(err))
			response.Internal(c, "could not spool snapshot")
			return
		}
		if err := h.queue.EnqueueArchiveUpload(c.Request.Context(), queue.ArchiveUploadPayload{
			ArchiveID: archiveID,
			SessionID: sessionID,
			Path:      path,
		}); err != nil {
			h.logger.Error("enqueue archive upload", zap.Error(err))
			response.Internal(c, "could not enqueue upload")
			return
		}
		response.Created(c, gin.H{"archiveId": archiveID, "key": key, "status": "queued"})
		return
	}

	url, err := h.s3.Upload(c.Request.Context(), key, storage.ContentTypeDocument, bytes.NewReader(encoded))
	if err != nil {
		metrics.ArchiveUploads.WithLabelValues("error").Inc()
		h.logger.Error("archive upload", zap.Error(err))
		response.Internal(c, "upload failed")
		return
	}
	metrics.ArchiveUploads.WithLabelValues("ok").Inc()
	response.Created(c, gin.H{"archiveId": archiveID, "key": key, "url": url})
}

// DownloadURL returns a pre-signed GET URL for an archived snapshot.
// GET /archives/download-url?key=archives/{session}/{id}.json
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archiving not configured")
		return
	}
	key := c.Query("key")
	if key == "" || !strings.HasPrefix(key, storage.FolderArchives+"/") {
		response.BadRequest(c, "invalid archive key")
		return
	}
	url, err := h.s3.PresignDownload(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("presign archive download", zap.Error(err))
		response.Internal(c, "could not presign download")
		return
	}
	response.OK(c, gin.H{"url": url, "expiresInMinutes": int(h.s3.PresignExpire().Minutes())})
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
