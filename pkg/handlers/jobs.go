/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/apiutils"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/authority"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/types"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
)

const (
	msgUploadEmpty        = "上传文件为空"
	msgUnsupportedAudio   = "这个音频格式暂不支持。请上传 M4A、MP3、WAV、AAC、FLAC、OGG/OPUS 或 MP4 音频。"
	msgOSSNotConfigured   = "对象存储未配置，请使用直接上传"
	msgUploadTooLargeTmpl = "文件超过 %dMB，请压缩后重试"
)

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateJob(c *gin.Context) {
	apiutils.HandleCreated(c, func(c *gin.Context) (interface{}, error) {
		identity := authority.CurrentUser(c)
		ctx, cancel := h.requestContext(c)
		defer cancel()
		if _, err := h.billing.RequireActiveUser(ctx, identity.UserID, identity.Email); err != nil {
			return nil, err
		}

		meta, err := h.store.CreateJob(jobstore.NewJobID(), identity.UserID)
		if err != nil {
			return nil, err
		}
		klog.Infof("created job=%s user=%s", meta.JobID, identity.UserID)
		return types.JobResponse{Job: h.jobView(meta)}, nil
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		return types.JobResponse{Job: h.jobView(meta)}, nil
	})
}

// CreateOSSUploadURL issues a presigned PUT so the client can push the
// audio straight to object storage.
func (h *Handler) CreateOSSUploadURL(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusCreated, state.StatusUploadReady); err != nil {
			return nil, err
		}
		if h.oss == nil {
			return nil, apierrors.NewInvalidStepState(msgOSSNotConfigured)
		}

		var req types.CreateOSSUploadURLRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, apierrors.NewBadRequest("invalid request body")
			}
		}
		suffix := strings.ToLower(filepath.Ext(req.Filename))
		if req.Filename != "" && !jobstore.AllowedAudioExtensions[suffix] {
			return nil, apierrors.NewUnsupportedAudioFormat(msgUnsupportedAudio)
		}

		ttl := config.GetOSSSignedURLTTL()
		key := h.oss.BuildObjectKeyForJob(meta.JobID, suffix)
		uploadURL, err := h.oss.PresignPutObject(key, ttl)
		if err != nil {
			return nil, err
		}
		return types.OSSUploadURLResponse{
			UploadURL:      uploadURL,
			ObjectKey:      key,
			ExpiresSeconds: int(ttl.Seconds()),
		}, nil
	})
}

// AudioOSSReady finalizes a direct-to-storage upload: the object is
// pulled down into the job's input directory so the pipeline and the
// evidence scan see a local file, then the job advances to
// UPLOAD_READY.
func (h *Handler) AudioOSSReady(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusCreated, state.StatusUploadReady); err != nil {
			return nil, err
		}
		if h.oss == nil {
			return nil, apierrors.NewInvalidStepState(msgOSSNotConfigured)
		}

		var req types.AudioOSSReadyRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ObjectKey) == "" {
			return nil, apierrors.NewBadRequest("object_key is required")
		}
		key := strings.TrimSpace(req.ObjectKey)
		filename := filepath.Base(key)
		if !jobstore.AllowedAudioExtensions[strings.ToLower(filepath.Ext(filename))] {
			return nil, apierrors.NewUnsupportedAudioFormat(msgUnsupportedAudio)
		}

		dest := filepath.Join(h.store.InputDir(meta.JobID), filename)
		size, err := h.oss.DownloadObject(c.Request.Context(), key, dest)
		if err != nil {
			klog.ErrorS(err, "failed to fetch uploaded object", "job", meta.JobID, "key", key)
			return nil, apierrors.NewBadRequest("uploaded object is not readable, retry the upload")
		}
		if size == 0 {
			_ = os.Remove(dest)
			return nil, apierrors.NewInvalidStepState(msgUploadEmpty)
		}

		if err := h.store.UpsertFiles(meta.JobID, map[string]string{jobstore.SlotAudioPath: dest}); err != nil {
			return nil, err
		}
		updated, err := h.store.SetStatus(meta.JobID, state.StatusUploadReady)
		if err != nil {
			return nil, err
		}
		klog.Infof("oss audio ready job=%s file=%s size=%d", meta.JobID, filename, size)
		return types.AudioOSSReadyResponse{
			Filename:  filename,
			SizeBytes: size,
			Status:    string(updated.Status),
		}, nil
	})
}

// UploadAudio receives the audio as a streamed multipart upload. The
// body is never buffered whole: it is copied to disk with a hard size
// cap, and an overflow deletes the partial file.
func (h *Handler) UploadAudio(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusCreated, state.StatusUploadReady); err != nil {
			return nil, err
		}

		reader, err := c.Request.MultipartReader()
		if err != nil {
			return nil, apierrors.NewBadRequest("expected a multipart file upload")
		}
		part, filename, err := nextFilePart(reader)
		if err != nil {
			return nil, err
		}
		defer part.Close()

		if !jobstore.AllowedAudioExtensions[strings.ToLower(filepath.Ext(filename))] {
			return nil, apierrors.NewUnsupportedAudioFormat(msgUnsupportedAudio)
		}

		dest := filepath.Join(h.store.InputDir(meta.JobID), filename)
		size, err := h.streamToFile(part, dest)
		if err != nil {
			return nil, err
		}

		if err := h.store.UpsertFiles(meta.JobID, map[string]string{jobstore.SlotAudioPath: dest}); err != nil {
			return nil, err
		}
		if _, err := h.store.SetStatus(meta.JobID, state.StatusUploadReady); err != nil {
			return nil, err
		}
		klog.Infof("audio uploaded job=%s file=%s size=%d", meta.JobID, filename, size)
		return types.UploadResponse{Filename: filename, SizeBytes: size}, nil
	})
}

// nextFilePart walks the multipart stream to the "file" field.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, string, error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, "", apierrors.NewBadRequest("multipart field \"file\" is required")
		}
		if err != nil {
			return nil, "", apierrors.NewBadRequest("broken multipart upload")
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		filename := filepath.Base(strings.TrimSpace(part.FileName()))
		if filename == "" || filename == "." {
			_ = part.Close()
			return nil, "", apierrors.NewBadRequest("upload carries no filename")
		}
		return part, filename, nil
	}
}

// streamToFile copies the part to dest with the configured cap. The
// extra byte past the limit distinguishes "exactly at cap" from
// overflow.
func (h *Handler) streamToFile(part io.Reader, dest string) (int64, error) {
	maxMB := config.GetMaxUploadMB()
	limit := int64(maxMB) * 1024 * 1024

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(dst, io.LimitReader(part, limit+1))
	if cErr := dst.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	if written > limit {
		_ = os.Remove(dest)
		return 0, apierrors.NewUploadTooLarge(fmt.Sprintf(msgUploadTooLargeTmpl, maxMB))
	}
	if written == 0 {
		_ = os.Remove(dest)
		return 0, apierrors.NewInvalidStepState(msgUploadEmpty)
	}
	return written, nil
}
