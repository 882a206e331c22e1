package http

import (
	"io"
	"strings"

	"DocTalk/internal/modules/kb/application/service"
	"DocTalk/pkg/back"
	"DocTalk/pkg/xerr"
	"DocTalk/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 单个上传文件的大小上限
const maxUploadBytes = 20 << 20

// DocumentHandler 文档上传 / 列表 / 删除
type DocumentHandler struct {
	docSvc service.DocumentService
}

func NewDocumentHandler(docSvc service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docSvc: docSvc}
}

// Upload 处理批量上传
//
// 路由: POST /api/upload
// 表单字段: files（可多个）
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		back.Error(c, xerr.BadRequest, "invalid multipart form")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		back.Error(c, xerr.BadRequest, "no files uploaded")
		return
	}

	files := make([]service.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxUploadBytes {
			back.Error(c, xerr.BadRequest, "file too large: "+fh.Filename)
			return
		}
		src, err := fh.Open()
		if err != nil {
			zlog.Error("open uploaded file failed", zap.String("name", fh.Filename), zap.Error(err))
			back.Error(c, xerr.InternalServerError, "read uploaded file failed")
			return
		}
		data, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			back.Error(c, xerr.InternalServerError, "read uploaded file failed")
			return
		}
		files = append(files, service.UploadedFile{Name: fh.Filename, Data: data})
	}

	back.Success(c, h.docSvc.Upload(c.Request.Context(), files))
}

// List 返回全部文档
//
// 路由: GET /api/files
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docSvc.List(c.Request.Context())
	back.Result(c, docs, err)
}

// Delete 删除一份文档及其向量
//
// 路由: DELETE /api/files/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	sourceID := strings.TrimSpace(c.Param("id"))
	if sourceID == "" {
		back.Error(c, xerr.BadRequest, "missing file id")
		return
	}
	if err := h.docSvc.Delete(c.Request.Context(), sourceID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			back.Error(c, xerr.NotFound, err.Error())
			return
		}
		zlog.Error("delete document failed", zap.String("source_id", sourceID), zap.Error(err))
		back.Error(c, xerr.InternalServerError, "delete document failed")
		return
	}
	back.Success(c, gin.H{"sourceId": sourceID})
}
