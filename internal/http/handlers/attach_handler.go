// Attach HTTP handlers.
//
// Public endpoints:
//   - POST /attaches/upload            (multipart "files", one or more)
//   - GET  /attaches/open/{hash}       (inline)
//   - GET  /attaches/download/{hash}   (as attachment)
//
// Internal endpoints:
//   - POST   /internal/api/v1/attaches/exists
//   - POST   /internal/api/v1/attaches/hashes/exists
//   - DELETE /internal/api/v1/attaches/delete-list
package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
)

// AttachService defines the file operations consumed by the attach handlers.
type AttachService interface {
	Upload(ctx context.Context, files []services.Upload) ([]services.Uploaded, error)
	Open(ctx context.Context, hash string) (*domain.Attach, *os.File, error)

	Exists(ctx context.Context, hash string, userID uint64) (bool, error)
	ListExists(ctx context.Context, hashes []string, userID uint64) (bool, error)
	DeleteList(ctx context.Context, hashes []string) error
}

// AttachHandler serves the attach service endpoints.
type AttachHandler struct {
	svc AttachService
}

// NewAttachHandler binds an AttachHandler to svc.
func NewAttachHandler(svc AttachService) *AttachHandler { return &AttachHandler{svc: svc} }

// UploadFiles godoc
// @ID          uploadFiles
// @Summary     Upload files
// @Description Stores every part named "files". Either all files are stored or none.
// @Tags        Attaches
// @Accept      multipart/form-data
// @Produce     json
// @Param       X-User-ID  header    string  true  "Caller id"
// @Param       files      formData  file    true  "One or more files"
// @Success     201  {array}   services.Uploaded
// @Failure     400  {object}  handlers.ErrorResponse  "No files"
// @Failure     401  {object}  handlers.ErrorResponse  "No caller"
// @Failure     500  {object}  handlers.ErrorResponse  "File creation failed"
// @Router      /attaches/upload [post]
func (h *AttachHandler) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "multipart form with files required")
		return
	}
	parts := form.File["files"]
	files := make([]services.Upload, 0, len(parts))
	for _, fh := range parts {
		fh := fh
		files = append(files, services.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	out, err := h.svc.Upload(c.Request.Context(), files)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// OpenFile godoc
// @ID          openFile
// @Summary     Open a file inline
// @Tags        Attaches
// @Produce     octet-stream
// @Param       hash  path  string  true  "Attachment hash"
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Attachment not found"
// @Router      /attaches/open/{hash} [get]
func (h *AttachHandler) OpenFile(c *gin.Context) {
	h.serve(c, "inline")
}

// DownloadFile godoc
// @ID          downloadFile
// @Summary     Download a file
// @Tags        Attaches
// @Produce     octet-stream
// @Param       hash  path  string  true  "Attachment hash"
// @Success     200  {file}    file
// @Header      200  {string}  Content-Disposition  "attachment; filename=..."
// @Failure     404  {object}  handlers.ErrorResponse  "Attachment not found"
// @Router      /attaches/download/{hash} [get]
func (h *AttachHandler) DownloadFile(c *gin.Context) {
	h.serve(c, "attachment")
}

func (h *AttachHandler) serve(c *gin.Context, disposition string) {
	a, f, err := h.svc.Open(c.Request.Context(), strings.TrimSpace(c.Param("hash")))
	if err != nil {
		failErr(c, err)
		return
	}
	defer f.Close()

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": a.OriginName}))
	http.ServeContent(c.Writer, c.Request, a.OriginName, a.UpdatedAt, f)
}

// Exists answers true when the hash belongs to the user and 404 otherwise.
func (h *AttachHandler) Exists(c *gin.Context) {
	var req remote.HashCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	found, err := h.svc.Exists(c.Request.Context(), req.Hash, req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, found)
}

// ListExists answers whether every hash belongs to the user.
func (h *AttachHandler) ListExists(c *gin.Context) {
	var req remote.HashesCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	all, err := h.svc.ListExists(c.Request.Context(), req.Hashes, req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, all)
}

// DeleteList removes the files and rows of the given hashes.
func (h *AttachHandler) DeleteList(c *gin.Context) {
	var hashes []string
	if !bindJSON(c, &hashes) {
		return
	}
	if err := h.svc.DeleteList(c.Request.Context(), hashes); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
