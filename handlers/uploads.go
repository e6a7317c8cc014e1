package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadSizeBytes int64 = 5 * 1024 * 1024
	thumbnailWidth           = 200
	imageFormField           = "image"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

var errImageTooLarge = models.NewValidationError("file size exceeds 5MB limit", map[string]string{imageFormField: "max"})

// UploadItemImage stores a jpeg/png original plus a 200px wide jpeg thumbnail and records
// both URLs on the item.
func (h *Handler) UploadItemImage(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Catalog.GetItem(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	data, contentType, err := readImage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ext, supported := imageExtensions[contentType]
	if !supported {
		respondError(c, models.NewValidationError("unsupported image type", map[string]string{imageFormField: "mimetype"}))
		return
	}
	thumbnail, err := makeThumbnail(data)
	if err != nil {
		respondError(c, models.NewValidationError("image could not be decoded", map[string]string{imageFormField: "image"}))
		return
	}

	objectKey := path.Join("items", uuid.NewString()+ext)
	thumbnailKey := thumbnailObjectKey(objectKey)
	imageUrl, err := h.Storage.Put(ctx, objectKey, data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	thumbnailUrl, err := h.Storage.Put(ctx, thumbnailKey, thumbnail, "image/jpeg")
	if err != nil {
		h.discard(ctx, objectKey)
		respondError(c, err)
		return
	}

	item, err := h.Catalog.SetItemImage(ctx, id, imageUrl, thumbnailUrl)
	if err != nil {
		h.discard(ctx, objectKey, thumbnailKey)
		respondError(c, err)
		return
	}
	h.logger().WithFields(logrus.Fields{
		"item_id":    id,
		"object_key": objectKey,
		"size":       len(data),
	}).Info("[upload.item_image]")
	c.JSON(http.StatusOK, item)
}

// readImage reads the multipart file and sniffs its type from the content, not the header.
func readImage(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSizeBytes+1<<20)
	fileHeader, err := c.FormFile(imageFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", errImageTooLarge
		}
		return nil, "", models.NewValidationError("image file is required", map[string]string{imageFormField: "required"})
	}
	if fileHeader.Size > maxUploadSizeBytes {
		return nil, "", errImageTooLarge
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return nil, "", errImageTooLarge
	}
	return data, http.DetectContentType(data), nil
}

func makeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := strings.TrimSuffix(path.Base(objectKey), path.Ext(objectKey))
	return path.Join(dir, "thumbnails", filename+".jpg")
}

// discard removes objects orphaned by a failed upload; failures are only logged.
func (h *Handler) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := h.Storage.Delete(context.WithoutCancel(ctx), key); err != nil {
			h.logger().WithFields(logrus.Fields{"object_key": key}).Warn("failed to remove orphaned upload: " + err.Error())
		}
	}
}
