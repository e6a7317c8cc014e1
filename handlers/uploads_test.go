package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/mmdatafocus/warehouse_backend/models"
)

func (s *testServer) upload(t *testing.T, user string, itemId int, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(imageFormField, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/items/"+strconv.Itoa(itemId)+"/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadItemImage_StoresOriginalAndThumbnail(t *testing.T) {
	s := newTestServer(t)
	itemId, _, _ := s.seed(t, 1)

	w := s.upload(t, "clerk", itemId, "drill.png", pngBytes(t, 400, 300))
	expect(t, w, http.StatusOK)
	var item models.Item
	decode(t, w, &item)
	if !strings.HasPrefix(item.ImageUrl, "/uploads/items/") || !strings.HasSuffix(item.ImageUrl, ".png") {
		t.Fatalf("image url = %q", item.ImageUrl)
	}
	if !strings.HasPrefix(item.ThumbnailUrl, "/uploads/items/thumbnails/") || !strings.HasSuffix(item.ThumbnailUrl, ".jpg") {
		t.Fatalf("thumbnail url = %q", item.ThumbnailUrl)
	}

	w = s.do(t, "clerk", http.MethodGet, "/api/items/"+strconv.Itoa(itemId), nil)
	expect(t, w, http.StatusOK)
	var stored models.Item
	decode(t, w, &stored)
	if stored.ImageUrl != item.ImageUrl || stored.ThumbnailUrl != item.ThumbnailUrl {
		t.Fatalf("urls not recorded on the item: %+v", stored)
	}

	thumbPath := filepath.Join(s.uploadsDir, filepath.FromSlash(strings.TrimPrefix(item.ThumbnailUrl, "/uploads/")))
	thumb, err := imaging.Open(thumbPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() != thumbnailWidth || b.Dy() != 150 {
		t.Fatalf("thumbnail is %dx%d, want %dx150", b.Dx(), b.Dy(), thumbnailWidth)
	}
	originalPath := filepath.Join(s.uploadsDir, filepath.FromSlash(strings.TrimPrefix(item.ImageUrl, "/uploads/")))
	if _, err := os.Stat(originalPath); err != nil {
		t.Fatalf("original not written: %v", err)
	}
}

func TestUploadItemImage_Rejections(t *testing.T) {
	s := newTestServer(t)
	itemId, _, _ := s.seed(t, 1)

	cases := []struct {
		name   string
		itemId int
		file   []byte
		status int
		field  string
	}{
		{"unsupported type", itemId, []byte("just some text, not an image"), http.StatusBadRequest, "mimetype"},
		{"oversize", itemId, bytes.Repeat([]byte{0}, int(maxUploadSizeBytes)+1), http.StatusBadRequest, "max"},
		{"unknown item", itemId + 100, pngBytes(t, 4, 4), http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.upload(t, "clerk", tc.itemId, "upload.bin", tc.file)
			expect(t, w, tc.status)
			if tc.field == "" {
				return
			}
			var body errorResponse
			decode(t, w, &body)
			if body.Fields[imageFormField] != tc.field {
				t.Fatalf("fields = %v, want %s=%s", body.Fields, imageFormField, tc.field)
			}
		})
	}

	entries, err := os.ReadDir(s.uploadsDir)
	if err != nil {
		t.Fatalf("read uploads dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left %d entries behind", len(entries))
	}
}
