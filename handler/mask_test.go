package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/TIANLI0/HairTint/config"
	"github.com/TIANLI0/HairTint/model"
	"github.com/TIANLI0/HairTint/service"
	"github.com/gin-gonic/gin"
)

type fakeProcessor struct {
	record      *model.MaskRecord
	cached      bool
	err         error
	lastRecolor service.RecolorRequest
}

func (f *fakeProcessor) ProcessUpload(ctx context.Context, name string, data []byte, force bool) (*model.MaskRecord, bool, error) {
	return f.record, f.cached, f.err
}

func (f *fakeProcessor) Recolor(ctx context.Context, req service.RecolorRequest) (*model.RecolorResult, error) {
	f.lastRecolor = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.RecolorResult{PNG: []byte("\x89PNGfake"), ResultURL: "/files/results/result-x.png"}, nil
}

func (f *fakeProcessor) Get(ctx context.Context, md5 string) (*model.MaskRecord, error) {
	return f.record, f.err
}

func (f *fakeProcessor) List(ctx context.Context, limit int) ([]*model.MaskRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*model.MaskRecord{f.record}, nil
}

func (f *fakeProcessor) MaskPNG(ctx context.Context, md5 string) ([]byte, error) {
	return []byte("\x89PNGmask"), f.err
}

func newTestRouter(p HairProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Upload:  config.UploadConfig{MaxSize: 1 << 20, AllowedTypes: []string{"image/png", "image/jpeg"}},
		Recolor: config.RecolorConfig{DefaultColor: "#FF0000"},
	}
	h := NewMaskHandler(cfg, p)

	r := gin.New()
	r.POST("/api/v1/masks", h.Upload)
	r.GET("/api/v1/masks", h.List)
	r.GET("/api/v1/masks/:md5", h.GetByMD5)
	r.GET("/api/v1/masks/:md5/image", h.GetMaskImage)
	r.POST("/api/v1/recolor", h.Recolor)
	return r
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartRequest(t *testing.T, url string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(f.data)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const testMD5 = "0123456789abcdef0123456789abcdef"

func TestUpload(t *testing.T) {
	tests := []struct {
		name       string
		proc       *fakeProcessor
		file       *formFile
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "processed",
			proc:       &fakeProcessor{record: &model.MaskRecord{MD5: testMD5}},
			file:       &formFile{"image", "a.png", "image/png", []byte("png")},
			wantStatus: http.StatusOK,
			wantMsg:    "处理成功",
		},
		{
			name:       "cached",
			proc:       &fakeProcessor{record: &model.MaskRecord{MD5: testMD5}, cached: true},
			file:       &formFile{"image", "a.png", "image/png", []byte("png")},
			wantStatus: http.StatusOK,
			wantMsg:    "图片已处理，使用已有掩码",
		},
		{
			name:       "missing file",
			proc:       &fakeProcessor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong type",
			proc:       &fakeProcessor{},
			file:       &formFile{"image", "a.gif", "image/gif", []byte("gif")},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no hair",
			proc:       &fakeProcessor{err: fmt.Errorf("wrap: %w", service.ErrRegionNotFound)},
			file:       &formFile{"image", "a.png", "image/png", []byte("png")},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "未检测到头发区域",
		},
		{
			name:       "queue full",
			proc:       &fakeProcessor{err: service.ErrQueueTimeout},
			file:       &formFile{"image", "a.png", "image/png", []byte("png")},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var files []formFile
			if tc.file != nil {
				files = append(files, *tc.file)
			}
			req := multipartRequest(t, "/api/v1/masks", nil, files...)
			rec := httptest.NewRecorder()
			newTestRouter(tc.proc).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantMsg == "" {
				return
			}
			var resp model.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != tc.wantMsg {
				t.Errorf("message: got %q, want %q", resp.Message, tc.wantMsg)
			}
		})
	}
}

func TestGetByMD5(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		proc       *fakeProcessor
		wantStatus int
	}{
		{"found", "/api/v1/masks/" + testMD5, &fakeProcessor{record: &model.MaskRecord{MD5: testMD5}}, http.StatusOK},
		{"uppercase accepted", "/api/v1/masks/0123456789ABCDEF0123456789ABCDEF", &fakeProcessor{record: &model.MaskRecord{MD5: testMD5}}, http.StatusOK},
		{"not found", "/api/v1/masks/" + testMD5, &fakeProcessor{err: service.ErrMaskNotFound}, http.StatusNotFound},
		{"invalid md5", "/api/v1/masks/xyz", &fakeProcessor{}, http.StatusBadRequest},
		{"mask image", "/api/v1/masks/" + testMD5 + "/image", &fakeProcessor{}, http.StatusOK},
		{"result has no mask", "/api/v1/masks/" + testMD5 + "/image", &fakeProcessor{err: service.ErrMaskNotFound}, http.StatusNotFound},
		{"missing artifact", "/api/v1/masks/" + testMD5 + "/image", &fakeProcessor{err: service.ErrArtifactNotFound}, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(tc.proc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestList(t *testing.T) {
	proc := &fakeProcessor{record: &model.MaskRecord{MD5: testMD5}}

	rec := httptest.NewRecorder()
	newTestRouter(proc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/masks?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp model.MaskListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].MD5 != testMD5 {
		t.Fatalf("unexpected data %+v", resp.Data)
	}

	rec = httptest.NewRecorder()
	newTestRouter(proc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/masks?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0: got %d", rec.Code)
	}
}

func TestRecolor(t *testing.T) {
	base := formFile{"image", "base.png", "image/png", []byte("base")}

	t.Run("returns png", func(t *testing.T) {
		proc := &fakeProcessor{}
		req := multipartRequest(t, "/api/v1/recolor",
			map[string]string{"mask_md5": testMD5, "strength": "0.5"}, base)
		rec := httptest.NewRecorder()
		newTestRouter(proc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Fatalf("content type: got %q", ct)
		}
		if proc.lastRecolor.Color != "#FF0000" {
			t.Errorf("default color not applied: %q", proc.lastRecolor.Color)
		}
		if proc.lastRecolor.Strength == nil || *proc.lastRecolor.Strength != 0.5 {
			t.Errorf("strength not forwarded: %v", proc.lastRecolor.Strength)
		}
		if proc.lastRecolor.MaskMD5 != testMD5 || proc.lastRecolor.BaseName != "base.png" {
			t.Errorf("unexpected request %+v", proc.lastRecolor)
		}
	})

	t.Run("uploaded mask and save", func(t *testing.T) {
		proc := &fakeProcessor{}
		mask := formFile{"mask", "mask.png", "image/png", []byte("mask")}
		req := multipartRequest(t, "/api/v1/recolor", map[string]string{"color": "#00ff00", "save": "true"}, base, mask)
		rec := httptest.NewRecorder()
		newTestRouter(proc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
		}
		if string(proc.lastRecolor.Mask) != "mask" || !proc.lastRecolor.Save {
			t.Errorf("unexpected request %+v", proc.lastRecolor)
		}
		var resp model.RecolorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Data == nil || resp.Data.ResultURL == "" {
			t.Fatalf("expected result url, got %+v", resp)
		}
	})

	errorCases := []struct {
		name       string
		fields     map[string]string
		err        error
		wantStatus int
	}{
		{"invalid color", map[string]string{"mask_md5": testMD5, "color": "#ZZZ"}, service.ErrInvalidColor, http.StatusBadRequest},
		{"incompatible buffers", map[string]string{"mask_md5": testMD5}, &service.IncompatibleBufferError{BaseWidth: 1}, http.StatusBadRequest},
		{"unknown mask", map[string]string{"mask_md5": testMD5}, service.ErrMaskNotFound, http.StatusNotFound},
		{"no hair", map[string]string{"mask_md5": testMD5}, service.ErrRegionNotFound, http.StatusUnprocessableEntity},
		{"bad strength", map[string]string{"mask_md5": testMD5, "strength": "strong"}, nil, http.StatusBadRequest},
		{"bad mask md5", map[string]string{"mask_md5": "nope"}, nil, http.StatusBadRequest},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/v1/recolor", tc.fields, base)
			rec := httptest.NewRecorder()
			newTestRouter(&fakeProcessor{err: tc.err}).ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}
