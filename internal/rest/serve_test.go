package rest

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"imgreg/internal/imageio"
	"imgreg/internal/registration"
	"imgreg/internal/transform"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"gocv.io/x/gocv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() *Server {
	return NewServer(registration.DefaultRequest(), 8<<20, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// scene builds a deterministic textured test image: upsampled noise with
// random filled rectangles on top.
func scene(t *testing.T, size int) gocv.Mat {
	t.Helper()
	var rng fastrand.RNG
	rng.Seed(99)

	small := gocv.NewMatWithSize(size/8, size/8, gocv.MatTypeCV8UC1)
	defer small.Close()
	data, err := small.DataPtrUint8()
	require.NoError(t, err)
	for i := range data {
		data[i] = uint8(40 + rng.Uint32n(160))
	}
	img := gocv.NewMat()
	gocv.Resize(small, &img, image.Pt(size, size), 0, 0, gocv.InterpolationCubic)

	for k := 0; k < 30; k++ {
		x := int(rng.Uint32n(uint32(size - 40)))
		y := int(rng.Uint32n(uint32(size - 40)))
		v := uint8(rng.Uint32n(256))
		r := image.Rect(x, y, x+8+int(rng.Uint32n(30)), y+8+int(rng.Uint32n(30)))
		gocv.Rectangle(&img, r, color.RGBA{R: v, G: v, B: v, A: 255}, -1)
	}
	return img
}

func encode(t *testing.T, m gocv.Mat) []byte {
	t.Helper()
	data, err := imageio.Encode(m)
	require.NoError(t, err)
	return data
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func shiftedPair(t *testing.T) (ref, sensed []byte) {
	img := scene(t, 256)
	defer img.Close()
	moved := imageio.Shift(img, 10, 20)
	defer moved.Close()
	return encode(t, img), encode(t, moved)
}

func post(t *testing.T, path string, files map[string][]byte, fields map[string]string) *httptest.ResponseRecorder {
	body, contentType := multipartBody(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer().Router().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	ref, sensed := shiftedPair(t)
	rec := post(t, "/api/v1/register",
		map[string][]byte{"reference": ref, "sensed": sensed},
		map[string]string{"strategy": "orb", "model": "affine"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Strategy  string              `json:"strategy"`
		Model     string              `json:"model"`
		Transform transform.Transform `json:"transform"`
		Matches   int                 `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "orb", resp.Strategy)
	assert.Equal(t, "affine", resp.Model)
	assert.Positive(t, resp.Matches)

	tx, ty, err := transform.ExtractTranslation(resp.Transform)
	require.NoError(t, err)
	assert.InDelta(t, -10, tx, 1)
	assert.InDelta(t, -20, ty, 1)
}

func TestWarpEndpoint(t *testing.T) {
	ref, sensed := shiftedPair(t)
	rec := post(t, "/api/v1/warp",
		map[string][]byte{"reference": ref, "sensed": sensed},
		map[string]string{"strategy": "orb", "model": "homography"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Transform"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestRegisterErrors(t *testing.T) {
	ref, sensed := shiftedPair(t)

	rec := post(t, "/api/v1/register", map[string][]byte{"reference": ref}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, "/api/v1/register",
		map[string][]byte{"reference": ref, "sensed": sensed},
		map[string]string{"strategy": "sift"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, "/api/v1/register",
		map[string][]byte{"reference": ref, "sensed": sensed},
		map[string]string{"strategy": "fourier-mellin", "model": "homography"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, "/api/v1/register",
		map[string][]byte{"reference": ref, "sensed": []byte("not an image")},
		nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 0, 0, 0), 64, 64, gocv.MatTypeCV8UC1)
	defer blank.Close()
	b := encode(t, blank)
	rec = post(t, "/api/v1/register",
		map[string][]byte{"reference": b, "sensed": b},
		map[string]string{"strategy": "orb", "model": "affine"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(t, "/api/v1/register",
		map[string][]byte{"reference": b, "sensed": b},
		map[string]string{"strategy": "ecc", "model": "translation"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
