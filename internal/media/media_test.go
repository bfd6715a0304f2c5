package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepareDownscales(t *testing.T) {
	out, err := Prepare(bytes.NewReader(testPNG(t, 2048, 1024)))
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, img.Bounds().Dx(), 1024)
	assert.Equal(t, img.Bounds().Dy(), 512)
}

func TestPrepareKeepsSmallImages(t *testing.T) {
	out, err := Prepare(bytes.NewReader(testPNG(t, 300, 400)))
	if err != nil {
		t.Fatal(err)
	}
	img, _ := jpeg.Decode(bytes.NewReader(out))
	assert.Equal(t, img.Bounds().Dx(), 300)
	assert.Equal(t, img.Bounds().Dy(), 400)
}

func TestPrepareRejectsLargeFiles(t *testing.T) {
	_, err := Prepare(bytes.NewReader(make([]byte, MaxUploadSize+1)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	assert.Equal(t, CheckSize(MaxUploadSize), nil)
}

func TestPinataUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "cat.jpg" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"IpfsHash":"QmTest","PinSize":3}`))
	}))
	defer srv.Close()

	up := NewPinataUploader("key", "secret", "", "https://gw.example/")
	up.Endpoint = srv.URL

	url, err := up.Upload(context.Background(), "cat.jpg", []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, url, "https://gw.example/ipfs/QmTest")
}

func TestPinataUploadJWT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("no"))
			return
		}
		w.Write([]byte(`{"IpfsHash":"QmJWT"}`))
	}))
	defer srv.Close()

	up := NewPinataUploader("", "", "tok", "https://gw.example")
	up.Endpoint = srv.URL
	url, err := up.Upload(context.Background(), "a.jpg", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, url, "https://gw.example/ipfs/QmJWT")

	up.JWT = "bad"
	_, err = up.Upload(context.Background(), "a.jpg", []byte("x"))
	assert.NotEqual(t, err, nil)
}
