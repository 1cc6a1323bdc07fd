package cloudinary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadPresetForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("upload_preset"); got != "nexus_event" {
			t.Errorf("upload_preset = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file field: %v", err)
		}
		defer file.Close()
		if header.Filename != "ravi.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "jpeg-bytes" {
			t.Errorf("payload = %q", data)
		}
		w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/ravi.jpg","public_id":"ravi","bytes":10}`))
	}))
	defer srv.Close()

	c := New("demo", "nexus_event", "")
	c.BaseURL = srv.URL

	url, err := c.Upload(context.Background(), []byte("jpeg-bytes"), "ravi.jpg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://res.cloudinary.com/demo/ravi.jpg" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid preset"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("demo", "bad_preset", "")
	c.BaseURL = srv.URL

	if _, err := c.Upload(context.Background(), []byte("x"), "x.jpg"); err == nil {
		t.Fatal("want error on non-2xx response")
	}
}

func TestSignedUploadCarriesSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("signature") == "" || r.FormValue("timestamp") == "" || r.FormValue("api_key") != "key123" {
			t.Errorf("signed params missing: %v", r.MultipartForm.Value)
		}
		if r.FormValue("upload_preset") != "" {
			t.Error("signed mode must not send upload_preset")
		}
		w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/s.jpg"}`))
	}))
	defer srv.Close()

	c := NewSigned("demo", "key123", "secret", "pickup")
	c.BaseURL = srv.URL

	if _, err := c.Upload(context.Background(), []byte("x"), "s.jpg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}
