package media

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type recordingSigner struct {
	keys []string
	err  error
}

func (s *recordingSigner) SignURL(_ context.Context, key string) (string, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return "", s.err
	}
	return "signed://" + key, nil
}

func TestResolver_PrefersPreview(t *testing.T) {
	signer := &recordingSigner{}
	urls, err := NewResolver(signer).Resolve(context.Background(), "events/e1/orig.jpg", "events/e1/preview.webp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := URLs{
		Thumbnail: "signed://events/e1/preview.webp",
		Full:      "signed://events/e1/preview.webp",
		Original:  "signed://events/e1/orig.jpg",
	}
	if urls != want {
		t.Errorf("urls = %+v, want %+v", urls, want)
	}
	if len(signer.keys) != 2 {
		t.Errorf("signed %d keys, want 2", len(signer.keys))
	}
}

func TestResolver_FallsBackToOriginal(t *testing.T) {
	signer := &recordingSigner{}
	urls, err := NewResolver(signer).Resolve(context.Background(), "orig.jpg", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if urls.Thumbnail != "signed://orig.jpg" || urls.Full != urls.Thumbnail || urls.Original != urls.Thumbnail {
		t.Errorf("unexpected urls: %+v", urls)
	}
	if len(signer.keys) != 1 {
		t.Errorf("signed %d keys, want 1", len(signer.keys))
	}
}

func TestResolver_SignerError(t *testing.T) {
	boom := errors.New("no credentials")
	_, err := NewResolver(&recordingSigner{err: boom}).Resolve(context.Background(), "a.jpg", "b.webp")
	if !errors.Is(err, boom) {
		t.Errorf("expected signer error, got %v", err)
	}
}

func TestPublicSigner(t *testing.T) {
	s := PublicSigner{BaseURL: "https://cdn.example.com/"}
	got, err := s.SignURL(context.Background(), "/events/e 1/photo#1.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://cdn.example.com/events/e%201/photo%231.jpg"
	if got != want {
		t.Errorf("SignURL = %q, want %q", got, want)
	}
}

func TestR2Signer_PresignsLocally(t *testing.T) {
	signer := NewR2Signer(R2Options{
		AccountID:       "acct123",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		Bucket:          "gallery",
		TTL:             2 * time.Hour,
	})

	raw, err := signer.SignURL(context.Background(), "events/e1/photo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	if u.Host != "acct123.r2.cloudflarestorage.com" {
		t.Errorf("host = %s", u.Host)
	}
	if !strings.HasPrefix(u.Path, "/gallery/events/e1/photo.jpg") {
		t.Errorf("path = %s, want bucket-prefixed key", u.Path)
	}
	q := u.Query()
	if q.Get("X-Amz-Expires") != "7200" {
		t.Errorf("X-Amz-Expires = %q, want 7200", q.Get("X-Amz-Expires"))
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Error("expected a signature")
	}
	if !strings.Contains(q.Get("X-Amz-Credential"), "AKIDEXAMPLE") {
		t.Errorf("credential = %q", q.Get("X-Amz-Credential"))
	}
}
