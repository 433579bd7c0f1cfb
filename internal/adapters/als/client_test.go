package als_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"unihaven/internal/adapters/als"
	"unihaven/internal/domain"
)

const sampleBody = `{
  "SuggestedAddress": [
    {
      "Address": {
        "PremisesAddress": {
          "GeoAddress": "3228619315T20050430",
          "GeospatialInformation": {
            "Latitude": "22.28405",
            "Longitude": "114.13784"
          }
        }
      }
    }
  ]
}`

func TestResolve_ParsesSuggestedAddress(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Haking Wong Building" {
			t.Errorf("unexpected q param: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer ts.Close()

	cl := als.New(ts.URL, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, geo, err := cl.Resolve(ctx, "Haking Wong Building")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Lat != 22.28405 || c.Lon != 114.13784 {
		t.Fatalf("unexpected coords: %+v", c)
	}
	if geo != "3228619315T20050430" {
		t.Fatalf("unexpected geo address: %q", geo)
	}
}

func TestResolve_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(500)
		default:
			_, _ = w.Write([]byte(sampleBody))
		}
	}))
	defer ts.Close()

	cl := als.New(ts.URL, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, _, err := cl.Resolve(ctx, "whatever"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestResolve_NoMatchIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"SuggestedAddress": []}`))
	}))
	defer ts.Close()

	cl := als.New(ts.URL, 100)
	_, _, err := cl.Resolve(context.Background(), "nowhere at all")
	if !errors.Is(err, domain.ErrGeocodeUnavailable) {
		t.Fatalf("expected ErrGeocodeUnavailable, got %v", err)
	}
}

func TestResolve_NumericCoordinates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"SuggestedAddress":[{"Address":{"PremisesAddress":{
			"GeoAddress":"X","GeospatialInformation":{"Latitude":22.3,"Longitude":114.2}}}}]}`))
	}))
	defer ts.Close()

	cl := als.New(ts.URL, 100)
	c, _, err := cl.Resolve(context.Background(), "anywhere")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Lat != 22.3 || c.Lon != 114.2 {
		t.Fatalf("unexpected coords: %+v", c)
	}
}
