package als

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"unihaven/internal/adapters/observability"
	"unihaven/internal/domain"
)

// Client talks to the Hong Kong government Address Lookup Service.
// Lookups happen outside any admission critical section; their latency
// or failure never stalls a reservation decision.
type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 10 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

type alsResponse struct {
	SuggestedAddress []struct {
		Address struct {
			PremisesAddress struct {
				GeoAddress            string `json:"GeoAddress"`
				GeospatialInformation struct {
					// The service has returned these both as strings and
					// as numbers across revisions.
					Latitude  any `json:"Latitude"`
					Longitude any `json:"Longitude"`
				} `json:"GeospatialInformation"`
			} `json:"PremisesAddress"`
		} `json:"Address"`
	} `json:"SuggestedAddress"`
}

// Resolve returns the first suggested match for the address text.
// A lookup with no suggestions degrades to ErrGeocodeUnavailable.
func (c *Client) Resolve(ctx context.Context, address string) (domain.Coords, string, error) {
	u := c.base + "?" + url.Values{"q": {address}, "output": {"JSON"}}.Encode()

	var out alsResponse
	if err := c.get(ctx, u, &out); err != nil {
		return domain.Coords{}, "", err
	}
	if len(out.SuggestedAddress) == 0 {
		return domain.Coords{}, "", fmt.Errorf("%w: no match for %q", domain.ErrGeocodeUnavailable, address)
	}

	pa := out.SuggestedAddress[0].Address.PremisesAddress
	lat, err := coord(pa.GeospatialInformation.Latitude)
	if err != nil {
		return domain.Coords{}, "", fmt.Errorf("%w: bad latitude: %v", domain.ErrGeocodeUnavailable, err)
	}
	lon, err := coord(pa.GeospatialInformation.Longitude)
	if err != nil {
		return domain.Coords{}, "", fmt.Errorf("%w: bad longitude: %v", domain.ErrGeocodeUnavailable, err)
	}
	return domain.Coords{Lat: lat, Lon: lon}, pa.GeoAddress, nil
}

func coord(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case json.Number:
		return t.Float64()
	}
	return 0, fmt.Errorf("unexpected coordinate type %T", v)
}

// get performs a GET with client-side rate limiting, retries on 429 and
// transient 5xx (honoring Retry-After), and JSON decode into out.
func (c *Client) get(ctx context.Context, url string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "unihaven/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, lastErr)
		}
		observability.ObserveExternal("als", "lookup", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: decode: %v", domain.ErrGeocodeUnavailable, err)
			}
			return nil

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", domain.ErrGeocodeUnavailable,
				resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrGeocodeUnavailable, lastErr)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 250 * time.Millisecond
}
