package quote

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// diskCache implements a simple disk cache for HTTP responses
type diskCache struct {
	base http.RoundTripper
	dir  string
	log  zerolog.Logger
}

func (c *diskCache) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	// diskcache implements a unique key per day, so the local copy expires every day.
	key := fmt.Sprintf("%s %s %s", date.Today().String(), req.Method, req.URL.String())
	key = fmt.Sprintf("%x", sha1.Sum([]byte(key)))

	cachedResp, err := c.get(key, req)
	if err == nil { // Cache hit
		return cachedResp, nil
	}

	resp, err = c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("method", req.Method).Str("host", req.URL.Host).Str("path", req.URL.Path).Str("status", resp.Status).Msg("http")
	if resp.StatusCode >= 300 {
		return resp, nil
	}

	if err := c.put(key, resp); err != nil {
		c.log.Warn().Err(err).Msg("cache write error (ignored)")
	}
	return resp, nil
}

// get retrieves a cached response from disk
func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewBuffer(content)), req)
}

// put stores a response to disk cache
func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), content, 0644)
}

// Daily returns a client caching successful responses in dir for the day.
// An empty dir uses the system temp directory.
func Daily(dir string, log zerolog.Logger) *http.Client {
	if dir == "" {
		dir = os.TempDir()
	}
	return &http.Client{Transport: &diskCache{base: http.DefaultTransport, dir: dir, log: log}}
}

// getJSON performs an HTTP GET request and unmarshals the JSON response into
// the provided data structure.
func getJSON(ctx context.Context, client *http.Client, addr string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: GET %v%v: %v", fundmate.ErrPriceNotFound, resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return err
	}
	return json.Unmarshal(buf.Bytes(), data)
}

// number reads a json number or numeric string at path in jobj.
func number(jobj any, path string) (decimal.Decimal, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", fundmate.ErrPriceNotFound, path, err)
	}
	// because jsonpath is never clear about whether it returns a list of 1
	// answer, or a single answer: keep the first one if any.
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return decimal.Zero, fmt.Errorf("%w: %s is empty", fundmate.ErrPriceNotFound, path)
		}
		jval = jlist[0]
	}
	switch v := jval.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	}
	return decimal.Zero, fmt.Errorf("%w: %s is not a number: %v", fundmate.ErrPriceNotFound, path, jval)
}

// expand replaces {name} placeholders of a URL template with query escaped
// values.
func expand(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", url.QueryEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// HTTP resolves prices from a JSON endpoint.
//
// URL is a template accepting {symbol}, {key}, {date} and {currency}
// placeholders, such as "https://prices.example.com/v1/{symbol}?date={date}".
// Path is the JSONPath of the price in the response, "$.price" by default.
type HTTP struct {
	URL    string
	Path   string
	Client *http.Client // http.DefaultClient when nil
}

func (h *HTTP) Resolve(ctx context.Context, in fundmate.Instrument, on date.Date) (fundmate.Money, error) {
	symbol, err := YahooSymbol(in)
	if err != nil {
		symbol = string(in.Key())
	}
	cur := Currency(in)
	addr := expand(h.URL, map[string]string{
		"symbol":   symbol,
		"key":      string(in.Key()),
		"date":     on.String(),
		"currency": cur,
	})
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	var jobj any
	if err := getJSON(ctx, client, addr, &jobj); err != nil {
		return fundmate.Money{}, fmt.Errorf("price of %s: %w", in.Key(), err)
	}
	path := h.Path
	if path == "" {
		path = "$.price"
	}
	price, err := number(jobj, path)
	if err != nil {
		return fundmate.Money{}, fmt.Errorf("price of %s: %w", in.Key(), err)
	}
	return fundmate.M(price, cur), nil
}
