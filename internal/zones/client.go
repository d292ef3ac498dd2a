package zones

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Info is the zone metadata document served by the settings API.
type Info struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client defines the subset of settings-API operations required by the
// monitor.
type Client interface {
	ZoneIDs(ctx context.Context) ([]int, error)
	ZoneInfo(ctx context.Context, id int) (Info, error)
	Close() error
}

// Settings carries the connection parameters for the settings API.
type Settings struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// ClientFactory is responsible for creating settings-API clients.
type ClientFactory func(cfg Settings) (Client, error)

type httpClient struct {
	base   url.URL
	client *http.Client
}

// NewHTTPClientFactory returns a factory that creates plain HTTP clients.
func NewHTTPClientFactory() ClientFactory {
	return func(cfg Settings) (Client, error) {
		if cfg.Host == "" {
			return nil, fmt.Errorf("zones: host is required")
		}
		if cfg.Port <= 0 {
			return nil, fmt.Errorf("zones: port must be positive")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		base := url.URL{
			Scheme: "http",
			Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		}
		return &httpClient{
			base:   base,
			client: &http.Client{Timeout: timeout},
		}, nil
	}
}

func (c *httpClient) get(ctx context.Context, resource string, query url.Values, out interface{}) error {
	u := c.base
	u.Path = resource
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("zones: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("zones: get %s: %w", resource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("zones: get %s: status %d: %s", resource, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zones: decode %s: %w", resource, err)
	}
	return nil
}

func (c *httpClient) ZoneIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := c.get(ctx, "/settings/zone", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *httpClient) ZoneInfo(ctx context.Context, id int) (Info, error) {
	query := url.Values{"zone-id": []string{strconv.Itoa(id)}}
	var info Info
	if err := c.get(ctx, "/settings/zone", query, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Directory maps zone identifiers to their human-readable names. It is
// fetched once before streaming begins and read-only afterwards.
type Directory map[int]string

// Lookup resolves a zone id to its configured name.
func (d Directory) Lookup(id int) (string, bool) {
	name, ok := d[id]
	return name, ok
}

// FetchDirectory pulls the id list and each zone's metadata from the
// settings API.
func FetchDirectory(ctx context.Context, client Client) (Directory, error) {
	ids, err := client.ZoneIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("zones: list zones: %w", err)
	}
	dir := make(Directory, len(ids))
	for _, id := range ids {
		info, err := client.ZoneInfo(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("zones: fetch zone %d: %w", id, err)
		}
		dir[info.ID] = info.Name
	}
	return dir, nil
}
