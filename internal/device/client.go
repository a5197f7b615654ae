package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shizukutanaka/axetune/internal/tuning"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AxeOS REST endpoints
const (
	SystemPath = "/api/system"
	InfoPath   = "/api/system/info"
)

var (
	// ErrNoAddress is returned when the device address is empty
	ErrNoAddress = errors.New("device address is required")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Config configures the device client
type Config struct {
	Address           string
	Timeout           time.Duration
	RequestsPerSecond float64

	// Sent with every setting change, as AxeOS resets omitted display flags
	AutoFanSpeed      bool
	FlipScreen        bool
	InvertFanPolarity bool
}

// SystemInfo is the /api/system/info document
type SystemInfo struct {
	HashRate          float64 `json:"hashRate" yaml:"hashRate"`
	Temp              float64 `json:"temp" yaml:"temp"`
	VRTemp            float64 `json:"vrTemp" yaml:"vrTemp"`
	Power             float64 `json:"power" yaml:"power"`
	Voltage           float64 `json:"voltage" yaml:"voltage"`
	Current           float64 `json:"current" yaml:"current"`
	Frequency         float64 `json:"frequency" yaml:"frequency"`
	CoreVoltage       float64 `json:"coreVoltage" yaml:"coreVoltage"`
	CoreVoltageActual float64 `json:"coreVoltageActual" yaml:"coreVoltageActual"`
	FanSpeed          float64 `json:"fanspeed" yaml:"fanspeed"`
	FanRPM            float64 `json:"fanrpm" yaml:"fanrpm"`
	UptimeSeconds     int64   `json:"uptimeSeconds" yaml:"uptimeSeconds"`
	SharesAccepted    int64   `json:"sharesAccepted" yaml:"sharesAccepted"`
	SharesRejected    int64   `json:"sharesRejected" yaml:"sharesRejected"`
	BestDiff          string  `json:"bestDiff" yaml:"bestDiff"`
	ASICModel         string  `json:"ASICModel" yaml:"ASICModel"`
	Hostname          string  `json:"hostname" yaml:"hostname"`
	Version           string  `json:"version" yaml:"version"`
}

// Setting returns the frequency/voltage the device reports as configured
func (i *SystemInfo) Setting() tuning.Setting {
	return tuning.Setting{
		Frequency:   int(math.Round(i.Frequency)),
		CoreVoltage: int(math.Round(i.CoreVoltage)),
	}
}

// settingPayload is the PATCH /api/system body
type settingPayload struct {
	Frequency         int  `json:"frequency"`
	CoreVoltage       int  `json:"coreVoltage"`
	AutoFanSpeed      bool `json:"autoFanSpeed"`
	FlipScreen        bool `json:"flipScreen"`
	InvertFanPolarity bool `json:"invertFanPolarity"`
}

// Client talks to one AxeOS device over its REST API
type Client struct {
	logger  *zap.Logger
	config  Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a device client
func NewClient(logger *zap.Logger, config Config) (*Client, error) {
	base, err := BaseURL(config.Address)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		logger:  logger.With(zap.String("device", base)),
		config:  config,
		baseURL: base,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// BaseURL normalizes a host, host:port or URL into a base URL
func BaseURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrNoAddress
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/"), nil
}

// URL returns the base URL of the device
func (c *Client) URL() string {
	return c.baseURL
}

// ApplySetting sends a frequency/voltage change
func (c *Client) ApplySetting(ctx context.Context, s tuning.Setting) error {
	payload := settingPayload{
		Frequency:         s.Frequency,
		CoreVoltage:       s.CoreVoltage,
		AutoFanSpeed:      c.config.AutoFanSpeed,
		FlipScreen:        c.config.FlipScreen,
		InvertFanPolarity: c.config.InvertFanPolarity,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode setting: %w", err)
	}

	c.logger.Debug("Patching device",
		zap.Int("frequency", s.Frequency),
		zap.Int("core_voltage", s.CoreVoltage),
	)

	if err := c.do(ctx, http.MethodPatch, SystemPath, bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("failed to apply %s: %w", s, err)
	}
	return nil
}

// Info fetches the full system info document
func (c *Client) Info(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.do(ctx, http.MethodGet, InfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("failed to read system info: %w", err)
	}
	return &info, nil
}

// Sample reads the current hashrate and temperature
func (c *Client) Sample(ctx context.Context) (tuning.Reading, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return tuning.Reading{}, err
	}
	return tuning.Reading{Hashrate: info.HashRate, Temperature: info.Temp}, nil
}

// CurrentSetting reads back the configured frequency and core voltage
func (c *Client) CurrentSetting(ctx context.Context) (tuning.Setting, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return tuning.Setting{}, err
	}
	return info.Setting(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method: method,
			URL:    url,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var (
	_ tuning.Device        = (*Client)(nil)
	_ tuning.SettingReader = (*Client)(nil)
)
