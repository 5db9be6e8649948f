// Package ezviz is a small client for the Ezviz cloud API. It covers the calls
// needed to drive IP cameras: login, device enumeration, status, PTZ and
// feature switches.
package ezviz

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smazurov/ezvizbridge/internal/version"

	"github.com/smazurov/ezvizbridge/internal/metrics"
)

const (
	defaultAPIDomain = "apiieu"
	defaultTimeout   = 15 * time.Second

	featureCode = "92c579faa0902cbfcfcc4fc004ef67e7"
	clientType  = "1"

	loginPath    = "/v3/users/login"
	pagelistPath = "/v3/userdevices/v1/devices/pagelist"
	algoPath     = "/api/device/queryAlgorithmConfig"
	switchPath   = "/api/device/switchStatus"
	ptzPath      = "/v3/devices/%s/ptzControl"

	codeOK             = 200
	codeAreaRedirect   = 1100
	codeBadAccount     = 1013
	codeBadPassword    = 1014
	codeAccountLocked  = 1226
	codeSessionExpired = 401
)

// Config configures a Client.
type Config struct {
	Username  string
	Password  string
	APIDomain string
	// BaseURL overrides the https://<APIDomain>.ezvizlife.com endpoint.
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Ezviz cloud. It is safe for concurrent use once logged in.
type Client struct {
	http     *resty.Client
	username string
	password string
	logger   *slog.Logger

	mu      sync.RWMutex
	session string
}

type meta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type metaResponse struct {
	Meta meta `json:"meta"`
}

// resultCode accepts both "0" and 0 as sent by the legacy /api endpoints.
type resultCode string

func (c *resultCode) UnmarshalJSON(b []byte) error {
	*c = resultCode(strings.Trim(string(b), `"`))
	return nil
}

type legacyResponse struct {
	ResultCode resultCode `json:"resultCode"`
	ResultDes  string     `json:"resultDes"`
}

// New creates a client. Call Login before anything else.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := cfg.BaseURL
	if base == "" {
		domain := cfg.APIDomain
		if domain == "" {
			domain = defaultAPIDomain
		}
		base = "https://" + domain + ".ezvizlife.com"
	}

	r := resty.New()
	r.SetBaseURL(base)
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", version.UserAgent())
	r.SetHeader("clientType", clientType)
	r.SetHeader("featureCode", featureCode)

	return &Client{
		http:     r,
		username: cfg.Username,
		password: cfg.Password,
		logger:   logger,
	}
}

// BaseURL returns the endpoint currently in use.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Login authenticates and stores the session id. An area redirect switches
// the endpoint and logs in once more against the new one.
func (c *Client) Login(ctx context.Context) error {
	err := c.login(ctx)
	var e *Error
	if err == nil || !errors.As(err, &e) || e.Code != codeAreaRedirect {
		return err
	}
	return c.login(ctx)
}

type loginResponse struct {
	Meta         meta `json:"meta"`
	LoginSession struct {
		SessionID string `json:"sessionId"`
	} `json:"loginSession"`
	LoginArea struct {
		APIDomain string `json:"apiDomain"`
	} `json:"loginArea"`
}

func (c *Client) login(ctx context.Context) error {
	start := time.Now()
	sum := md5.Sum([]byte(c.password))

	var result loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"account":     c.username,
			"password":    hex.EncodeToString(sum[:]),
			"featureCode": featureCode,
		}).
		SetResult(&result).
		Post(loginPath)
	err = c.checkMeta("login", resp, err, result.Meta)
	metrics.ObserveVendorCall("login", time.Since(start), err)

	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Code == codeAreaRedirect && result.LoginArea.APIDomain != "" {
			domain := result.LoginArea.APIDomain
			if !strings.HasPrefix(domain, "http") {
				domain = "https://" + domain
			}
			c.logger.Info("Ezviz account lives in another region, switching endpoint", "base_url", domain)
			c.http.SetBaseURL(domain)
		}
		return err
	}

	if result.LoginSession.SessionID == "" {
		return &Error{Op: "login", Message: "no session id in response"}
	}

	c.mu.Lock()
	c.session = result.LoginSession.SessionID
	c.mu.Unlock()
	c.logger.Debug("Logged in to Ezviz cloud", "base_url", c.http.BaseURL)
	return nil
}

// request returns a request carrying the session header.
func (c *Client) request(ctx context.Context, op string) (*resty.Request, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == "" {
		return nil, &Error{Op: op, Err: ErrNotLoggedIn}
	}
	return c.http.R().SetContext(ctx).SetHeader("sessionId", session), nil
}

func (c *Client) checkMeta(op string, resp *resty.Response, err error, m meta) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return &Error{Op: op, Code: codeSessionExpired, Message: "session expired", Err: ErrNotLoggedIn}
	}
	if resp.IsError() {
		return &Error{Op: op, Message: "http " + resp.Status()}
	}
	switch m.Code {
	case codeOK:
		return nil
	case codeBadAccount, codeBadPassword, codeAccountLocked:
		return &Error{Op: op, Code: m.Code, Message: m.Message, Err: ErrInvalidCredentials}
	case 0:
		return &Error{Op: op, Message: "malformed response"}
	default:
		return &Error{Op: op, Code: m.Code, Message: m.Message}
	}
}

func (c *Client) checkLegacy(op string, resp *resty.Response, err error, r legacyResponse) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.IsError() {
		return &Error{Op: op, Message: "http " + resp.Status()}
	}
	if r.ResultCode != "0" {
		code, _ := strconv.Atoi(string(r.ResultCode))
		return &Error{Op: op, Code: code, Message: r.ResultDes}
	}
	return nil
}
