package netcup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gitlab.bluewillows.net/root/ddnsnotify/pkg/httputil"
)

// DefaultEndpoint is the netcup CCP JSON API endpoint.
const DefaultEndpoint = "https://ccp.netcup.net/run/webservice/servers/endpoint.php?JSON"

// updatedMessage is the only shortmessage that confirms a record update.
const updatedMessage = "DNS records successful updated"

// ErrUnconfirmed is returned when the API answers without confirming the update.
var ErrUnconfirmed = errors.New("netcup did not confirm the update")

// request is the envelope of every API call.
type request struct {
	Action string `json:"action"`
	Param  any    `json:"param"`
}

// response is the envelope of every API answer.
type response struct {
	ServerRequestID string          `json:"serverrequestid"`
	ClientRequestID string          `json:"clientrequestid"`
	Action          string          `json:"action"`
	Status          string          `json:"status"`
	StatusCode      int             `json:"statuscode"`
	ShortMessage    string          `json:"shortmessage"`
	LongMessage     string          `json:"longmessage"`
	ResponseData    json.RawMessage `json:"responsedata"`
}

type loginParam struct {
	APIKey         string `json:"apikey"`
	APIPassword    string `json:"apipassword"`
	CustomerNumber string `json:"customernumber"`
}

type loginData struct {
	APISessionID string `json:"apisessionid"`
}

type sessionParam struct {
	CustomerNumber  string `json:"customernumber"`
	APIKey          string `json:"apikey"`
	APISessionID    string `json:"apisessionid"`
	ClientRequestID string `json:"clientrequestid"`
}

type updateParam struct {
	sessionParam
	DomainName   string       `json:"domainname"`
	DNSRecordSet dnsRecordSet `json:"dnsrecordset"`
}

type dnsRecordSet struct {
	DNSRecords []dnsRecord `json:"dnsrecords"`
}

type dnsRecord struct {
	ID           string `json:"id"`
	Hostname     string `json:"hostname"`
	Type         string `json:"type"`
	Priority     string `json:"priority"`
	Destination  string `json:"destination"`
	DeleteRecord string `json:"deleterecord"`
	State        string `json:"state"`
}

// APIError carries the raw answer of a failed call.
type APIError struct {
	Action string
	Raw    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netcup %s failed: %s", e.Action, e.Raw)
}

// Client talks to the netcup CCP API.
type Client struct {
	endpoint       string
	apiKey         string
	apiPassword    string
	customerNumber string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient creates a netcup API client.
func NewClient(config *Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = httputil.NewClient(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:       endpoint,
		apiKey:         config.APIKey,
		apiPassword:    config.APIPassword,
		customerNumber: config.CustomerNumber,
		httpClient:     httpClient,
		logger:         logger,
	}
}

// Login opens an API session and returns its id.
func (c *Client) Login(ctx context.Context) (string, error) {
	resp, raw, err := c.call(ctx, "login", loginParam{
		APIKey:         c.apiKey,
		APIPassword:    c.apiPassword,
		CustomerNumber: c.customerNumber,
	})
	if err != nil {
		return "", err
	}

	var data loginData
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil || data.APISessionID == "" {
		return "", &APIError{Action: "login", Raw: raw}
	}
	return data.APISessionID, nil
}

// UpdateRecords submits records for domain within session.
// Success requires the confirming shortmessage.
func (c *Client) UpdateRecords(ctx context.Context, session, domain string, records []dnsRecord) error {
	resp, raw, err := c.call(ctx, "updateDnsRecords", updateParam{
		sessionParam: c.session(session),
		DomainName:   domain,
		DNSRecordSet: dnsRecordSet{DNSRecords: records},
	})
	if err != nil {
		return err
	}

	if strings.TrimSpace(resp.ShortMessage) != updatedMessage {
		return fmt.Errorf("%w: %w", ErrUnconfirmed, &APIError{Action: "updateDnsRecords", Raw: raw})
	}
	return nil
}

// Logout ends session.
func (c *Client) Logout(ctx context.Context, session string) error {
	_, _, err := c.call(ctx, "logout", c.session(session))
	return err
}

func (c *Client) session(id string) sessionParam {
	return sessionParam{
		CustomerNumber: c.customerNumber,
		APIKey:         c.apiKey,
		APISessionID:   id,
	}
}

// call performs one API action. Both the decoded envelope and the raw body
// are returned so failures can be logged verbatim.
func (c *Client) call(ctx context.Context, action string, param any) (*response, string, error) {
	body, err := json.Marshal(request{Action: action, Param: param})
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("netcup %s: %w", action, err)
	}
	respBody, err := httputil.ReadBody(httpResp)
	if err != nil {
		return nil, string(respBody), fmt.Errorf("netcup %s: %w", action, err)
	}
	raw := string(respBody)

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, raw, &APIError{Action: action, Raw: raw}
	}
	if resp.Status != "" && !strings.EqualFold(resp.Status, "success") {
		return &resp, raw, &APIError{Action: action, Raw: raw}
	}

	c.logger.Debug("netcup API call",
		slog.String("action", action),
		slog.Int("statuscode", resp.StatusCode),
		slog.String("shortmessage", resp.ShortMessage),
	)
	return &resp, raw, nil
}
