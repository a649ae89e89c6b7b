package fortnox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin client for the Fortnox REST API. Every call carries a bearer
// access token plus the Client-Secret header this provider additionally requires.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a REST client for the given registration.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// CompanyInformation fetches the identity of the connected Fortnox company.
func (c *Client) CompanyInformation(ctx context.Context, accessToken string) (*CompanyInformation, error) {
	var env companyInformationEnvelope
	if err := c.do(ctx, http.MethodGet, "/companyinformation", accessToken, nil, &env); err != nil {
		return nil, err
	}
	return &env.CompanyInformation, nil
}

// CreateProject creates a project. A duplicate ProjectNumber surfaces as an
// *APIError for which IsDuplicate returns true.
func (c *Client) CreateProject(ctx context.Context, accessToken string, p Project) (*Project, error) {
	var env projectEnvelope
	if err := c.do(ctx, http.MethodPost, "/projects", accessToken, projectEnvelope{Project: p}, &env); err != nil {
		return nil, err
	}
	return &env.Project, nil
}

// GetProject fetches an existing project by its number.
func (c *Client) GetProject(ctx context.Context, accessToken, projectNumber string) (*Project, error) {
	var env projectEnvelope
	path := "/projects/" + url.PathEscape(projectNumber)
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &env); err != nil {
		return nil, err
	}
	return &env.Project, nil
}

// CreateSupplierInvoice posts a supplier invoice with its rows.
func (c *Client) CreateSupplierInvoice(ctx context.Context, accessToken string, inv SupplierInvoice) (*SupplierInvoice, error) {
	var env supplierInvoiceEnvelope
	if err := c.do(ctx, http.MethodPost, "/supplierinvoices", accessToken, supplierInvoiceEnvelope{SupplierInvoice: inv}, &env); err != nil {
		return nil, err
	}
	return &env.SupplierInvoice, nil
}

// GetVoucher fetches a voucher by series and number.
func (c *Client) GetVoucher(ctx context.Context, accessToken, series string, number int) (*Voucher, error) {
	var env voucherEnvelope
	path := fmt.Sprintf("/vouchers/%s/%d", url.PathEscape(series), number)
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &env); err != nil {
		return nil, err
	}
	return &env.Voucher, nil
}

// CreateVoucher posts a new voucher.
func (c *Client) CreateVoucher(ctx context.Context, accessToken string, v Voucher) (*Voucher, error) {
	var env voucherEnvelope
	if err := c.do(ctx, http.MethodPost, "/vouchers", accessToken, voucherEnvelope{Voucher: v}, &env); err != nil {
		return nil, err
	}
	return &env.Voucher, nil
}

// UploadInboxFile uploads document bytes to the Fortnox inbox.
func (c *Client) UploadInboxFile(ctx context.Context, accessToken, filename string, content []byte) (*InboxFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/inbox", &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeaders(req, accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp)
	}
	var env fileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	return &env.File, nil
}

// ConnectFileToVoucher attaches an uploaded inbox file to a voucher.
func (c *Client) ConnectFileToVoucher(ctx context.Context, accessToken, fileID, series string, number int) error {
	body := voucherFileConnectionEnvelope{VoucherFileConnection: voucherFileConnection{
		FileID:        fileID,
		VoucherSeries: series,
		VoucherNumber: strconv.Itoa(number),
	}}
	return c.do(ctx, http.MethodPost, "/voucherfileconnections", accessToken, body, nil)
}

// do performs one JSON request against the API and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req, accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Client-Secret", c.cfg.ClientSecret)
	req.Header.Set("Accept", "application/json")
}

// errorInformation is the provider's error payload.
type errorInformation struct {
	Error   int    `json:"Error"`
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

type errorEnvelope struct {
	ErrorInformation errorInformation `json:"ErrorInformation"`
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.ErrorInformation.Message != "" {
		return &APIError{
			HTTPStatus: resp.StatusCode,
			Code:       env.ErrorInformation.Code,
			Message:    env.ErrorInformation.Message,
		}
	}
	return &APIError{
		HTTPStatus: resp.StatusCode,
		Message:    string(body),
	}
}
