package fortnox

import "encoding/json"

// Config holds the OAuth client registration and endpoints for the Fortnox API.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
}

// TokenResponse is the JSON structure of the OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// CompanyInformation identifies the Fortnox company a credential is connected to.
type CompanyInformation struct {
	CompanyName        string `json:"CompanyName"`
	OrganizationNumber string `json:"OrganizationNumber"`
	DatabaseNumber     int    `json:"DatabaseNumber,omitempty"`
}

// Project is a Fortnox project. The engine keys projects by vehicle registration
// number so one vehicle maps to exactly one project.
type Project struct {
	ProjectNumber string `json:"ProjectNumber"`
	Description   string `json:"Description,omitempty"`
	Status        string `json:"Status,omitempty"`
}

// SupplierInvoiceRow is one debit or credit line on a supplier invoice.
type SupplierInvoiceRow struct {
	Account int     `json:"Account"`
	Debit   float64 `json:"Debit"`
	Credit  float64 `json:"Credit"`
	Project string  `json:"Project,omitempty"`
}

// SupplierInvoice is the request/response shape for /supplierinvoices.
// GivenNumber, VoucherSeries and VoucherNumber are set by Fortnox on creation.
type SupplierInvoice struct {
	SupplierNumber      string               `json:"SupplierNumber"`
	InvoiceNumber       string               `json:"InvoiceNumber,omitempty"`
	InvoiceDate         string               `json:"InvoiceDate,omitempty"`
	DueDate             string               `json:"DueDate,omitempty"`
	Total               float64              `json:"Total,omitempty"`
	Project             string               `json:"Project,omitempty"`
	Comments            string               `json:"Comments,omitempty"`
	GivenNumber         json.Number          `json:"GivenNumber,omitempty"`
	VoucherSeries       string               `json:"VoucherSeries,omitempty"`
	VoucherNumber       int                  `json:"VoucherNumber,omitempty"`
	SupplierInvoiceRows []SupplierInvoiceRow `json:"SupplierInvoiceRows"`
}

// VoucherRow is one line of a bookkeeping voucher.
type VoucherRow struct {
	Account     int     `json:"Account"`
	Debit       float64 `json:"Debit"`
	Credit      float64 `json:"Credit"`
	Description string  `json:"Description,omitempty"`
}

// Voucher is the request/response shape for /vouchers.
type Voucher struct {
	VoucherSeries   string       `json:"VoucherSeries"`
	VoucherNumber   int          `json:"VoucherNumber,omitempty"`
	TransactionDate string       `json:"TransactionDate"`
	Description     string       `json:"Description,omitempty"`
	VoucherRows     []VoucherRow `json:"VoucherRows"`
}

// InboxFile is an uploaded document in the Fortnox inbox, ready to be connected
// to a voucher.
type InboxFile struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Envelopes: the Fortnox API wraps every resource in a single-key object.

type companyInformationEnvelope struct {
	CompanyInformation CompanyInformation `json:"CompanyInformation"`
}

type projectEnvelope struct {
	Project Project `json:"Project"`
}

type supplierInvoiceEnvelope struct {
	SupplierInvoice SupplierInvoice `json:"SupplierInvoice"`
}

type voucherEnvelope struct {
	Voucher Voucher `json:"Voucher"`
}

type fileEnvelope struct {
	File InboxFile `json:"File"`
}

type voucherFileConnectionEnvelope struct {
	VoucherFileConnection voucherFileConnection `json:"VoucherFileConnection"`
}

type voucherFileConnection struct {
	FileID        string `json:"FileId"`
	VoucherSeries string `json:"VoucherSeries"`
	VoucherNumber string `json:"VoucherNumber"`
}
