// Package planner talks to the external availability-to-promise engine and
// maps its responses back onto the order change-set, including line splits.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/httpclient"
)

// CommitFlag settles a prior inquiry's reservation.
type CommitFlag string

const (
	CommitFlagCommit   CommitFlag = "COMMIT"
	CommitFlagRollback CommitFlag = "ROLLBACK"
)

// InquiryLine is one per-line record of an inquiry envelope.
type InquiryLine struct {
	LineNumber              string  `json:"lineNumber"`
	ProductCode             string  `json:"productCode"`
	RequestedQuantity       float64 `json:"requestedQuantity"`
	RequestDate             string  `json:"requestDate"`
	InquiryMethod           string  `json:"inquiryMethod"`
	UseInventory            bool    `json:"useInventory"`
	UseConsignmentInventory bool    `json:"useConsignmentInventory"`
	UseProjectedInventory   bool    `json:"useProjectedInventory"`
	UseProduction           bool    `json:"useProduction"`
	OrderSplitLogic         string  `json:"orderSplitLogic"`
	SingleSourcing          bool    `json:"singleSourcing"`
	ReATPRequired           bool    `json:"reATPRequired"`
}

// InquiryRequest is one envelope per saga step.
type InquiryRequest struct {
	HeaderCode string        `json:"headerCode"`
	Lines      []InquiryLine `json:"lines"`
}

// ResponseLine is one planner commitment. LineNumber has the form
// "<parentItemNo>[.<suffix>]"; suffixed lines are splits of the parent.
type ResponseLine struct {
	LineNumber    string  `json:"lineNumber"`
	Quantity      float64 `json:"quantity"`
	DispatchDate  string  `json:"dispatchDate"`
	WarehouseCode string  `json:"warehouseCode"`
	ConfirmStatus string  `json:"confirmStatus"`
	OnHandStock   bool    `json:"onHandStock"`
}

// InquiryError is a per-line business rejection.
type InquiryError struct {
	ItemNo     string `json:"item_no"`
	FirstCode  string `json:"first_code"`
	SecondCode string `json:"second_code"`
	Message    string `json:"message"`
}

// InquiryResponse is the planner's answer to an inquiry envelope.
type InquiryResponse struct {
	HeaderCode    string         `json:"headerCode"`
	ResponseLines []ResponseLine `json:"responseLines"`
	Errors        []InquiryError `json:"errors"`
}

// ConfirmRequest commits or rolls back the reservation of a prior inquiry.
type ConfirmRequest struct {
	HeaderCode string     `json:"headerCode"`
	CommitFlag CommitFlag `json:"commitFlag"`
}

// ConfirmResponse reports confirm/rollback errors, if any.
type ConfirmResponse struct {
	Errors []InquiryError `json:"errors"`
}

// Client is the planner transport. Calls block until the planner answers or
// the transport times out.
type Client interface {
	Inquire(ctx context.Context, req *InquiryRequest) (*InquiryResponse, error)
	Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResponse, error)
}

// HTTPConfig holds the planner endpoint settings.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient is the HTTP-backed planner transport.
type HTTPClient struct {
	http   *httpclient.Client
	config HTTPConfig
	logger ectologger.Logger
}

func NewHTTPClient(cfg HTTPConfig, logger ectologger.Logger) *HTTPClient {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	return &HTTPClient{
		http:   httpclient.NewClient(httpCfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (c *HTTPClient) headers() map[string]string {
	h := map[string]string{}
	if c.config.APIKey != "" {
		h["X-Api-Key"] = c.config.APIKey
	}
	return h
}

func (c *HTTPClient) Inquire(ctx context.Context, req *InquiryRequest) (*InquiryResponse, error) {
	url := fmt.Sprintf("%s/api/v1/inquiries", c.config.BaseURL)

	var resp InquiryResponse
	if err := c.http.PostJSON(ctx, url, c.headers(), req, &resp); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("planner inquiry failed for header %s", req.HeaderCode)
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResponse, error) {
	url := fmt.Sprintf("%s/api/v1/inquiries/%s/commit", c.config.BaseURL, req.HeaderCode)

	var resp ConfirmResponse
	if err := c.http.PostJSON(ctx, url, c.headers(), req, &resp); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("planner %s failed for header %s", req.CommitFlag, req.HeaderCode)
		return nil, err
	}
	return &resp, nil
}
