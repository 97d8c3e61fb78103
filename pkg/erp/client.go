// Package erp builds update payloads for the order-management backend and
// talks to it. The ERP owns the authoritative sales order.
package erp

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/httpclient"
)

// UpdateFlag marks the operation of an item or schedule block.
type UpdateFlag string

const (
	UpdateFlagInsert UpdateFlag = "I"
	UpdateFlagUpdate UpdateFlag = "U"
	UpdateFlagDelete UpdateFlag = "D"
)

// Message types returned by the ERP.
const (
	MessageTypeError   = "E"
	MessageTypeWarning = "W"
	MessageTypeSuccess = "S"
)

// OrderHeaderIn carries the header fields being changed.
type OrderHeaderIn struct {
	PONo        string `json:"poNo,omitempty"`
	PaymentTerm string `json:"paymentTerm,omitempty"`
	ShipDate    string `json:"shipDate,omitempty"`
}

// OrderHeaderInX pairs each header field with a changed indicator.
type OrderHeaderInX struct {
	UpdateFlag  UpdateFlag `json:"updateflag"`
	PONo        bool       `json:"poNo"`
	PaymentTerm bool       `json:"paymentTerm"`
	ShipDate    bool       `json:"shipDate"`
}

// OrderPartner identifies a business partner of the order.
type OrderPartner struct {
	PartnerRole   string `json:"partnerRole"`
	PartnerNumber string `json:"partnerNumber"`
}

// OrderItemIn is one item block of the update payload.
type OrderItemIn struct {
	ItemNo                 string  `json:"itemNo"`
	Material               string  `json:"material,omitempty"`
	Plant                  string  `json:"plant,omitempty"`
	TargetQuantity         float64 `json:"targetQty,omitempty"`
	UnlimitedTolerance     bool    `json:"unlimitedTol,omitempty"`
	OverDeliveryTolerance  float64 `json:"overdelTol,omitempty"`
	UnderDeliveryTolerance float64 `json:"underTol,omitempty"`
}

// OrderItemInX pairs each item field with a changed indicator and carries
// the operation flag.
type OrderItemInX struct {
	ItemNo                 string     `json:"itemNo"`
	UpdateFlag             UpdateFlag `json:"updateflag"`
	Material               bool       `json:"material"`
	Plant                  bool       `json:"plant"`
	TargetQuantity         bool       `json:"targetQty"`
	UnlimitedTolerance     bool       `json:"unlimitedTol"`
	OverDeliveryTolerance  bool       `json:"overdelTol"`
	UnderDeliveryTolerance bool       `json:"underTol"`
}

// OrderScheduleIn is one schedule block of the update payload.
type OrderScheduleIn struct {
	ItemNo            string  `json:"itemNo"`
	ScheduleLine      string  `json:"schedLine"`
	RequestDate       string  `json:"reqDate,omitempty"`
	RequestQuantity   float64 `json:"reqQty,omitempty"`
	ConfirmedQuantity float64 `json:"confirmedQty,omitempty"`
}

// OrderScheduleInX pairs each schedule field with a changed indicator.
type OrderScheduleInX struct {
	ItemNo            string     `json:"itemNo"`
	ScheduleLine      string     `json:"schedLine"`
	UpdateFlag        UpdateFlag `json:"updateflag"`
	RequestDate       bool       `json:"reqDate"`
	RequestQuantity   bool       `json:"reqQty"`
	ConfirmedQuantity bool       `json:"confirmedQty"`
}

// UpdateRequest is the full order-change payload.
type UpdateRequest struct {
	SalesDocument     string             `json:"salesDocument"`
	OrderHeaderIn     OrderHeaderIn      `json:"orderHeaderIn"`
	OrderHeaderInX    OrderHeaderInX     `json:"orderHeaderInX"`
	OrderPartners     []OrderPartner     `json:"orderPartners,omitempty"`
	OrderItemsIn      []OrderItemIn      `json:"orderItemsIn"`
	OrderItemsInX     []OrderItemInX     `json:"orderItemsInx"`
	OrderSchedulesIn  []OrderScheduleIn  `json:"orderSchedulesIn"`
	OrderSchedulesInX []OrderScheduleInX `json:"orderSchedulesInx"`
}

// ReturnMessage is one order- or item-level message from the ERP.
type ReturnMessage struct {
	Type    string `json:"type"`
	ItemNo  string `json:"itemNo,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsError reports whether the message is an error.
func (m ReturnMessage) IsError() bool {
	return m.Type == MessageTypeError
}

// OrderItemOut echoes server-computed item fields.
type OrderItemOut struct {
	ItemNo    string  `json:"itemNo"`
	Material  string  `json:"material"`
	NetWeight float64 `json:"netWeight"`
}

// OrderScheduleOut echoes server-computed schedule fields.
type OrderScheduleOut struct {
	ItemNo            string  `json:"itemNo"`
	ScheduleLine      string  `json:"schedLine"`
	ConfirmedQuantity float64 `json:"confirmedQty"`
	ConfirmedDate     string  `json:"confirmedDate"`
}

// UpdateResponse reports the outcome of an order update.
type UpdateResponse struct {
	OrderItemsOut     []OrderItemOut     `json:"orderItemsOut"`
	OrderSchedulesOut []OrderScheduleOut `json:"orderSchedulesOut"`
	OrderMessages     []ReturnMessage    `json:"orderMessages"`
	ItemMessages      []ReturnMessage    `json:"itemMessages"`
}

// HasErrors reports whether any order- or item-level error came back.
func (r *UpdateResponse) HasErrors() bool {
	for _, m := range r.OrderMessages {
		if m.IsError() {
			return true
		}
	}
	for _, m := range r.ItemMessages {
		if m.IsError() {
			return true
		}
	}
	return false
}

// Client is the ERP transport. Calls block until the ERP answers or the
// transport times out.
type Client interface {
	UpdateOrder(ctx context.Context, req *UpdateRequest) (*UpdateResponse, error)
}

// HTTPConfig holds the ERP endpoint settings.
type HTTPConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// HTTPClient is the HTTP-backed ERP transport.
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

func (c *HTTPClient) UpdateOrder(ctx context.Context, req *UpdateRequest) (*UpdateResponse, error) {
	url := fmt.Sprintf("%s/api/v1/orders/%s/change", c.config.BaseURL, req.SalesDocument)

	headers := map[string]string{}
	if c.config.Username != "" {
		headers["Authorization"] = basicAuth(c.config.Username, c.config.Password)
	}

	var resp UpdateResponse
	if err := c.http.PostJSON(ctx, url, headers, req, &resp); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("erp order update failed for %s", req.SalesDocument)
		return nil, err
	}
	return &resp, nil
}

func basicAuth(username, password string) string {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + credentials
}
