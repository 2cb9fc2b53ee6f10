package gateway

import (
	"encoding/json"
	"fmt"
	"io"
)

// CallbackEnvelope is the webhook wire format: a nested result with an
// optional list of metadata items. The gateway delivers it at-least-once.
type CallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []MetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MetadataItem is one key/value entry of the callback metadata list
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ParseCallback decodes a webhook body into a normalized Result. A callback
// always carries a terminal verdict: code 0 is success, anything else is an
// explicit failure. Metadata fields are advisory only.
func ParseCallback(r io.Reader) (*Result, error) {
	var envelope CallbackEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parseCallback: json.Decode: %w", err)
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("parseCallback: missing CheckoutRequestID")
	}

	result := &Result{
		CheckoutRequestID: cb.CheckoutRequestID,
		Code:              fmt.Sprintf("%d", cb.ResultCode),
		Desc:              cb.ResultDesc,
	}
	if cb.ResultCode == 0 {
		result.Outcome = OutcomeSuccess
	} else {
		result.Outcome = OutcomeFailure
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = int64(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.Receipt = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				result.Phone = fmt.Sprintf("%.0f", v)
			case string:
				result.Phone = v
			}
		}
	}

	return result, nil
}
