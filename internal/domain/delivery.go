package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DeliveryMode selects between opening a conversation and appending to one.
type DeliveryMode string

const (
	DeliveryCreate DeliveryMode = "create"
	DeliveryAppend DeliveryMode = "append"
)

// DeliveryTarget holds the credentials and identifiers of one destination.
// It is supplied per request and never stored.
type DeliveryTarget struct {
	APIURL         string `json:"api_url" validate:"required,url"`
	APIToken       string `json:"api_token" validate:"required"`
	AccountID      ID     `json:"account_id" validate:"required"`
	InboxID        ID     `json:"inbox_id,omitempty" validate:"required_without=ConversationID"`
	SourceID       string `json:"source_id,omitempty" validate:"required_without=ConversationID"`
	ConversationID ID     `json:"conversation_id,omitempty"`
}

// Mode reports append when a conversation id is present.
func (t DeliveryTarget) Mode() DeliveryMode {
	if t.ConversationID != "" {
		return DeliveryAppend
	}
	return DeliveryCreate
}

// DeliveryResult summarizes what reached the conversation system.
// ConversationID is set only when Sent is true.
type DeliveryResult struct {
	Sent                bool
	ConversationID      ID
	AttachmentAttempted bool
	AttachmentSent      bool
}

// ID is an opaque identifier accepted as either a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" && isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// FlexString accepts a JSON string or a JSON number and keeps the literal text,
// so a latitude sent as 10.0 stays "10.0".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0 && len(s) < 19
}
