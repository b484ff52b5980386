package pam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseRequestID extracts a request id from a checkout response. Password
// Safe answers with a bare number, but proxies and older versions wrap it
// as a JSON string or as {"RequestID": ...}.
func ParseRequestID(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return ""
	}

	var v interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return strings.TrimSpace(strings.Trim(s, `"`))
	}

	switch t := v.(type) {
	case json.Number:
		return t.String()
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if id, ok := lookupFold(t, "RequestID"); ok {
			return scalarString(id)
		}
	}
	return ""
}

// DecodeCredential turns a credential body into the password. The body may
// be the raw secret, a JSON string, or an object carrying the secret in
// "Credential" or "Password". Anything else is returned as received.
func DecodeCredential(body []byte) string {
	s := strings.TrimSpace(string(body))

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err == nil {
			s = unquoted
		} else {
			s = s[1 : len(s)-1]
		}
	}

	if !strings.HasPrefix(s, "{") {
		return s
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return s
	}
	for _, field := range []string{"Credential", "Password"} {
		if raw, ok := obj[field]; ok {
			return rawString(raw)
		}
	}
	return s
}

// ActiveRequest is one entry of the active request listing.
type ActiveRequest struct {
	RequestID string
	SystemID  int
	AccountID int
}

// decodeRequests reads the GET Requests listing. Field names are matched
// case-insensitively; entries with non-numeric ids get -1.
func decodeRequests(body []byte) ([]ActiveRequest, error) {
	var items []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: requests: %v", ErrDecode, err)
	}

	out := make([]ActiveRequest, 0, len(items))
	for _, item := range items {
		r := ActiveRequest{SystemID: -1, AccountID: -1}
		if v, ok := lookupFold(item, "SystemID"); ok {
			r.SystemID = intValue(v)
		}
		if v, ok := lookupFold(item, "AccountID"); ok {
			r.AccountID = intValue(v)
		}
		if v, ok := lookupFold(item, "RequestID"); ok {
			r.RequestID = scalarString(v)
		}
		out = append(out, r)
	}
	return out, nil
}

// ManagedAccount is one entry of the managed account directory. Identity is
// (SystemID, AccountID).
type ManagedAccount struct {
	SystemID    int    `json:"SystemID"`
	SystemName  string `json:"SystemName"`
	AccountID   int    `json:"AccountID"`
	AccountName string `json:"AccountName"`
}

func decodeAccounts(body []byte) ([]ManagedAccount, error) {
	var accounts []ManagedAccount
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("%w: managed accounts: %v", ErrDecode, err)
	}
	return accounts, nil
}

// SafeItem is one Secrets Safe entry. Nil fields were absent (or null) in
// the response.
type SafeItem struct {
	Title    *string `json:"Title"`
	Folder   *string `json:"Folder"`
	Password *string `json:"Password"`
	Username *string `json:"Username"`
	Account  *string `json:"Account"`
}

// UnmarshalJSON matches field names in any case. An exact-case key wins
// over a differently cased duplicate.
func (s *SafeItem) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = SafeItem{
		Title:    rawField(m, "Title"),
		Folder:   rawField(m, "Folder"),
		Password: rawField(m, "Password"),
		Username: rawField(m, "Username"),
		Account:  rawField(m, "Account"),
	}
	return nil
}

// rawField returns nil when name is absent or null.
func rawField(m map[string]json.RawMessage, name string) *string {
	raw, ok := m[name]
	if !ok {
		for k, v := range m {
			if strings.EqualFold(k, name) {
				raw, ok = v, true
				break
			}
		}
	}
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	v := rawString(raw)
	return &v
}

func decodeSafeItems(body []byte) ([]SafeItem, error) {
	var items []SafeItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: secrets safe: %v", ErrDecode, err)
	}
	return items, nil
}

func lookupFold(m map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func intValue(v interface{}) int {
	n, ok := v.(json.Number)
	if !ok {
		return -1
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return -1
	}
	return i
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
