package pam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bare_number", "123", "123"},
		{"number_with_newline", "123\n", "123"},
		{"quoted", `"456"`, "456"},
		{"object_upper", `{"RequestID":789}`, "789"},
		{"object_camel_string", `{"RequestId":"790"}`, "790"},
		{"object_lower", `{"requestid": 791}`, "791"},
		{"object_without_id", `{"Other":1}`, ""},
		{"not_json", `abc-1`, "abc-1"},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRequestID([]byte(tt.body)))
		})
	}
}

func TestDecodeCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"raw", "P@ssw0rd", "P@ssw0rd"},
		{"raw_trimmed", "  P@ssw0rd\n", "P@ssw0rd"},
		{"json_string", `"P@ss\"w0rd"`, `P@ss"w0rd`},
		{"credential_field", `{"Credential":"c1","Password":"p1"}`, "c1"},
		{"password_field", `{"Password":"p1"}`, "p1"},
		{"quoted_object", `"{\"Credential\":\"c2\"}"`, "c2"},
		{"object_without_known_field", `{"Secret":"x"}`, `{"Secret":"x"}`},
		{"broken_object", `{not json`, `{not json`},
		{"numeric_credential", `{"Credential":12345}`, "12345"},
		{"unterminated_quote", `"abc`, `"abc`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeCredential([]byte(tt.body)))
		})
	}
}

func TestDecodeRequests(t *testing.T) {
	t.Parallel()

	body := `[
		{"RequestID": 11, "SystemID": 1, "AccountID": 2},
		{"requestId": "12", "systemId": 3, "accountId": 4},
		{"RequestID": 13, "SystemID": "x"}
	]`

	got, err := decodeRequests([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []ActiveRequest{
		{RequestID: "11", SystemID: 1, AccountID: 2},
		{RequestID: "12", SystemID: 3, AccountID: 4},
		{RequestID: "13", SystemID: -1, AccountID: -1},
	}, got)

	_, err = decodeRequests([]byte(`{"not":"an array"}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeAccounts(t *testing.T) {
	t.Parallel()

	got, err := decodeAccounts([]byte(`[{"SystemId":1,"SystemName":"DB01","AccountId":7,"AccountName":"sa"}]`))
	require.NoError(t, err)
	assert.Equal(t, []ManagedAccount{{SystemID: 1, SystemName: "DB01", AccountID: 7, AccountName: "sa"}}, got)

	_, err = decodeAccounts([]byte(`<html>`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeSafeItems(t *testing.T) {
	t.Parallel()

	got, err := decodeSafeItems([]byte(`[
		{"Title":"App1_DB","Folder":"Dev","Password":"P1","Username":"u1"},
		{"title":"Lower","Password":"P2"},
		{"Title":"Nulls","Username":null}
	]`))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "App1_DB", *got[0].Title)
	assert.Equal(t, "Dev", *got[0].Folder)
	assert.Equal(t, "u1", *got[0].Username)

	require.NotNil(t, got[1].Title)
	assert.Equal(t, "Lower", *got[1].Title)
	assert.Nil(t, got[1].Folder)
	assert.Nil(t, got[1].Username)

	assert.Nil(t, got[2].Username)
	assert.Nil(t, got[2].Password)
}

func TestDecodeSafeItemsPrefersExactCase(t *testing.T) {
	t.Parallel()

	got, err := decodeSafeItems([]byte(`[
		{"Title":"A","title":"b"},
		{"title":"b","Title":"A"},
		{"Title":"E","Folder":""}
	]`))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "A", *got[0].Title)
	assert.Equal(t, "A", *got[1].Title)
	require.NotNil(t, got[2].Folder)
	assert.Equal(t, "", *got[2].Folder)
}
