package rpc

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcrguild/pcrdb-collector/internal/rpc/codec"
)

type memVersionStore struct{ v string }

func (m *memVersionStore) Get() string { return m.v }
func (m *memVersionStore) CompareAndSet(old, new string) bool {
	if m.v != old {
		return false
	}
	m.v = new
	return true
}

func TestParseVersionFromStoreURL(t *testing.T) {
	assert.Equal(t, "10.8.0", parseVersionFromStoreURL("app_10.8.0.apk"))
	assert.Equal(t, "", parseVersionFromStoreURL("no-underscore"))
}

func TestSessionIDFromSID(t *testing.T) {
	a := sessionIDFromSID("abc")
	b := sessionIDFromSID("abc")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, sessionIDFromSID("xyz"))
}

// encodeServerResponse builds the base64-over-AES-CBC envelope a real
// server would send back, given a data_headers/data payload.
func encodeServerResponse(t *testing.T, data map[string]any) []byte {
	t.Helper()
	key := codec.NewSessionKey()
	cipherText, err := codec.Encrypt(map[string]any{
		"data_headers": map[string]any{"sid": "server-sid", "request_id": "req-1"},
		"data":         data,
	}, key)
	require.NoError(t, err)
	wire := append(cipherText, key...)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(wire)))
	base64.StdEncoding.Encode(out, wire)
	return out
}

func TestCallAPIUpdatesSessionState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encodeServerResponse(t, map[string]any{"hello": "world"}))
	}))
	defer srv.Close()

	store := &memVersionStore{v: DefaultAppVersion}
	client := NewClient(srv.URL, 123, store, nil)

	data, err := client.callAPI(context.Background(), "some/endpoint", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "world", data["hello"])
	assert.NotEmpty(t, client.sessionID)
	assert.Equal(t, "req-1", client.requestID)
}
