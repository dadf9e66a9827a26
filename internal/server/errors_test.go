package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONLoose(t *testing.T) {
	// A login finish payload padded with identity fields. The extras must be
	// dropped, not rejected; the subject comes from the protocol transcript.
	payload := `{"sessionId":"sess-1","message":"AQID","sub":"bob","email":"bob@example.com"}`

	req := httptest.NewRequest(http.MethodPost, "/opaque/login/finish", strings.NewReader(payload))
	var body loginFinishBody
	require.NoError(t, decodeJSONLoose(req, &body))
	assert.Equal(t, "sess-1", body.SessionID)
	assert.Equal(t, blob{1, 2, 3}, body.Message)

	t.Run("strict decode rejects the same payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/opaque/login/finish", strings.NewReader(payload))
		var body loginFinishBody
		assert.ErrorContains(t, decodeJSON(req, &body), "unknown field")
	})

	t.Run("malformed body still fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/opaque/login/finish", strings.NewReader("{"))
		var body loginFinishBody
		assert.Error(t, decodeJSONLoose(req, &body))
	})
}
