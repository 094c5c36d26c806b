package response

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusOK, APIResponseCodeOK.HTTPStatus())
	require.Equal(t, http.StatusBadRequest, APIResponseCodeAmountMismatch.HTTPStatus())
	require.Equal(t, http.StatusNotFound, APIResponseCodeNotFound.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, APIResponseCodePaymentFailed.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, APIResponseCode(12345).HTTPStatus())
}

func TestEnvelope(t *testing.T) {
	b, err := json.Marshal(OKT(map[string]string{"status": "ok"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"code":0,"message":"ok","data":{"status":"ok"}}`, string(b))

	e := ErrorMsg(APIResponseCodePaymentFailed, "")
	require.False(t, e.Success)
	require.Equal(t, GenericPaymentFailure, e.Message)
}
