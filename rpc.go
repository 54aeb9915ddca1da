package work

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxResponseSize = 1 << 20

// post sends body as a JSON POST request and returns the status code and the
// response body.
func post(ctx context.Context, client *http.Client, address string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// call invokes a node RPC action. The action and params are sent as one flat
// JSON object and the whole response object is decoded into result. The
// returned code is 0 on success, -1 if the node answered with an error field,
// or one of the errCode constants.
func call(ctx context.Context, client *http.Client, address string, action string, params map[string]interface{}, result interface{}) (int32, error) {
	req := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		req[k] = v
	}
	req["action"] = action

	body, err := json.Marshal(req)
	if err != nil {
		return errCodeEncodeError, err
	}

	status, data, err := post(ctx, client, address, body)
	if err != nil {
		return errCodeNetworkError, err
	}

	resp := make(map[string]*json.RawMessage)
	err = json.Unmarshal(data, &resp)
	if err != nil {
		if status/100 != 2 {
			return errCodeNetworkError, fmt.Errorf("%s returned http status %d", address, status)
		}
		return errCodeDecodeError, err
	}
	if resp["error"] != nil {
		var msg string
		err := json.Unmarshal(*resp["error"], &msg)
		if err != nil {
			return errCodeDecodeError, err
		}
		return -1, &RPCError{Action: action, Message: msg}
	}
	if status/100 != 2 {
		return errCodeNetworkError, fmt.Errorf("%s returned http status %d", address, status)
	}

	if result != nil {
		err = json.Unmarshal(data, result)
		if err != nil {
			return errCodeDecodeError, err
		}
	}
	return 0, nil
}

// callWithCode is call with the error wrapped so it implements ErrorWithCode.
func callWithCode(ctx context.Context, client *http.Client, address string, action string, params map[string]interface{}, result interface{}) error {
	code, err := call(ctx, client, address, action, params, result)
	if err == nil {
		return nil
	}
	if code == -1 {
		return err
	}
	return errorWithCode{err: err, code: code}
}
