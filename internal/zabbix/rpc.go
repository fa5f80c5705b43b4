package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
)

const maxResponseBytes = 32 << 20

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth,omitempty"`
	ID      int64  `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int64           `json:"id"`
}

// RPCError is an error object returned by the Zabbix API.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *RPCError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("zabbix api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("zabbix api error %d: %s %s", e.Code, e.Message, e.Data)
}

// authRelated reports whether the server rejected the call because of the
// credentials or the session. Zabbix uses generic "Invalid params" codes for
// these, so the text is the only signal.
func (e *RPCError) authRelated() bool {
	text := strings.ToLower(e.Message + " " + e.Data)
	for _, needle := range []string{"login", "password", "session", "authoriz", "authoris"} {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// credential is a session token plus where the server expects it. The zero
// value sends no credentials.
type credential struct {
	token  string
	bearer bool
}

// call performs one JSON-RPC round trip and decodes the result into out.
// Every failure is wrapped with one of the monitor error classes.
func (c *Client) call(ctx context.Context, method string, params any, cred credential, out any) error {
	msg := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	if !cred.bearer {
		msg.Auth = cred.token
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("zabbix: encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("zabbix: %s: %v: %w", method, err, monitor.ErrConnection)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if cred.bearer && cred.token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("zabbix: %s: %w", method, ctxErr)
		}
		return fmt.Errorf("zabbix: %s: %v: %w", method, err, monitor.ErrConnection)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("zabbix: %s: http status %d: %w", method, resp.StatusCode, monitor.ErrConnection)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("zabbix: %s: %w", method, ctxErr)
		}
		return fmt.Errorf("zabbix: %s: read body: %v: %w", method, err, monitor.ErrConnection)
	}

	var rpc response
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return fmt.Errorf("zabbix: %s: decode response: %v: %w", method, err, monitor.ErrMalformedResponse)
	}
	if rpc.Error != nil {
		if rpc.Error.authRelated() {
			return fmt.Errorf("zabbix: %s: %w: %w", method, rpc.Error, monitor.ErrAuthentication)
		}
		return fmt.Errorf("zabbix: %s: %w: %w", method, rpc.Error, monitor.ErrMalformedResponse)
	}
	if len(rpc.Result) == 0 {
		return fmt.Errorf("zabbix: %s: response has no result: %w", method, monitor.ErrMalformedResponse)
	}
	if err := json.Unmarshal(rpc.Result, out); err != nil {
		return fmt.Errorf("zabbix: %s: decode result: %v: %w", method, err, monitor.ErrMalformedResponse)
	}
	return nil
}

// AsRPCError reports whether err carries an API error object and returns it.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}
