package grpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/forumkit/searchsync/pkg/errors"
)

const dialTimeout = 5 * time.Second

// Client is the admin side of the control plane: one persistent TCP
// connection carrying newline-delimited JSON requests and responses.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder

	mu     sync.Mutex // serializes calls; one request is in flight at a time
	nextID int64
}

// Dial connects to the daemon's control address.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing control address %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the response payload into
// result (skipped when result is nil). Server-side failures come back as
// errors matching the sentinel the server classified them under, so
// errors.Is works across the process boundary. Safe for concurrent use;
// concurrent calls take turns on the connection.
func (c *Client) Call(method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params for %s: %w", method, err)
	}

	c.nextID++
	id := strconv.FormatInt(c.nextID, 10)
	if err := c.enc.Encode(Request{Method: method, ID: id, Params: raw}); err != nil {
		return fmt.Errorf("sending %s request: %w", method, err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %q does not match request id %q, connection out of sync", resp.ID, id)
	}
	if resp.Error != "" {
		return apperrors.FromCode(resp.Code, resp.Error)
	}

	if result != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("re-encoding %s response data: %w", method, err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decoding %s response into %T: %w", method, result, err)
		}
	}
	return nil
}

// Close closes the connection. An in-flight Call on another goroutine
// returns a read error rather than blocking forever.
func (c *Client) Close() error {
	return c.conn.Close()
}
