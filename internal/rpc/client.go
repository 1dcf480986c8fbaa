package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/orizon-lang/dwarfidx/internal/dwarfindex"
)

// Client queries a remote Server over QUIC, after verifying the server's
// advertised protocol version satisfies Constraint.
type Client struct {
	conn *quic.Conn
}

// Dial connects to addr and performs the protocol-version handshake.
func Dial(ctx context.Context, addr string) (*Client, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{alpn}} //nolint:gosec // no CA in this protocol; trusted-network use only

	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "handshake failed")

		return nil, err
	}

	enc := json.NewEncoder(stream)
	if err := enc.Encode(handshakeRequest{ClientConstraint: Constraint}); err != nil {
		conn.CloseWithError(0, "handshake failed")

		return nil, err
	}

	var resp handshakeResponse

	dec := json.NewDecoder(stream)
	if err := dec.Decode(&resp); err != nil {
		conn.CloseWithError(0, "handshake failed")

		return nil, err
	}

	stream.Close()

	if resp.Accepted {
		if err := checkConstraint(resp.ServerVersion, Constraint); err != nil {
			resp.Accepted = false
			resp.Reason = err.Error()
		}
	}

	if !resp.Accepted {
		conn.CloseWithError(1, "incompatible protocol version")

		return nil, fmt.Errorf("server version %s rejected by constraint %s: %s", resp.ServerVersion, Constraint, resp.Reason)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying QUIC connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(0, "")
}

// Find issues one query and returns the matching locations.
func (c *Client) Find(ctx context.Context, name string, tag uint8) ([]dwarfindex.Location, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	enc := json.NewEncoder(stream)
	if err := enc.Encode(findRequest{Name: name, Tag: tag}); err != nil {
		return nil, err
	}

	var resp findResponse

	dec := json.NewDecoder(stream)
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}

	out := make([]dwarfindex.Location, len(resp.Locations))
	for i, l := range resp.Locations {
		out[i] = dwarfindex.Location{File: l.File, CUOffset: l.CUOffset, DIEOffset: l.DIEOffset, Tag: l.Tag}
	}

	return out, nil
}
