package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quic-go/quic-go"

	"github.com/orizon-lang/dwarfidx/internal/cliutil"
	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/dwarfindex"
)

// Server answers Find queries over QUIC against whatever Index IndexFunc
// returns at the time of each query (e.g. internal/watch.Watcher.Current).
// IndexFunc must be set.
type Server struct {
	Addr      string
	IndexFunc func() *dwarfindex.Index
	Logger    *cliutil.Logger
}

// ListenAndServe runs the QUIC listener until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return err
	}

	ln, err := quic.ListenAddr(s.Addr, tlsConf, nil)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return
	}

	if !s.handshake(stream) {
		conn.CloseWithError(1, "incompatible protocol version")

		return
	}

	for {
		str, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go s.handleFind(str)
	}
}

func (s *Server) handshake(stream *quic.Stream) bool {
	defer stream.Close()

	var req handshakeRequest

	dec := json.NewDecoder(stream)
	if err := dec.Decode(&req); err != nil {
		return false
	}

	resp := handshakeResponse{ServerVersion: ProtocolVersion, Accepted: true}

	if err := checkConstraint(ProtocolVersion, req.ClientConstraint); err != nil {
		resp.Accepted = false
		resp.Reason = err.Error()
	}

	enc := json.NewEncoder(stream)
	_ = enc.Encode(resp)

	return resp.Accepted
}

func (s *Server) handleFind(stream *quic.Stream) {
	defer stream.Close()

	var req findRequest

	dec := json.NewDecoder(stream)
	if err := dec.Decode(&req); err != nil {
		return
	}

	resp := findResponse{}

	ix := s.IndexFunc()
	if ix == nil {
		resp.Error = "index not ready"
	} else {
		locs, err := ix.Find(req.Name, req.Tag)
		if err != nil {
			if errors.Is(err, direrr.ErrNotFound) {
				resp.Error = "not found"
			} else {
				resp.Error = err.Error()
			}
		} else {
			resp.Locations = make([]locationWire, len(locs))
			for i, l := range locs {
				resp.Locations[i] = locationWire{File: l.File, CUOffset: l.CUOffset, DIEOffset: l.DIEOffset, Tag: l.Tag}
			}
		}
	}

	enc := json.NewEncoder(stream)
	_ = enc.Encode(resp)
}

