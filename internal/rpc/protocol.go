// Package rpc exposes Index.Find over the network using raw QUIC streams,
// gated by a semver-checked protocol version handshake.
package rpc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is the version this build of the server advertises.
// Clients must satisfy Constraint to be allowed to query.
const ProtocolVersion = "1.0.0"

// Constraint is the version range a client requires of a server before
// issuing queries.
const Constraint = ">=1.0.0, <2.0.0"

const alpn = "dwarfidx-query"

// handshakeRequest is the first message a client sends the server.
type handshakeRequest struct {
	ClientConstraint string `json:"client_constraint"`
}

// handshakeResponse is the server's reply to a handshakeRequest.
type handshakeResponse struct {
	ServerVersion string `json:"server_version"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
}

// findRequest is one query sent over an accepted connection's stream.
type findRequest struct {
	Name string `json:"name"`
	Tag  uint8  `json:"tag"`
}

// locationWire is one dwarfindex.Location as carried in a findResponse.
type locationWire struct {
	File      string `json:"file"`
	CUOffset  uint64 `json:"cu_offset"`
	DIEOffset uint64 `json:"die_offset"`
	Tag       uint8  `json:"tag"`
}

// findResponse is the server's reply to a findRequest.
type findResponse struct {
	Locations []locationWire `json:"locations,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func checkConstraint(serverVersion, clientConstraint string) error {
	v, err := semver.NewVersion(serverVersion)
	if err != nil {
		return err
	}

	c, err := semver.NewConstraint(clientConstraint)
	if err != nil {
		return err
	}

	if !c.Check(v) {
		return errIncompatible
	}

	return nil
}

var errIncompatible = &incompatibleError{}

type incompatibleError struct{}

func (*incompatibleError) Error() string {
	return "server protocol version does not satisfy client constraint"
}

// selfSignedTLSConfig builds an in-memory, self-signed TLS config for the
// QUIC listener. There is no certificate authority in this protocol; the
// query service is meant for trusted-network or loopback use.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
	}, nil
}
