// Package snmp collects identity, neighbor, interface and vendor metric
// data from network devices.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/user/topomon/internal/model"
)

// Target identifies a device and the budget for each query against it.
type Target struct {
	Address     string // host or host:port
	Credentials model.Credentials
	Timeout     time.Duration
	Retries     int
}

// Transport performs point queries and subtree walks. Walk returns what
// it collected before any error alongside that error.
type Transport interface {
	Get(ctx context.Context, t Target, oids []string) ([]gosnmp.SnmpPDU, error)
	Walk(ctx context.Context, t Target, root string, maxResults int) ([]gosnmp.SnmpPDU, error)
}

// GoSNMPTransport is a Transport backed by gosnmp, opening one session per call.
type GoSNMPTransport struct {
	Port           uint16
	MaxOids        int
	MaxRepetitions uint32
}

// NewGoSNMPTransport creates a transport with standard session settings.
func NewGoSNMPTransport(port uint16, maxRepetitions uint32) *GoSNMPTransport {
	if port == 0 {
		port = 161
	}
	if maxRepetitions == 0 {
		maxRepetitions = 25
	}
	return &GoSNMPTransport{
		Port:           port,
		MaxOids:        gosnmp.MaxOids,
		MaxRepetitions: maxRepetitions,
	}
}

var errWalkLimit = errors.New("walk result limit reached")

// Get fetches the given scalar OIDs.
func (g *GoSNMPTransport) Get(ctx context.Context, t Target, oids []string) ([]gosnmp.SnmpPDU, error) {
	sn, err := g.openSession(ctx, t)
	if err != nil {
		return nil, err
	}
	defer sn.Conn.Close()

	packet, err := sn.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", t.Address, err)
	}
	if packet.Error != gosnmp.NoError {
		return nil, fmt.Errorf("get %s: %s", t.Address, packet.Error)
	}
	return packet.Variables, nil
}

// Walk collects every PDU under root, up to maxResults when it is positive.
func (g *GoSNMPTransport) Walk(ctx context.Context, t Target, root string, maxResults int) ([]gosnmp.SnmpPDU, error) {
	sn, err := g.openSession(ctx, t)
	if err != nil {
		return nil, err
	}
	defer sn.Conn.Close()

	var out []gosnmp.SnmpPDU
	collect := func(pdu gosnmp.SnmpPDU) error {
		out = append(out, pdu)
		if maxResults > 0 && len(out) >= maxResults {
			return errWalkLimit
		}
		return nil
	}

	if sn.Version == gosnmp.Version1 {
		err = sn.Walk(root, collect)
	} else {
		err = sn.BulkWalk(root, collect)
	}
	if err != nil && !errors.Is(err, errWalkLimit) {
		return out, fmt.Errorf("walk %s %s: %w", t.Address, root, err)
	}
	return out, nil
}

func (g *GoSNMPTransport) openSession(ctx context.Context, t Target) (*gosnmp.GoSNMP, error) {
	host, port := splitAddress(t.Address, g.Port)

	sn := &gosnmp.GoSNMP{
		Context:        ctx,
		Target:         host,
		Port:           port,
		Transport:      "udp",
		Timeout:        t.Timeout,
		Retries:        t.Retries,
		MaxOids:        g.MaxOids,
		MaxRepetitions: g.MaxRepetitions,
	}

	cred := t.Credentials
	switch strings.ToLower(cred.Version) {
	case "v3":
		sn.Version = gosnmp.Version3
		sn.SecurityModel = gosnmp.UserSecurityModel
		usm := &gosnmp.UsmSecurityParameters{UserName: cred.V3User}
		sn.MsgFlags = gosnmp.NoAuthNoPriv
		if cred.V3Auth != "" {
			usm.AuthenticationProtocol = gosnmp.SHA
			usm.AuthenticationPassphrase = cred.V3Auth
			sn.MsgFlags = gosnmp.AuthNoPriv
			if cred.V3Priv != "" {
				usm.PrivacyProtocol = gosnmp.AES
				usm.PrivacyPassphrase = cred.V3Priv
				sn.MsgFlags = gosnmp.AuthPriv
			}
		}
		sn.SecurityParameters = usm
	case "v1", "1":
		sn.Version = gosnmp.Version1
		sn.Community = firstNonEmpty(cred.Community, "public")
	default:
		sn.Version = gosnmp.Version2c
		sn.Community = firstNonEmpty(cred.Community, "public")
	}

	if err := sn.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", t.Address, err)
	}
	return sn, nil
}

func splitAddress(addr string, def uint16) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, def
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || p == 0 {
		return host, def
	}
	return host, uint16(p)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
