// Package certs decodes DER certificate handles into structured identity
// records: distinguished names as ordered RDN groups, subject alternative
// names as a tagged union, validity and serial data as engine-native text.
// Decoding is pure; a record is produced fresh on every request and never
// cached.
package certs

import (
	"crypto/x509"
	"encoding/asn1"
	"time"

	"github.com/apex/log"
	"github.com/brickingsoft/errors"
)

var (
	ErrDecode = errors.Define("certs: decode failed")
)

// Logger receives non-fatal decode diagnostics (unrecognized general name
// kinds). Swap it out to route diagnostics elsewhere.
var Logger log.Interface = log.Log

// AttributeValue is one (attribute type, value) pair inside an RDN. Type is
// the attribute's textual name when known, its dotted-decimal form otherwise.
// Value is strict UTF-8.
type AttributeValue struct {
	Type  string
	Value string
}

// RDN is one relative distinguished name: the attribute group sharing one
// set index in the encoded name.
type RDN []AttributeValue

// Name is a full distinguished name in original encoding order.
type Name []RDN

// General name kinds. Anything else decodes through the fallback textual
// rendering with the kind taken from the text before the first colon.
const (
	KindDNS     = "DNS"
	KindEmail   = "email"
	KindURI     = "URI"
	KindDirName = "DirName"
)

// GeneralName is one subject alternative name entry. Dir is populated only
// for KindDirName entries, Value for every other kind.
type GeneralName struct {
	Kind  string
	Value string
	Dir   Name
}

// Identity is the decoded view of one certificate.
type Identity struct {
	Subject      Name
	Issuer       Name
	Version      int
	SerialNumber string
	NotBefore    string
	NotAfter     string
	// AltNames is nil when the certificate carries no subject alternative
	// name extension, never empty-but-present.
	AltNames []GeneralName
}

// validityLayout matches the engine's native time rendering.
const validityLayout = "Jan _2 15:04:05 2006 GMT"

// Decode assembles the identity record for one DER certificate handle. Any
// sub-step failure aborts the whole decode; no partial record is returned.
func Decode(der []byte) (*Identity, error) {
	cert, parseErr := x509.ParseCertificate(der)
	if parseErr != nil {
		return nil, errors.From(ErrDecode, errors.WithWrap(parseErr))
	}
	return decodeParsed(cert)
}

func decodeParsed(cert *x509.Certificate) (*Identity, error) {
	subject, subjectErr := DecodeName(cert.RawSubject)
	if subjectErr != nil {
		return nil, subjectErr
	}
	issuer, issuerErr := DecodeName(cert.RawIssuer)
	if issuerErr != nil {
		return nil, issuerErr
	}
	altNames, altErr := decodeAltNames(cert)
	if altErr != nil {
		return nil, altErr
	}
	return &Identity{
		Subject:      subject,
		Issuer:       issuer,
		Version:      cert.Version,
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    timeText(cert.NotBefore),
		NotAfter:     timeText(cert.NotAfter),
		AltNames:     altNames,
	}, nil
}

// ToDER re-encodes the handle as raw DER bytes, no transformation.
func ToDER(der []byte) []byte {
	out := make([]byte, len(der))
	copy(out, der)
	return out
}

// IsCA reports whether the DER certificate carries the CA basic constraint.
// Undecodable handles report false.
func IsCA(der []byte) bool {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return false
	}
	return cert.BasicConstraintsValid && cert.IsCA
}

// attrSET drives the ASN.1 decoder's SET OF handling via the type name.
type attrSET []attrValue

type attrValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

// DecodeName decodes one DER distinguished name into ordered RDN groups.
// Consecutive entries sharing a set are one group; values are converted to
// UTF-8 and validated strictly.
func DecodeName(der []byte) (Name, error) {
	var seq []attrSET
	rest, err := asn1.Unmarshal(der, &seq)
	if err != nil {
		return nil, errors.From(ErrDecode, errors.WithWrap(err))
	}
	if len(rest) != 0 {
		return nil, errors.From(ErrDecode, errors.WithMeta("cause", "trailing bytes after name"))
	}
	name := make(Name, 0, len(seq))
	for _, set := range seq {
		rdn := make(RDN, 0, len(set))
		for _, atv := range set {
			value, valueErr := stringValue(atv.Value)
			if valueErr != nil {
				return nil, valueErr
			}
			rdn = append(rdn, AttributeValue{
				Type:  attributeName(atv.Type),
				Value: value,
			})
		}
		name = append(name, rdn)
	}
	return name, nil
}

// timeText formats a validity bound the way the engine renders it.
func timeText(t time.Time) string {
	return t.UTC().Format(validityLayout)
}
