package certs

import (
	"crypto/x509"
	"encoding/asn1"
	"net"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

// GeneralName choice tags.
const (
	sanOtherName    = 0
	sanEmail        = 1
	sanDNS          = 2
	sanX400         = 3
	sanDirName      = 4
	sanEDIPartyName = 5
	sanURI          = 6
	sanIPAddress    = 7
	sanRegisteredID = 8
)

// decodeAltNames renders the subject alternative name extension, nil when
// absent. Mail, DNS and URI entries keep their raw bytes permissively so
// embedded NULs survive; directory names nest a full distinguished name;
// everything else goes through a textual fallback rendering. Unrecognized
// kinds warn and keep decoding.
func decodeAltNames(cert *x509.Certificate) ([]GeneralName, error) {
	var out []GeneralName
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidSubjectAltName) {
			continue
		}
		names, err := parseGeneralNames(ext.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func parseGeneralNames(value []byte) ([]GeneralName, error) {
	der := cryptobyte.String(value)
	var seq cryptobyte.String
	if !der.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !der.Empty() {
		return nil, errors.From(ErrDecode, errors.WithMeta("cause", "malformed subjectAltName extension"))
	}
	var out []GeneralName
	for !seq.Empty() {
		var entry cryptobyte.String
		var tag cryptobyte_asn1.Tag
		if !seq.ReadAnyASN1(&entry, &tag) {
			return nil, errors.From(ErrDecode, errors.WithMeta("cause", "malformed subjectAltName entry"))
		}
		name, ok, err := renderGeneralName(tag, entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func renderGeneralName(tag cryptobyte_asn1.Tag, entry cryptobyte.String) (GeneralName, bool, error) {
	// Strip the context class and constructed bits to recover the choice.
	choice := int(tag & 0x1f)
	switch choice {
	case sanEmail:
		return GeneralName{Kind: KindEmail, Value: string(entry)}, true, nil
	case sanDNS:
		return GeneralName{Kind: KindDNS, Value: string(entry)}, true, nil
	case sanURI:
		return GeneralName{Kind: KindURI, Value: string(entry)}, true, nil
	case sanDirName:
		// Explicitly tagged: the entry holds the full nested name element.
		dir, err := DecodeName(entry)
		if err != nil {
			return GeneralName{}, false, err
		}
		return GeneralName{Kind: KindDirName, Dir: dir}, true, nil
	case sanIPAddress:
		ip := net.IP(entry)
		if len(entry) != net.IPv4len && len(entry) != net.IPv6len {
			return GeneralName{}, false, errors.From(ErrDecode,
				errors.WithMeta("cause", "malformed IP address general name"))
		}
		return GeneralName{Kind: "IP Address", Value: ip.String()}, true, nil
	case sanRegisteredID:
		if len(entry) >= 128 {
			return GeneralName{}, false, errors.From(ErrDecode,
				errors.WithMeta("cause", "oversized registered ID general name"))
		}
		var oid asn1.ObjectIdentifier
		full := append([]byte{asn1.TagOID, byte(len(entry))}, entry...)
		if _, err := asn1.Unmarshal(full, &oid); err != nil {
			return GeneralName{}, false, errors.From(ErrDecode, errors.WithWrap(err))
		}
		return GeneralName{Kind: "Registered ID", Value: oid.String()}, true, nil
	case sanOtherName:
		return GeneralName{Kind: "othername", Value: "<unsupported>"}, true, nil
	case sanX400:
		return GeneralName{Kind: "X400Name", Value: "<unsupported>"}, true, nil
	case sanEDIPartyName:
		return GeneralName{Kind: "EdiPartyName", Value: "<unsupported>"}, true, nil
	default:
		// Future name kinds must not break decoding of otherwise valid
		// certificates.
		Logger.Warnf("certs: unknown general name type %d", choice)
		return GeneralName{Kind: "unknown", Value: string(entry)}, true, nil
	}
}
