package engine

// Library identifiers used in queued errors. The numbering is fixed: adapters
// translate their native identifiers onto it so mnemonics resolve the same
// way for every engine.
const (
	LibNone = 0
	LibRSA  = 4
	LibEVP  = 6
	LibPEM  = 9
	LibX509 = 11
	LibASN1 = 13
	LibSSL  = 20
)

// Reason identifiers outside the SSL library. SSL reasons reuse the protocol
// alert numbering, so adapters surfacing an alert report its value directly.
const (
	ReasonPEMNoStartLine = iota + 1
	ReasonPEMNotEnoughData
	ReasonPEMBadPassword
	ReasonPEMBadDecrypt
	ReasonX509KeyMismatch
	ReasonX509BadCertificate
	ReasonSSLNoCipherMatch
	ReasonSSLUnsupportedProtocol
)

var libraryMnemonics = map[int]string{
	LibRSA:  "RSA",
	LibEVP:  "EVP",
	LibPEM:  "PEM",
	LibX509: "X509",
	LibASN1: "ASN1",
	LibSSL:  "SSL",
}

type errKey struct {
	lib    int
	reason int
}

var reasonMnemonics = map[errKey]string{
	{LibSSL, int(AlertCloseNotify)}:            "CLOSE_NOTIFY",
	{LibSSL, int(AlertUnexpectedMessage)}:      "UNEXPECTED_MESSAGE",
	{LibSSL, int(AlertBadRecordMAC)}:           "BAD_RECORD_MAC",
	{LibSSL, int(AlertRecordOverflow)}:         "RECORD_OVERFLOW",
	{LibSSL, int(AlertHandshakeFailure)}:       "HANDSHAKE_FAILURE",
	{LibSSL, int(AlertBadCertificate)}:         "BAD_CERTIFICATE",
	{LibSSL, int(AlertUnsupportedCertificate)}: "UNSUPPORTED_CERTIFICATE",
	{LibSSL, int(AlertCertificateRevoked)}:     "CERTIFICATE_REVOKED",
	{LibSSL, int(AlertCertificateExpired)}:     "CERTIFICATE_EXPIRED",
	{LibSSL, int(AlertCertificateUnknown)}:     "CERTIFICATE_UNKNOWN",
	{LibSSL, int(AlertIllegalParameter)}:       "ILLEGAL_PARAMETER",
	{LibSSL, int(AlertUnknownCA)}:              "UNKNOWN_CA",
	{LibSSL, int(AlertAccessDenied)}:           "ACCESS_DENIED",
	{LibSSL, int(AlertDecodeError)}:            "DECODE_ERROR",
	{LibSSL, int(AlertDecryptError)}:           "DECRYPT_ERROR",
	{LibSSL, int(AlertProtocolVersion)}:        "PROTOCOL_VERSION",
	{LibSSL, int(AlertInsufficientSecurity)}:   "INSUFFICIENT_SECURITY",
	{LibSSL, int(AlertInternalError)}:          "INTERNAL_ERROR",
	{LibSSL, int(AlertUserCanceled)}:           "USER_CANCELED",
	{LibSSL, int(AlertMissingExtension)}:       "MISSING_EXTENSION",
	{LibSSL, int(AlertUnsupportedExtension)}:   "UNSUPPORTED_EXTENSION",
	{LibSSL, int(AlertUnrecognizedName)}:       "UNRECOGNIZED_NAME",
	{LibSSL, int(AlertCertificateRequired)}:    "CERTIFICATE_REQUIRED",
	{LibSSL, int(AlertNoApplicationProtocol)}:  "NO_APPLICATION_PROTOCOL",
	{LibSSL, ReasonSSLNoCipherMatch}:           "NO_CIPHER_MATCH",
	{LibSSL, ReasonSSLUnsupportedProtocol}:     "UNSUPPORTED_PROTOCOL",
	{LibPEM, ReasonPEMNoStartLine}:             "NO_START_LINE",
	{LibPEM, ReasonPEMNotEnoughData}:           "NOT_ENOUGH_DATA",
	{LibPEM, ReasonPEMBadPassword}:             "BAD_PASSWORD_READ",
	{LibPEM, ReasonPEMBadDecrypt}:              "BAD_DECRYPT",
	{LibX509, ReasonX509KeyMismatch}:           "KEY_VALUES_MISMATCH",
	{LibX509, ReasonX509BadCertificate}:        "BAD_CERTIFICATE",
}

// LibraryMnemonic resolves a library identifier to its mnemonic. Misses are
// silent: the second return is false and callers format without it.
func LibraryMnemonic(lib int) (string, bool) {
	m, ok := libraryMnemonics[lib]
	return m, ok
}

// ReasonMnemonic resolves a (library, reason) pair to its mnemonic. Misses
// are silent.
func ReasonMnemonic(lib int, reason int) (string, bool) {
	m, ok := reasonMnemonics[errKey{lib: lib, reason: reason}]
	return m, ok
}
