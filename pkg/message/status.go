package message

import (
	"fmt"

	"github.com/awcullen/opcua/ua"
)

// Status codes reported by the secure conversation codec.
const (
	BadTCPMessageTypeInvalid       ua.StatusCode = 0x807E0000
	BadTCPSecureChannelUnknown     ua.StatusCode = 0x807F0000
	BadTCPMessageTooLarge          ua.StatusCode = 0x80800000
	BadTCPInternalError            ua.StatusCode = 0x80820000
	BadSecurityChecksFailed        ua.StatusCode = 0x80130000
	BadCertificateInvalid          ua.StatusCode = 0x80120000
	BadCertificateUseNotAllowed    ua.StatusCode = 0x80180000
	BadSecurityPolicyRejected      ua.StatusCode = 0x80550000
	BadSecureChannelTokenUnknown   ua.StatusCode = 0x80870000
	BadRequestTooLarge             ua.StatusCode = 0x80B80000
	BadResponseTooLarge            ua.StatusCode = 0x80B90000
	BadApplicationSignatureInvalid ua.StatusCode = 0x80580000
	BadOutOfMemory                 ua.StatusCode = 0x80030000
	BadDecodingError               ua.StatusCode = 0x80070000
	BadEncodingError               ua.StatusCode = 0x80060000
	BadInvalidState                ua.StatusCode = 0x80AF0000
)

var statusNames = map[ua.StatusCode]string{
	ua.Good:                        "Good",
	BadTCPMessageTypeInvalid:       "BadTcpMessageTypeInvalid",
	BadTCPSecureChannelUnknown:     "BadTcpSecureChannelUnknown",
	BadTCPMessageTooLarge:          "BadTcpMessageTooLarge",
	BadTCPInternalError:            "BadTcpInternalError",
	BadSecurityChecksFailed:        "BadSecurityChecksFailed",
	BadCertificateInvalid:          "BadCertificateInvalid",
	BadCertificateUseNotAllowed:    "BadCertificateUseNotAllowed",
	BadSecurityPolicyRejected:      "BadSecurityPolicyRejected",
	BadSecureChannelTokenUnknown:   "BadSecureChannelTokenUnknown",
	BadRequestTooLarge:             "BadRequestTooLarge",
	BadResponseTooLarge:            "BadResponseTooLarge",
	BadApplicationSignatureInvalid: "BadApplicationSignatureInvalid",
	BadOutOfMemory:                 "BadOutOfMemory",
	BadDecodingError:               "BadDecodingError",
	BadEncodingError:               "BadEncodingError",
	BadInvalidState:                "BadInvalidState",
}

// StatusName returns the symbolic name of the codes produced by this stack,
// or the hex value for any other code.
func StatusName(code ua.StatusCode) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(code))
}
