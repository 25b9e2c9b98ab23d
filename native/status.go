package native

import "fmt"

// Status is the notification code delivered to a [Callback]. The values
// match the WINHTTP_CALLBACK_STATUS_* constants.
type Status uint32

const (
	StatusResolvingName       Status = 0x00000001
	StatusNameResolved        Status = 0x00000002
	StatusConnectingToServer  Status = 0x00000004
	StatusConnectedToServer   Status = 0x00000008
	StatusSendingRequest      Status = 0x00000010
	StatusRequestSent         Status = 0x00000020
	StatusReceivingResponse   Status = 0x00000040
	StatusResponseReceived    Status = 0x00000080
	StatusHandleClosing       Status = 0x00000800
	StatusSecureFailure       Status = 0x00010000
	StatusHeadersAvailable    Status = 0x00020000
	StatusDataAvailable       Status = 0x00040000
	StatusReadComplete        Status = 0x00080000
	StatusWriteComplete       Status = 0x00100000
	StatusRequestError        Status = 0x00200000
	StatusSendRequestComplete Status = 0x00400000
)

var statusNames = map[Status]string{
	StatusResolvingName:       "resolving name",
	StatusNameResolved:        "name resolved",
	StatusConnectingToServer:  "connecting to server",
	StatusConnectedToServer:   "connected to server",
	StatusSendingRequest:      "sending request",
	StatusRequestSent:         "request sent",
	StatusReceivingResponse:   "receiving response",
	StatusResponseReceived:    "response received",
	StatusHandleClosing:       "handle closing",
	StatusSecureFailure:       "secure failure",
	StatusHeadersAvailable:    "headers available",
	StatusDataAvailable:       "data available",
	StatusReadComplete:        "read complete",
	StatusWriteComplete:       "write complete",
	StatusRequestError:        "request error",
	StatusSendRequestComplete: "send request complete",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%x", uint32(s))
}

// AsyncAPI names the asynchronous call a RequestError refers to.
type AsyncAPI uint32

const (
	APIReceiveResponse    AsyncAPI = 1
	APIQueryDataAvailable AsyncAPI = 2
	APIReadData           AsyncAPI = 3
	APIWriteData          AsyncAPI = 4
	APISendRequest        AsyncAPI = 5
)

func (a AsyncAPI) String() string {
	switch a {
	case APIReceiveResponse:
		return "ReceiveResponse"
	case APIQueryDataAvailable:
		return "QueryDataAvailable"
	case APIReadData:
		return "ReadData"
	case APIWriteData:
		return "WriteData"
	case APISendRequest:
		return "SendRequest"
	default:
		return fmt.Sprintf("api %d", uint32(a))
	}
}

// AsyncResult is the payload of StatusRequestError.
type AsyncResult struct {
	API   AsyncAPI
	Error Errno
}

// SecureFlag is the payload of StatusSecureFailure. The values match the
// WINHTTP_CALLBACK_STATUS_FLAG_* constants.
type SecureFlag uint32

const (
	SecureCertRevocationFailed SecureFlag = 0x00000001
	SecureInvalidCert          SecureFlag = 0x00000002
	SecureCertRevoked          SecureFlag = 0x00000010
	SecureInvalidCA            SecureFlag = 0x00000020
	SecureCertCNInvalid        SecureFlag = 0x00000040
	SecureCertDateInvalid      SecureFlag = 0x00000080
	SecureChannelError         SecureFlag = 0x80000000
)

// StatusInfo carries the status-specific payload of a notification. Only
// the field matching the status is meaningful.
type StatusInfo struct {
	// Available is the byte count for StatusDataAvailable.
	Available uint32
	// Result is set for StatusRequestError.
	Result AsyncResult
	// Secure is set for StatusSecureFailure.
	Secure SecureFlag
}
