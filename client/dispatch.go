package client

import (
	"fmt"
	"log/slog"

	"github.com/adamwoolhether/asynchttp/native"
)

// dispatch is the status callback installed on every request handle. It
// keeps no state of its own: the token names the exchange, and events for
// unknown or disposed exchanges are dropped because their request has
// already concluded.
func dispatch(h native.Handle, token native.Token, status native.Status, info native.StatusInfo, length uint32) {
	x, ok := routes.lookup(token)
	if !ok || !x.active() {
		return
	}

	x.logger.Debug("received status", "status", status, "code", hexCode(status), "handle", h)

	switch status {
	case native.StatusWriteComplete:
		x.onWriteComplete()

	case native.StatusSendRequestComplete:
		x.onSendComplete()

	case native.StatusHeadersAvailable:
		x.readHeaders()

	case native.StatusDataAvailable:
		x.logger.Debug("data available", "bytes", info.Available)
		if info.Available == 0 {
			x.complete()
			return
		}
		x.readResponseData(info.Available)

	case native.StatusReadComplete:
		x.logger.Debug("read complete", "bytes", length)
		if length != 0 {
			x.onReadComplete(length)
		}

	case native.StatusRequestError:
		x.reject(&RequestError{API: info.Result.API, Code: info.Result.Error})

	case native.StatusSecureFailure:
		x.logger.Debug("security failure", "code", hexCode(info.Secure))
		x.reject(newSecureFailure(info.Secure))
	}
}

// hexCode formats a status or flag value as hex, only when a handler
// actually emits the record.
type hexCode uint32

func (c hexCode) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("0x%x", uint32(c)))
}
