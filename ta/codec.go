package ta

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// internalErrorResponse is {1: StatusInternal}, used if a response cannot be encoded.
var internalErrorResponse = []byte{0xA1, 0x01, byte(StatusInternal)}

// EncodeRequest builds the wire form of a request. body may be nil for commands
// that take no arguments.
func EncodeRequest(cmd Command, body any) ([]byte, error) {
	req := Request{Command: cmd}
	if body != nil {
		raw, err := encMode.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", cmd, err)
		}
		req.Body = raw
	}
	return encMode.Marshal(req)
}

// DecodeResponse parses a response envelope and, when out is non-nil and the
// response has a body, decodes the body into out.
func DecodeResponse(data []byte, out any) (*Response, error) {
	var rsp Response
	if err := decMode.Unmarshal(data, &rsp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out != nil && len(rsp.Body) > 0 {
		if err := decMode.Unmarshal(rsp.Body, out); err != nil {
			return &rsp, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return &rsp, nil
}

// DecodeRequest parses a request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeBody(raw cbor.RawMessage, out any) error {
	if len(raw) == 0 {
		return invalidArgument("missing request body")
	}
	if err := decMode.Unmarshal(raw, out); err != nil {
		return invalidArgument("malformed request body: %v", err)
	}
	return nil
}

// statusError carries a non-OK status and an optional response body out of an
// operation.
type statusError struct {
	status Status
	msg    string
	body   any
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.msg)
}

func invalidArgument(format string, args ...any) error {
	return &statusError{status: StatusInvalidArgument, msg: fmt.Sprintf(format, args...)}
}

func encodeResponse(body any, err error) []byte {
	rsp := Response{Status: StatusOK}
	if err != nil {
		rsp.Status = StatusInternal
		rsp.Message = err.Error()
		body = nil

		var se *statusError
		if errors.As(err, &se) {
			rsp.Status = se.status
			body = se.body
		}
	}

	if body != nil {
		raw, encErr := encMode.Marshal(body)
		if encErr != nil {
			return internalErrorResponse
		}
		rsp.Body = raw
	}

	data, encErr := encMode.Marshal(rsp)
	if encErr != nil {
		return internalErrorResponse
	}
	return data
}
