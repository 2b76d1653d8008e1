package ta

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// Command selects the operation in a Request.
type Command uint32

const (
	CmdEnroll Command = iota + 1
	CmdVerify
	CmdDeleteUser
	CmdDeleteAllUsers
	CmdGetSharedSecretParameters
	CmdComputeSharedSecret
)

func (c Command) String() string {
	switch c {
	case CmdEnroll:
		return "enroll"
	case CmdVerify:
		return "verify"
	case CmdDeleteUser:
		return "delete_user"
	case CmdDeleteAllUsers:
		return "delete_all_users"
	case CmdGetSharedSecretParameters:
		return "get_shared_secret_parameters"
	case CmdComputeSharedSecret:
		return "compute_shared_secret"
	default:
		return "unknown"
	}
}

// Status is the outcome reported in a Response.
type Status uint32

const (
	StatusOK Status = iota
	StatusInvalidPassword
	StatusInvalidArgument
	StatusInternal
	StatusUnimplemented
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidPassword:
		return "invalid_password"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusInternal:
		return "internal"
	case StatusUnimplemented:
		return "unimplemented"
	default:
		return "unknown"
	}
}

// Request is the envelope of every message sent to the engine.
type Request struct {
	Command Command         `cbor:"1,keyasint"`
	Body    cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Response is the envelope of every message returned by the engine.
type Response struct {
	Status  Status          `cbor:"1,keyasint"`
	Body    cbor.RawMessage `cbor:"2,keyasint,omitempty"`
	Message string          `cbor:"3,keyasint,omitempty"`
}

// HandleVersion is the only password handle version the engine produces or accepts.
const HandleVersion = 1

// PasswordHandle binds a user SID to a salted, signed password. It is stored by
// the caller and passed back on verification.
type PasswordHandle struct {
	Version   uint8  `cbor:"1,keyasint"`
	UserSID   uint64 `cbor:"2,keyasint"`
	Salt      []byte `cbor:"3,keyasint"`
	Signature []byte `cbor:"4,keyasint"`
}

// EnrollRequest sets a new password. Changing an existing password requires
// the current handle and password; without them a new user SID is created.
type EnrollRequest struct {
	UserID          uint32          `cbor:"1,keyasint"`
	CurrentHandle   *PasswordHandle `cbor:"2,keyasint,omitempty"`
	CurrentPassword []byte          `cbor:"3,keyasint,omitempty"`
	Password        []byte          `cbor:"4,keyasint"`
}

// EnrollResponse carries the new handle, or the failure count when the current
// password was wrong.
type EnrollResponse struct {
	Handle       *PasswordHandle `cbor:"1,keyasint,omitempty"`
	FailureCount uint32          `cbor:"2,keyasint,omitempty"`
}

type VerifyRequest struct {
	UserID    uint32         `cbor:"1,keyasint"`
	Challenge uint64         `cbor:"2,keyasint"`
	Handle    PasswordHandle `cbor:"3,keyasint"`
	Password  []byte         `cbor:"4,keyasint"`
}

// VerifyResponse carries the token on success and the failure count on
// StatusInvalidPassword.
type VerifyResponse struct {
	Token        *AuthToken `cbor:"1,keyasint,omitempty"`
	FailureCount uint32     `cbor:"2,keyasint,omitempty"`
}

// AuthenticatorPassword is the authenticator type stamped into password auth tokens.
const AuthenticatorPassword = 1

// AuthToken proves a successful verification to services that share the auth key.
type AuthToken struct {
	Challenge         uint64                  `cbor:"1,keyasint"`
	UserSID           uint64                  `cbor:"2,keyasint"`
	AuthenticatorID   uint64                  `cbor:"3,keyasint"`
	AuthenticatorType uint32                  `cbor:"4,keyasint"`
	Timestamp         interfaces.Milliseconds `cbor:"5,keyasint"`
	MAC               []byte                  `cbor:"6,keyasint"`
}

type DeleteUserRequest struct {
	UserID uint32 `cbor:"1,keyasint"`
}

type DeleteAllUsersResponse struct {
	Deleted uint32 `cbor:"1,keyasint"`
}

// SharedSecretParameters is one participant's contribution to key agreement.
type SharedSecretParameters struct {
	Seed  []byte `cbor:"1,keyasint"`
	Nonce []byte `cbor:"2,keyasint"`
}

type GetSharedSecretParametersResponse struct {
	Params SharedSecretParameters `cbor:"1,keyasint"`
}

type ComputeSharedSecretRequest struct {
	Params []SharedSecretParameters `cbor:"1,keyasint"`
}

type ComputeSharedSecretResponse struct {
	SharingCheck []byte `cbor:"1,keyasint"`
}

// FailureRecord is the engine's persisted state per user.
type FailureRecord struct {
	UserSID       uint64                  `cbor:"1,keyasint"`
	Count         uint32                  `cbor:"2,keyasint"`
	LastFailureMs interfaces.Milliseconds `cbor:"3,keyasint"`
}
