package ta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

const (
	saltSize         = 16
	recordNamePrefix = "gatekeeper-user-"
)

// Gatekeeper is the reference password engine. It is not safe for concurrent
// use; it is meant to be owned by a channel.LocalTA goroutine.
type Gatekeeper struct {
	imp *interfaces.Implementation

	// sharedParams is this engine's contribution to key agreement, fixed for its lifetime.
	sharedParams *SharedSecretParameters
	// negotiatedKey replaces the AuthKey capability once a shared secret is computed.
	negotiatedKey interfaces.ExplicitKey
}

// NewGatekeeper builds an engine over imp.
func NewGatekeeper(imp *interfaces.Implementation) *Gatekeeper {
	gk := &Gatekeeper{imp: imp}
	if imp.SharedSecret != nil {
		nonce := make([]byte, 32)
		imp.Rng.FillBytes(nonce)
		gk.sharedParams = &SharedSecretParameters{Seed: []byte{}, Nonce: nonce}
	}
	return gk
}

// Constructor adapts NewGatekeeper to interfaces.EngineConstructor.
func Constructor(imp *interfaces.Implementation) interfaces.Engine {
	return NewGatekeeper(imp)
}

// Process decodes one request, runs it and encodes the response.
func (gk *Gatekeeper) Process(data []byte) []byte {
	req, err := DecodeRequest(data)
	if err != nil {
		return encodeResponse(nil, invalidArgument("malformed request: %v", err))
	}

	var body any
	switch req.Command {
	case CmdEnroll:
		body, err = gk.enroll(req)
	case CmdVerify:
		body, err = gk.verify(req)
	case CmdDeleteUser:
		body, err = gk.deleteUser(req)
	case CmdDeleteAllUsers:
		body, err = gk.deleteAllUsers()
	case CmdGetSharedSecretParameters:
		body, err = gk.getSharedSecretParameters()
	case CmdComputeSharedSecret:
		body, err = gk.computeSharedSecret(req)
	default:
		err = invalidArgument("unknown command %d", req.Command)
	}
	return encodeResponse(body, err)
}

func (gk *Gatekeeper) enroll(req *Request) (any, error) {
	var enroll EnrollRequest
	if err := decodeBody(req.Body, &enroll); err != nil {
		return nil, err
	}
	if len(enroll.Password) == 0 {
		return nil, invalidArgument("empty password")
	}

	var userSID uint64
	if enroll.CurrentHandle != nil {
		if err := checkHandle(enroll.CurrentHandle); err != nil {
			return nil, err
		}
		ok, failures, err := gk.checkPassword(enroll.UserID, enroll.CurrentHandle, enroll.CurrentPassword)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &statusError{
				status: StatusInvalidPassword,
				msg:    "current password does not match",
				body:   EnrollResponse{FailureCount: failures},
			}
		}
		userSID = enroll.CurrentHandle.UserSID
	} else {
		userSID = gk.newUserSID()
		// A new SID starts with a clean failure history.
		if err := gk.clearFailures(enroll.UserID); err != nil {
			return nil, err
		}
	}

	salt := make([]byte, saltSize)
	gk.imp.Rng.FillBytes(salt)
	handle := &PasswordHandle{
		Version: HandleVersion,
		UserSID: userSID,
		Salt:    salt,
	}
	signature, err := gk.signPassword(handle, enroll.Password)
	if err != nil {
		return nil, err
	}
	handle.Signature = signature

	return EnrollResponse{Handle: handle}, nil
}

func (gk *Gatekeeper) verify(req *Request) (any, error) {
	var verify VerifyRequest
	if err := decodeBody(req.Body, &verify); err != nil {
		return nil, err
	}
	if err := checkHandle(&verify.Handle); err != nil {
		return nil, err
	}

	ok, failures, err := gk.checkPassword(verify.UserID, &verify.Handle, verify.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &statusError{
			status: StatusInvalidPassword,
			msg:    "password does not match",
			body:   VerifyResponse{FailureCount: failures},
		}
	}

	token := &AuthToken{
		Challenge:         verify.Challenge,
		UserSID:           verify.Handle.UserSID,
		AuthenticatorType: AuthenticatorPassword,
		Timestamp:         gk.imp.Clock.Now(),
	}
	key, err := gk.authKey()
	if err != nil {
		return nil, err
	}
	token.MAC, err = gk.imp.HMAC.Sign(key, token.SignedData())
	if err != nil {
		return nil, fmt.Errorf("failed to MAC auth token: %w", err)
	}

	return VerifyResponse{Token: token}, nil
}

func (gk *Gatekeeper) deleteUser(req *Request) (any, error) {
	var del DeleteUserRequest
	if err := decodeBody(req.Body, &del); err != nil {
		return nil, err
	}
	return nil, gk.clearFailures(del.UserID)
}

func (gk *Gatekeeper) deleteAllUsers() (any, error) {
	names, err := gk.imp.Failures.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list failure records: %w", err)
	}

	// Collect first; deleting while the listing is open is not portable across stores.
	var records []string
	for name := range names {
		if strings.HasPrefix(name, recordNamePrefix) {
			records = append(records, name)
		}
	}

	var deleted uint32
	for _, name := range records {
		err := gk.imp.Failures.Delete(name)
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to delete failure record %s: %w", name, err)
		default:
			deleted++
		}
	}
	return DeleteAllUsersResponse{Deleted: deleted}, nil
}

// checkPassword compares password against handle and maintains the user's
// failure record: cleared on a match, incremented on a mismatch.
func (gk *Gatekeeper) checkPassword(userID uint32, handle *PasswordHandle, password []byte) (bool, uint32, error) {
	record, err := gk.readFailures(userID)
	if err != nil {
		return false, 0, err
	}

	expected, err := gk.signPassword(handle, password)
	if err != nil {
		return false, 0, err
	}
	if gk.imp.Compare.Eq(expected, handle.Signature) {
		if err := gk.clearFailures(userID); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	}

	// A record for a previous SID does not count against a new enrollment.
	if record.UserSID != handle.UserSID {
		record = FailureRecord{UserSID: handle.UserSID}
	}
	record.Count++
	record.LastFailureMs = gk.imp.Clock.Now()
	if err := gk.writeFailures(userID, record); err != nil {
		return false, 0, err
	}
	return false, record.Count, nil
}

func (gk *Gatekeeper) signPassword(handle *PasswordHandle, password []byte) ([]byte, error) {
	key, err := gk.imp.Password.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve password key: %w", err)
	}

	metadata := make([]byte, 9)
	metadata[0] = handle.Version
	binary.BigEndian.PutUint64(metadata[1:], handle.UserSID)

	signature, err := gk.imp.HMAC.Sign(key, metadata, handle.Salt, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign password: %w", err)
	}
	return signature, nil
}

func (gk *Gatekeeper) authKey() (interfaces.KeyMaterial, error) {
	if gk.negotiatedKey != nil {
		return gk.negotiatedKey, nil
	}
	key, err := gk.imp.AuthKey.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve auth key: %w", err)
	}
	return key, nil
}

func (gk *Gatekeeper) newUserSID() uint64 {
	buf := make([]byte, 8)
	for {
		gk.imp.Rng.FillBytes(buf)
		if sid := binary.BigEndian.Uint64(buf); sid != 0 {
			return sid
		}
	}
}

func checkHandle(handle *PasswordHandle) error {
	switch {
	case handle.Version != HandleVersion:
		return invalidArgument("unsupported handle version %d", handle.Version)
	case len(handle.Salt) != saltSize:
		return invalidArgument("handle salt must be %d bytes", saltSize)
	case len(handle.Signature) == 0:
		return invalidArgument("handle has no signature")
	}
	return nil
}

// RecordName is the failure store name used for a user.
func RecordName(userID uint32) string {
	return recordNamePrefix + strconv.FormatUint(uint64(userID), 10)
}

func (gk *Gatekeeper) readFailures(userID uint32) (FailureRecord, error) {
	data, err := gk.imp.Failures.Read(RecordName(userID))
	if errors.Is(err, interfaces.ErrNotFound) {
		return FailureRecord{}, nil
	}
	if err != nil {
		return FailureRecord{}, fmt.Errorf("failed to read failure record: %w", err)
	}

	var record FailureRecord
	if err := decMode.Unmarshal(data, &record); err != nil {
		return FailureRecord{}, fmt.Errorf("%w: corrupt failure record for user %d: %v", interfaces.ErrInternal, userID, err)
	}
	return record, nil
}

func (gk *Gatekeeper) writeFailures(userID uint32, record FailureRecord) error {
	data, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode failure record: %w", err)
	}
	if err := gk.imp.Failures.Write(RecordName(userID), data); err != nil {
		return fmt.Errorf("failed to write failure record: %w", err)
	}
	return nil
}

func (gk *Gatekeeper) clearFailures(userID uint32) error {
	err := gk.imp.Failures.Delete(RecordName(userID))
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("failed to delete failure record: %w", err)
	}
	return nil
}

// SignedData is the byte string covered by the token MAC: a zero version byte
// followed by the big-endian challenge, user SID, authenticator ID,
// authenticator type and timestamp.
func (t *AuthToken) SignedData() []byte {
	buf := make([]byte, 1+8+8+8+4+8)
	binary.BigEndian.PutUint64(buf[1:], t.Challenge)
	binary.BigEndian.PutUint64(buf[9:], t.UserSID)
	binary.BigEndian.PutUint64(buf[17:], t.AuthenticatorID)
	binary.BigEndian.PutUint32(buf[25:], t.AuthenticatorType)
	binary.BigEndian.PutUint64(buf[29:], uint64(t.Timestamp))
	return buf
}
