package ta

import (
	"bytes"
	"io"
	"iter"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/tee-ta-bridge/hal"
	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now interfaces.Milliseconds
}

func (c *fakeClock) Now() interfaces.Milliseconds {
	return c.now
}

var testAuthKey = bytes.Repeat([]byte{0x5A}, 32)

func newTestImplementation(t *testing.T, failures interfaces.FailureStore) (*interfaces.Implementation, *fakeClock) {
	clock := &fakeClock{now: 1000}
	return &interfaces.Implementation{
		Rng:      hal.StdRng{},
		Clock:    clock,
		Compare:  hal.ConstEq{},
		HMAC:     hal.HmacSha256{},
		Password: hal.NewNonsecurePasswordKey(nil),
		AuthKey:  hal.ExplicitAuthKeyFrom(testAuthKey),
		Failures: failures,
		SharedSecret: &interfaces.SharedSecretImplementation{
			PresharedKey: hal.ZeroPresharedKey(),
			Derive:       hal.CounterModeKDF{},
		},
	}, clock
}

func newTestGatekeeper(t *testing.T) (*Gatekeeper, *fakeClock, string) {
	dir := t.TempDir()
	store := storage.NewFileStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	imp, clock := newTestImplementation(t, store)
	return NewGatekeeper(imp), clock, dir
}

func call(t *testing.T, gk *Gatekeeper, cmd Command, body any, out any) *Response {
	t.Helper()
	req, err := EncodeRequest(cmd, body)
	require.NoError(t, err)
	rsp, err := DecodeResponse(gk.Process(req), out)
	require.NoError(t, err)
	return rsp
}

func enroll(t *testing.T, gk *Gatekeeper, userID uint32, password string) *PasswordHandle {
	t.Helper()
	var out EnrollResponse
	rsp := call(t, gk, CmdEnroll, EnrollRequest{UserID: userID, Password: []byte(password)}, &out)
	require.Equal(t, StatusOK, rsp.Status, rsp.Message)
	require.NotNil(t, out.Handle)
	return out.Handle
}

func verify(t *testing.T, gk *Gatekeeper, userID uint32, handle *PasswordHandle, password string) (*Response, VerifyResponse) {
	t.Helper()
	var out VerifyResponse
	rsp := call(t, gk, CmdVerify, VerifyRequest{
		UserID:    userID,
		Challenge: 42,
		Handle:    *handle,
		Password:  []byte(password),
	}, &out)
	return rsp, out
}

func TestGatekeeper_EnrollAndVerify(t *testing.T) {
	gk, clock, dir := newTestGatekeeper(t)

	handle := enroll(t, gk, 10, "correct horse")
	assert.Equal(t, uint8(HandleVersion), handle.Version)
	assert.NotZero(t, handle.UserSID)
	assert.Len(t, handle.Salt, saltSize)
	assert.Len(t, handle.Signature, 32)

	clock.now = 5000
	rsp, out := verify(t, gk, 10, handle, "correct horse")
	require.Equal(t, StatusOK, rsp.Status, rsp.Message)
	require.NotNil(t, out.Token)

	token := out.Token
	assert.Equal(t, uint64(42), token.Challenge)
	assert.Equal(t, handle.UserSID, token.UserSID)
	assert.Equal(t, uint32(AuthenticatorPassword), token.AuthenticatorType)
	assert.Equal(t, interfaces.Milliseconds(5000), token.Timestamp)

	expected, err := hal.HmacSha256{}.Sign(interfaces.ExplicitKey(testAuthKey), token.SignedData())
	require.NoError(t, err)
	assert.Equal(t, expected, token.MAC)

	assert.NoFileExists(t, filepath.Join(dir, RecordName(10)))
}

func TestGatekeeper_WrongPasswordCountsFailures(t *testing.T) {
	gk, clock, dir := newTestGatekeeper(t)
	handle := enroll(t, gk, 7, "secret")

	for i := uint32(1); i <= 3; i++ {
		clock.now = interfaces.Milliseconds(2000 + i)
		rsp, out := verify(t, gk, 7, handle, "guess")
		assert.Equal(t, StatusInvalidPassword, rsp.Status)
		assert.Equal(t, i, out.FailureCount)
		assert.Nil(t, out.Token)
	}

	data, err := os.ReadFile(filepath.Join(dir, RecordName(7)))
	require.NoError(t, err)
	var record FailureRecord
	require.NoError(t, decMode.Unmarshal(data, &record))
	assert.Equal(t, FailureRecord{UserSID: handle.UserSID, Count: 3, LastFailureMs: 2003}, record)

	// A correct password clears the record.
	rsp, _ := verify(t, gk, 7, handle, "secret")
	assert.Equal(t, StatusOK, rsp.Status)
	assert.NoFileExists(t, filepath.Join(dir, RecordName(7)))

	rsp, out := verify(t, gk, 7, handle, "guess")
	assert.Equal(t, StatusInvalidPassword, rsp.Status)
	assert.Equal(t, uint32(1), out.FailureCount)
}

func TestGatekeeper_TamperedHandleRejected(t *testing.T) {
	gk, _, _ := newTestGatekeeper(t)
	handle := enroll(t, gk, 1, "secret")

	tampered := *handle
	tampered.UserSID++
	rsp, _ := verify(t, gk, 1, &tampered, "secret")
	assert.Equal(t, StatusInvalidPassword, rsp.Status)

	tampered = *handle
	tampered.Version = 2
	rsp, _ = verify(t, gk, 1, &tampered, "secret")
	assert.Equal(t, StatusInvalidArgument, rsp.Status)

	tampered = *handle
	tampered.Salt = tampered.Salt[:4]
	rsp, _ = verify(t, gk, 1, &tampered, "secret")
	assert.Equal(t, StatusInvalidArgument, rsp.Status)
}

func TestGatekeeper_ReEnroll(t *testing.T) {
	gk, _, _ := newTestGatekeeper(t)
	old := enroll(t, gk, 3, "old password")

	var out EnrollResponse
	rsp := call(t, gk, CmdEnroll, EnrollRequest{
		UserID:          3,
		CurrentHandle:   old,
		CurrentPassword: []byte("wrong"),
		Password:        []byte("new password"),
	}, &out)
	assert.Equal(t, StatusInvalidPassword, rsp.Status)
	assert.Nil(t, out.Handle)
	assert.Equal(t, uint32(1), out.FailureCount)

	out = EnrollResponse{}
	rsp = call(t, gk, CmdEnroll, EnrollRequest{
		UserID:          3,
		CurrentHandle:   old,
		CurrentPassword: []byte("old password"),
		Password:        []byte("new password"),
	}, &out)
	require.Equal(t, StatusOK, rsp.Status, rsp.Message)
	assert.Equal(t, old.UserSID, out.Handle.UserSID)

	rsp, _ = verify(t, gk, 3, out.Handle, "new password")
	assert.Equal(t, StatusOK, rsp.Status)
	rsp, _ = verify(t, gk, 3, out.Handle, "old password")
	assert.Equal(t, StatusInvalidPassword, rsp.Status)
}

func TestGatekeeper_FreshEnrollResetsFailures(t *testing.T) {
	gk, _, dir := newTestGatekeeper(t)
	handle := enroll(t, gk, 4, "secret")

	rsp, _ := verify(t, gk, 4, handle, "guess")
	require.Equal(t, StatusInvalidPassword, rsp.Status)
	assert.FileExists(t, filepath.Join(dir, RecordName(4)))

	fresh := enroll(t, gk, 4, "another")
	assert.NotEqual(t, handle.UserSID, fresh.UserSID)
	assert.NoFileExists(t, filepath.Join(dir, RecordName(4)))
}

func TestGatekeeper_DeleteUsers(t *testing.T) {
	gk, _, dir := newTestGatekeeper(t)

	for _, uid := range []uint32{1, 2, 3} {
		handle := enroll(t, gk, uid, "secret")
		rsp, _ := verify(t, gk, uid, handle, "guess")
		require.Equal(t, StatusInvalidPassword, rsp.Status)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), []byte("x"), 0600))

	rsp := call(t, gk, CmdDeleteUser, DeleteUserRequest{UserID: 2}, nil)
	assert.Equal(t, StatusOK, rsp.Status)
	assert.NoFileExists(t, filepath.Join(dir, RecordName(2)))

	// Deleting a user without a record is not an error.
	rsp = call(t, gk, CmdDeleteUser, DeleteUserRequest{UserID: 2}, nil)
	assert.Equal(t, StatusOK, rsp.Status)

	var out DeleteAllUsersResponse
	rsp = call(t, gk, CmdDeleteAllUsers, nil, &out)
	assert.Equal(t, StatusOK, rsp.Status)
	assert.Equal(t, uint32(2), out.Deleted)
	assert.NoFileExists(t, filepath.Join(dir, RecordName(1)))
	assert.NoFileExists(t, filepath.Join(dir, RecordName(3)))
	assert.FileExists(t, filepath.Join(dir, "unrelated"))
}

func TestGatekeeper_MalformedInput(t *testing.T) {
	gk, _, _ := newTestGatekeeper(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not cbor", []byte{0xFF, 0x00, 0x13}},
		{"wrong shape", []byte{0x83, 0x01, 0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp, err := DecodeResponse(gk.Process(tt.data), nil)
			require.NoError(t, err)
			assert.Equal(t, StatusInvalidArgument, rsp.Status)
		})
	}

	rsp := call(t, gk, Command(99), nil, nil)
	assert.Equal(t, StatusInvalidArgument, rsp.Status)

	rsp = call(t, gk, CmdVerify, nil, nil)
	assert.Equal(t, StatusInvalidArgument, rsp.Status)

	rsp = call(t, gk, CmdEnroll, EnrollRequest{UserID: 1}, nil)
	assert.Equal(t, StatusInvalidArgument, rsp.Status)

	rsp = call(t, gk, CmdDeleteUser, map[int]string{9: "unknown field"}, nil)
	assert.Equal(t, StatusInvalidArgument, rsp.Status)
}

func TestGatekeeper_RandomInputNeverPanics(t *testing.T) {
	gk, _, _ := newTestGatekeeper(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		data := make([]byte, rng.Intn(64))
		rng.Read(data)
		if i%2 == 0 && len(data) > 2 {
			// Mostly well-formed envelopes with garbage bodies.
			req, err := EncodeRequest(Command(1+rng.Intn(6)), nil)
			require.NoError(t, err)
			data = append(req[:len(req):len(req)], data...)
		}
		assert.NotPanics(t, func() {
			_, err := DecodeResponse(gk.Process(data), nil)
			assert.NoError(t, err)
		})
	}
}

func TestGatekeeper_UnknownTimeStillIssuesToken(t *testing.T) {
	gk, clock, _ := newTestGatekeeper(t)
	handle := enroll(t, gk, 1, "secret")

	clock.now = 0
	rsp, out := verify(t, gk, 1, handle, "secret")
	require.Equal(t, StatusOK, rsp.Status)
	assert.True(t, out.Token.Timestamp.Unknown())
}

// mockStore is a FailureStore whose behavior each test scripts.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Read(name string) ([]byte, error) {
	args := m.Called(name)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockStore) Write(name string, data []byte) error {
	return m.Called(name, data).Error(0)
}

func (m *mockStore) Delete(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockStore) List() (iter.Seq[string], error) {
	args := m.Called()
	seq, _ := args.Get(0).(iter.Seq[string])
	return seq, args.Error(1)
}

func TestGatekeeper_StoreFaultsBecomeInternal(t *testing.T) {
	store := &mockStore{}
	imp, _ := newTestImplementation(t, store)
	gk := NewGatekeeper(imp)

	store.On("Delete", RecordName(1)).Return(interfaces.ErrNotFound).Once()
	handle := enroll(t, gk, 1, "secret")

	store.On("Read", RecordName(1)).Return(nil, interfaces.ErrInternal).Once()
	rsp, _ := verify(t, gk, 1, handle, "secret")
	assert.Equal(t, StatusInternal, rsp.Status)

	store.On("Read", RecordName(1)).Return(nil, interfaces.ErrNotFound).Once()
	store.On("Write", RecordName(1), mock.Anything).Return(interfaces.ErrInternal).Once()
	rsp, _ = verify(t, gk, 1, handle, "wrong")
	assert.Equal(t, StatusInternal, rsp.Status)

	store.On("Read", RecordName(1)).Return([]byte{0xFF, 0xFF}, nil).Once()
	rsp, _ = verify(t, gk, 1, handle, "secret")
	assert.Equal(t, StatusInternal, rsp.Status)

	store.On("List").Return(nil, interfaces.ErrInternal).Once()
	rsp = call(t, gk, CmdDeleteAllUsers, nil, nil)
	assert.Equal(t, StatusInternal, rsp.Status)

	store.AssertExpectations(t)
}
