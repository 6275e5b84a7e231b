package extalife

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBytes(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"noop is a bare space", Request{Command: CmdNoop}, " \x03"},
		{"nil data becomes empty object", Request{Command: CmdRestart}, `{"command":150,"data":{}}` + "\x03"},
		{"data is carried", Request{Command: CmdLogin, Data: Data{"login": "admin"}}, `{"command":1,"data":{"login":"admin"}}` + "\x03"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.req.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"command":37,"status":"success","data":{"devices":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, CmdFetchReceivers, f.Command)
	assert.Equal(t, StatusSuccess, f.Status)
	assert.NotNil(t, f.Data["devices"])
}

func TestParseFrameDownloadBackup(t *testing.T) {
	// backup frames carry the payload at the top level
	f, err := ParseFrame([]byte(`{"command":500,"status":"partial","data_element":1,"payload":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, CmdDownloadBackup, f.Command)
	assert.Equal(t, StatusPartial, f.Status)
	assert.Equal(t, float64(1), f.Data["data_element"])
	assert.Equal(t, "abc", f.Data["payload"])
	_, hasCommand := f.Data["command"]
	assert.False(t, hasCommand)
}

func TestParseFrameErrors(t *testing.T) {
	_, err := ParseFrame([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseFrame([]byte(`{"status":"success"}`))
	assert.Error(t, err)
}

func TestResponseCombinesFrames(t *testing.T) {
	frames := []*Frame{
		{Command: CmdDownloadBackup, Status: StatusPartial, Data: Data{"data_element": float64(1)}},
		{Command: CmdDownloadBackup, Status: StatusPartial, Data: Data{"data_element": float64(2)}},
		{Command: CmdDownloadBackup, Status: StatusSuccess},
	}
	resp := newResponse(frames)
	assert.Equal(t, CmdDownloadBackup, resp.Command)
	assert.Equal(t, StatusSuccess, resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, float64(2), resp.Data[1]["data_element"])
	assert.NoError(t, resp.Err())
}

func TestResponseErr(t *testing.T) {
	resp := newResponse([]*Frame{
		{Command: CmdLogin, Status: StatusFailure, Data: Data{"code": float64(-23)}},
	})
	err := resp.Err()
	require.Error(t, err)
	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CmdLogin, cmdErr.Command)
	assert.Equal(t, -23, cmdErr.Code)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "DOWNLOAD_BACKUP", CmdDownloadBackup.String())
	assert.Equal(t, "9999", Command(9999).String())
}

func TestFormatMAC(t *testing.T) {
	assert.Equal(t, "00:11:22:aa:bb:cc", formatMAC("001122AABBCC"))
	assert.Equal(t, "00:11:22:aa:bb:cc", formatMAC("00:11:22:AA:BB:CC"))
}
