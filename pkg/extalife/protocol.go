package extalife

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// etx terminates every message on the wire, in both directions.
const etx = 0x03

// Command is a numeric command code understood by the EFC-01 controller.
type Command int

// Supported controller commands.
const (
	CmdNoop                 Command = 0
	CmdLogin                Command = 1
	CmdControlDevice        Command = 20
	CmdFetchReceivers       Command = 37
	CmdFetchSensors         Command = 38
	CmdFetchTransmitters    Command = 39
	CmdActivateScene        Command = 44
	CmdFetchNetworkSettings Command = 102
	CmdRestart              Command = 150
	CmdCheckVersion         Command = 151
	CmdGetConfigDetails     Command = 154
	CmdFetchExtaFree        Command = 203
	CmdDownloadBackup       Command = 500
	CmdUploadBackup         Command = 501
)

var commandNames = map[Command]string{
	CmdNoop:                 "NOOP",
	CmdLogin:                "LOGIN",
	CmdControlDevice:        "CONTROL_DEVICE",
	CmdFetchReceivers:       "FETCH_RECEIVERS",
	CmdFetchSensors:         "FETCH_SENSORS",
	CmdFetchTransmitters:    "FETCH_TRANSMITTERS",
	CmdActivateScene:        "ACTIVATE_SCENE",
	CmdFetchNetworkSettings: "FETCH_NETWORK_SETTINGS",
	CmdRestart:              "RESTART",
	CmdCheckVersion:         "CHECK_VERSION",
	CmdGetConfigDetails:     "GET_EFC_CONFIG_DETAILS",
	CmdFetchExtaFree:        "FETCH_EXTA_FREE",
	CmdDownloadBackup:       "DOWNLOAD_BACKUP",
	CmdUploadBackup:         "UPLOAD_BACKUP",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// Status is the status field of a controller message.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusSearching    Status = "searching"
	StatusFailure      Status = "failure"
	StatusPartial      Status = "partial"
	StatusNotification Status = "notification"
	StatusBroadcast    Status = "broadcast"
	StatusValidation   Status = "validation"
	StatusProgress     Status = "progress"
)

// Data is the payload of a single controller message.
type Data = map[string]interface{}

// Request is a single command sent to the controller.
type Request struct {
	Command Command `json:"command"`
	Data    Data    `json:"data"`
}

// Bytes renders the request as an ETX-terminated JSON frame. NOOP is the
// keep-alive and goes out as a bare space.
func (r *Request) Bytes() ([]byte, error) {
	if r.Command == CmdNoop {
		return []byte{' ', etx}, nil
	}
	req := *r
	if req.Data == nil {
		req.Data = Data{}
	}
	buf, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}
	return append(buf, etx), nil
}

// Frame is one ETX-delimited message received from the controller.
type Frame struct {
	Command Command
	Status  Status
	Data    Data
}

// ParseFrame decodes a raw frame without its ETX terminator.
//
// DOWNLOAD_BACKUP frames carry their payload at the top level instead of
// under "data"; everything but command/status is kept as the data element.
func ParseFrame(raw []byte) (*Frame, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("extalife: decode frame: %w", err)
	}
	cmd, ok := m["command"].(float64)
	if !ok {
		return nil, fmt.Errorf("extalife: frame has no command: %s", raw)
	}
	status, _ := m["status"].(string)
	f := &Frame{Command: Command(cmd), Status: Status(status)}
	if f.Command == CmdDownloadBackup {
		delete(m, "command")
		delete(m, "status")
		f.Data = m
		return f, nil
	}
	if data, ok := m["data"].(map[string]interface{}); ok {
		f.Data = data
	}
	return f, nil
}

// Response aggregates all frames the controller produced for one request.
// Command and status come from the closing frame.
type Response struct {
	Command Command
	Status  Status
	Data    []Data
}

func newResponse(frames []*Frame) *Response {
	last := frames[len(frames)-1]
	resp := &Response{Command: last.Command, Status: last.Status}
	for _, f := range frames {
		if f.Data != nil {
			resp.Data = append(resp.Data, f.Data)
		}
	}
	return resp
}

// Err returns a CmdError when the response reports failure, nil otherwise.
func (r *Response) Err() error {
	if r.Status != StatusFailure {
		return nil
	}
	code := 0
	if len(r.Data) > 0 {
		switch v := r.Data[0]["code"].(type) {
		case float64:
			code = int(v)
		case string:
			code, _ = strconv.Atoi(v)
		}
	}
	return &CmdError{Command: r.Command, Code: code}
}

// CmdError is a command the controller rejected.
type CmdError struct {
	Command Command
	Code    int
}

func (e *CmdError) Error() string {
	return fmt.Sprintf("extalife: command %s failed with code %d", e.Command, e.Code)
}

// ConnError is a transport-level failure talking to the controller.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return "extalife: " + e.Op
	}
	return fmt.Sprintf("extalife: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }
