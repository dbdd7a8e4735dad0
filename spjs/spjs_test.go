package spjs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, data string) (interface{}, error) {
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	return parseSPJSMessage([]byte(data), msg)
}

func TestParseSPJSMessage(t *testing.T) {
	v, err := parse(t, `{"P":"/dev/ttyUSB0","D":"ALARM:4\n"}`)
	require.NoError(t, err)
	assert.Equal(t, &DataFrame{Port: "/dev/ttyUSB0", Data: "ALARM:4\n"}, v)

	v, err = parse(t, `{"Cmd":"Complete","Id":"cmd_1","P":"/dev/ttyUSB0","Type":["Buf"],"D":["G0X1\n"]}`)
	require.NoError(t, err)
	require.IsType(t, &CmdStatus{}, v)
	assert.Equal(t, "Complete", v.(*CmdStatus).Cmd)
	assert.Equal(t, "cmd_1", v.(*CmdStatus).ID)

	v, err = parse(t, `{"SerialPorts":[{"Name":"/dev/ttyUSB0","IsOpen":true,"Baud":115200}]}`)
	require.NoError(t, err)
	require.IsType(t, &SerialPortList{}, v)
	assert.True(t, v.(*SerialPortList).SerialPorts[0].IsOpen)

	v, err = parse(t, `{"Error":"port not open"}`)
	require.NoError(t, err)
	assert.Equal(t, &ErrorMessage{Error: "port not open"}, v)

	_, err = parse(t, `{"Version":"1.96"}`)
	assert.Error(t, err)
}
