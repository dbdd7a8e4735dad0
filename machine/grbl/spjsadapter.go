package grbl

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mastercactapus/zcal/machine"
	"github.com/mastercactapus/zcal/spjs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// ErrWipedQueue is returned to pending writes when the serial port json
// server discards its queue.
var ErrWipedQueue = errors.New("wiped queue")

// SPJSAdapter drives a grbl controller attached to a serial-port-json-server.
type SPJSAdapter struct {
	sp   *spjs.SPJS
	port string

	cmds    chan adapterMessage
	waiting map[string]chan error

	mx    sync.Mutex
	last  machine.State
	alarm *machine.AlarmError
	state chan machine.State

	probes      []machine.ProbeResult
	getProbes   chan []machine.ProbeResult
	resetProbes chan struct{}

	log logrus.FieldLogger
}

var _ machine.Adapter = &SPJSAdapter{}

type adapterMessage struct {
	spjs.JSON
	wait chan error
}

func NewSPJSAdapter(sp *spjs.SPJS, port string) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:          sp,
		port:        port,
		waiting:     make(map[string]chan error, 100),
		cmds:        make(chan adapterMessage, 1000),
		state:       make(chan machine.State),
		getProbes:   make(chan []machine.ProbeResult),
		resetProbes: make(chan struct{}),
		log:         logrus.WithFields(logrus.Fields{"component": "spjs", "port": port}),
	}
	go adapter.loop()

	return adapter
}
func (adapter *SPJSAdapter) Probes() []machine.ProbeResult { return <-adapter.getProbes }

func (adapter *SPJSAdapter) ResetProbes() { adapter.resetProbes <- struct{}{} }

func (adapter *SPJSAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.last
}

func (adapter *SPJSAdapter) LastAlarm() *machine.AlarmError {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.alarm
}

func (adapter *SPJSAdapter) Unlock() error {
	adapter.mx.Lock()
	adapter.alarm = nil
	adapter.mx.Unlock()
	_, err := adapter.Write([]byte("$X\n"))
	return err
}

func (adapter *SPJSAdapter) setMachineState(state machine.State) {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	adapter.last = state
	select {
	case adapter.state <- state:
	default:
	}
}

// failWaiting releases every pending write with err.
func (adapter *SPJSAdapter) failWaiting(err error) {
	for key, ch := range adapter.waiting {
		ch <- err
		delete(adapter.waiting, key)
	}
}

func (adapter *SPJSAdapter) handleData(data string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return
	}
	switch {
	case data[0] == '<':
		stat, err := parseStatus(adapter.CurrentState(), data)
		if err != nil {
			adapter.log.WithError(err).Error("parse status")
			return
		}
		adapter.setMachineState(*stat)
	case strings.HasPrefix(data, "[PRB:"):
		prb, err := parseProbe(data)
		if err != nil {
			adapter.log.WithError(err).Error("parse probe")
			return
		}
		adapter.probes = append(adapter.probes, *prb)
	case strings.HasPrefix(data, "ALARM:"):
		alarm, err := parseAlarm(data)
		if err != nil {
			adapter.log.WithError(err).Error("parse alarm")
			return
		}
		adapter.mx.Lock()
		adapter.alarm = alarm
		adapter.mx.Unlock()
		adapter.log.Warn(alarm.Error())
		adapter.failWaiting(alarm)
	}
}

func (adapter *SPJSAdapter) loop() {
	for {
		select {
		case adapter.getProbes <- adapter.probes:
		case <-adapter.resetProbes:
			adapter.probes = nil
		case resp, ok := <-adapter.sp.Messages():
			if !ok {
				adapter.failWaiting(io.ErrClosedPipe)
				return
			}
			switch msg := resp.(type) {
			case *spjs.DataFrame:
				adapter.handleData(msg.Data)
			case *spjs.ErrorMessage:
				adapter.log.Error(msg.Error)
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					adapter.failWaiting(ErrWipedQueue)
				case "Complete":
					if adapter.waiting[msg.ID] != nil {
						adapter.waiting[msg.ID] <- nil
						delete(adapter.waiting, msg.ID)
					}
				}
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != adapter.port {
						continue
					}
					if !port.IsOpen {
						adapter.log.Info("opening port")
						adapter.sp.WriteString("open " + adapter.port + " grbl 115200")
					}
				}
			}
		case msg := <-adapter.cmds:
			adapter.sp.SendJSON(msg.JSON)
			if msg.wait != nil {
				adapter.waiting[msg.Data[len(msg.Data)-1].ID] = msg.wait
			}
		}
	}
}

func (adapter *SPJSAdapter) State() chan machine.State {
	return adapter.state
}

func (adapter *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	var waits []chan error
	for {
		var j spjs.JSON
		j.Port = adapter.port
		for scan.Scan() {
			n += int64(len(scan.Bytes()))
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(scan.Text()) + "\n",
				ID:   nextID(),
			})
			if len(j.Data) == 100 {
				break
			}
		}
		if len(j.Data) == 0 {
			break
		}
		wait := make(chan error, 1)
		waits = append(waits, wait)
		adapter.cmds <- adapterMessage{JSON: j, wait: wait}
	}
	if err = scan.Err(); err != nil {
		return n, err
	}

	// a failed batch is released early, so check each in order
	for _, wait := range waits {
		if err = <-wait; err != nil {
			return n, err
		}
	}
	return n, nil
}
func (adapter *SPJSAdapter) WriteByte(b byte) error {
	_, err := adapter.Write([]byte(string(b) + "\n"))
	return err
}
func (adapter *SPJSAdapter) Write(p []byte) (int, error) {
	n, err := adapter.ReadFrom(bytes.NewReader(p))
	return int(n), err
}
