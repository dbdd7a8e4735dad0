package grbl

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/zcal/machine"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

type SerialAdapter struct {
	*Conn

	mx    sync.Mutex
	last  machine.State
	state chan machine.State
	data  chan string
	done  chan struct{}

	probes      []machine.ProbeResult
	getProbes   chan []machine.ProbeResult
	resetProbes chan struct{}

	log logrus.FieldLogger
}

var _ machine.Adapter = &SerialAdapter{}

// OpenSerial opens a grbl controller on a local serial port.
func OpenSerial(name string, baud int) (*SerialAdapter, error) {
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	return NewSerialAdapter(port), nil
}

func NewSerialAdapter(rw io.ReadWriter) *SerialAdapter {
	adapter := &SerialAdapter{
		Conn: NewConn(rw),

		state:       make(chan machine.State),
		getProbes:   make(chan []machine.ProbeResult),
		resetProbes: make(chan struct{}),
		data:        make(chan string),
		done:        make(chan struct{}),

		log: logrus.WithField("component", "grbl"),
	}
	go adapter.pollStatus(500 * time.Millisecond)
	go adapter.loop()
	go adapter.readLoop()

	return adapter
}

// Close stops polling and closes the connection.
func (adapter *SerialAdapter) Close() error {
	select {
	case <-adapter.done:
	default:
		close(adapter.done)
	}
	return adapter.Conn.Close()
}

func (adapter *SerialAdapter) pollStatus(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-adapter.done:
			return
		case <-t.C:
			err := adapter.WriteByte('?')
			if err != nil {
				adapter.log.WithError(err).Debug("status poll")
			}
		}
	}
}

func (adapter *SerialAdapter) Probes() []machine.ProbeResult { return <-adapter.getProbes }

func (adapter *SerialAdapter) ResetProbes() { adapter.resetProbes <- struct{}{} }

func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Read(buf)
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			adapter.log.WithError(err).Error("read from port")
			continue
		}
		select {
		case adapter.data <- string(buf[:n]):
		case <-adapter.done:
			return
		}
	}
}
func (adapter *SerialAdapter) State() chan machine.State { return adapter.state }
func (adapter *SerialAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	state := adapter.last
	adapter.mx.Unlock()
	return state
}
func (adapter *SerialAdapter) loop() {
	for {
		select {
		case <-adapter.done:
			return
		case <-adapter.resetProbes:
			adapter.probes = nil
		case adapter.getProbes <- adapter.probes:
		case data := <-adapter.data:
			if len(data) == 0 {
				continue
			}
			switch data[0] {
			case '<':
				stat, err := parseStatus(adapter.CurrentState(), data)
				if err != nil {
					adapter.log.WithError(err).Error("parse status")
					continue
				}
				adapter.mx.Lock()
				adapter.last = *stat
				adapter.mx.Unlock()
				select {
				case adapter.state <- *stat:
				default:
				}
			case '[':
				if !strings.HasPrefix(data, "[PRB:") {
					adapter.log.Debug(strings.TrimSpace(data))
					continue
				}
				prb, err := parseProbe(data)
				if err != nil {
					adapter.log.WithError(err).Error("parse probe")
					continue
				}
				adapter.probes = append(adapter.probes, *prb)
			}
		}
	}
}
