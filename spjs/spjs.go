package spjs

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SPJS is a reconnecting client for a serial-port-json-server websocket.
type SPJS struct {
	url string
	log logrus.FieldLogger

	done chan struct{}
	once sync.Once

	mx          sync.RWMutex
	serialPorts []SerialPort

	outgoing  chan message
	incomming chan interface{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:       url,
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
		done:      make(chan struct{}),
		log:       logrus.WithField("component", "spjs"),
	}

	go sp.loop()

	return sp
}
// Close stops reconnecting and closes the active connection.
func (sp *SPJS) Close() error {
	sp.once.Do(func() { close(sp.done) })
	return nil
}

// Messages returns decoded server messages; it is closed after Close.
func (sp *SPJS) Messages() chan interface{} {
	return sp.incomming
}
func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}
func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			sp.log.WithError(err).Error("read")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			sp.log.WithError(err).Error("decode")
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			sp.log.WithError(err).Warn("parse")
			continue
		}
		select {
		case sp.incomming <- val:
		case <-sp.done:
			return
		}
	}
}
func (sp *SPJS) loop() {
	defer close(sp.incomming)
	var nextUp message

reconnect:
	for {
		select {
		case <-sp.done:
			return
		default:
		}
		sp.log.WithField("url", sp.url).Info("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			sp.log.WithError(err).Error("connect")
			select {
			case <-sp.done:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		sp.log.Info("connected")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					sp.log.WithError(err).Error("send")
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-sp.done:
				ws.Close()
				<-ch
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (sp *SPJS) SendJSON(v JSON) {
	data, err := json.Marshal(v)
	if err != nil {
		// shouldn't happen since we control everything that's sent out
		sp.log.WithError(err).Panic("sendjson (marshal)")
		return
	}

	sp.send(append([]byte("sendjson "), data...))
}
func (sp *SPJS) WriteString(data string) {
	sp.send([]byte(data))
}

func (sp *SPJS) send(payload []byte) {
	ch := make(chan struct{})
	select {
	case sp.outgoing <- message{done: ch, payload: payload}:
	case <-sp.done:
		return
	}
	select {
	case <-ch:
	case <-sp.done:
	}
}
