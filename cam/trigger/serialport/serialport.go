package serialport

import (
	"errors"
	"strings"
	"sync"

	"github.com/allape/gogger"
	"github.com/allape/opencam/cam/trigger"
	"go.bug.st/serial"
)

var l = gogger.New("cam.trigger.serialport")

// PulseWord is written to the port for every trigger request.
const PulseWord = "+"

type Driver struct {
	trigger.Driver

	openLocker  sync.Locker
	writeLocker sync.Locker

	Port serial.Port

	Name string
	Baud int
}

func (d *Driver) Open() error {
	d.openLocker.Lock()
	defer d.openLocker.Unlock()

	if d.Port != nil {
		return errors.New("port already open")
	}

	mode := &serial.Mode{
		BaudRate: d.Baud,
	}
	port, err := serial.Open(d.Name, mode)
	if err != nil {
		return err
	}
	d.Port = port

	go func(port serial.Port) {
		buf := make([]byte, 1024)
		unfinishedLine := ""
		for {
			n, err := port.Read(buf)
			if err != nil {
				l.Error().Println("read error:", err)
			}
			if n == 0 {
				l.Warn().Println("EOF")
				return
			}
			lines := strings.Split(unfinishedLine+string(buf[:n]), "\n")
			for i := 0; i < len(lines)-1; i++ {
				l.Verbose().Println(">", lines[i])
			}
			unfinishedLine = lines[len(lines)-1]
		}
	}(port)

	return nil
}

func (d *Driver) Close() error {
	d.openLocker.Lock()
	defer d.openLocker.Unlock()

	if d.Port == nil {
		return nil
	}

	err := d.Port.Close()
	d.Port = nil
	return err
}

func (d *Driver) Pulse() error {
	if d.Port == nil {
		if err := d.Open(); err != nil {
			return err
		}
	}

	d.writeLocker.Lock()
	defer d.writeLocker.Unlock()

	_, err := d.Port.Write([]byte(PulseWord))
	if err != nil {
		_ = d.Close()
		return err
	}

	return nil
}

func New(name string, baud int) trigger.Driver {
	return &Driver{
		openLocker:  &sync.Mutex{},
		writeLocker: &sync.Mutex{},
		Name:        name,
		Baud:        baud,
	}
}
