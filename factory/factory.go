// Package factory builds the camera, trigger, sink and notifier from the
// loaded configuration.
package factory

import (
	"fmt"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/opencam/cam"
	"github.com/allape/opencam/cam/driver"
	"github.com/allape/opencam/cam/driver/sim"
	"github.com/allape/opencam/cam/sink"
	"github.com/allape/opencam/cam/trigger"
	"github.com/allape/opencam/cam/trigger/serialport"
	"github.com/allape/opencam/config"
	"github.com/allape/opencam/notify"
)

var l = gogger.New("factory")

func SessionFromConfig(conf config.Config) (driver.Session, error) {
	switch conf.Camera.Type {
	case config.CameraSim:
		frameRate, err := conf.Camera.Ext.GetFloat("frame_rate", 0)
		if err != nil {
			return nil, err
		}
		return sim.New(sim.Options{
			Width:        conf.Camera.Width,
			Height:       conf.Camera.Height,
			FrameRateMax: frameRate,
			FontPath:     conf.Camera.FontPath,
			Label:        conf.Camera.Label,
			Model:        conf.Camera.Model,
		})
	default:
		return nil, fmt.Errorf("unknown camera driver: %s", conf.Camera.Type)
	}
}

func TriggerFromConfig(conf config.Config) (trigger.Driver, error) {
	switch conf.Trigger.Type {
	case config.TriggerNone:
		l.Warn().Println("trigger driver is none, frames are free running")
		return nil, nil
	case config.TriggerSerialPort:
		l.Info().Println("trigger driver is serial port:", conf.Trigger.Src)
		baud, err := conf.Trigger.Ext.GetInt("baud", 9600)
		if err != nil {
			return nil, err
		}
		td := serialport.New(conf.Trigger.Src, baud)
		if err = td.Open(); err != nil {
			return nil, err
		}
		return td, nil
	default:
		return nil, fmt.Errorf("unknown trigger driver: %s", conf.Trigger.Type)
	}
}

func SinkFromConfig(conf config.Config) (*sink.Ring, error) {
	switch conf.Sink.Type {
	case config.SinkRing:
		return sink.NewRing(conf.Sink.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown sink: %s", conf.Sink.Type)
	}
}

// NotifierFromConfig returns nil without error when no broker is
// configured.
func NotifierFromConfig(conf config.Config) (*notify.Notifier, error) {
	if conf.MQTT.Broker == "" {
		l.Warn().Println("mqtt broker is empty, run summaries are not published")
		return nil, nil
	}
	return notify.New(notify.Options{
		Broker:   conf.MQTT.Broker,
		ClientID: conf.MQTT.ClientID,
		Topic:    conf.MQTT.Topic,
		Username: conf.MQTT.Username,
		Password: conf.MQTT.Password,
	})
}

// CameraFromConfig assembles the acquisition engine and its collaborators.
func CameraFromConfig(conf config.Config) (*cam.Camera, *sink.Ring, error) {
	session, err := SessionFromConfig(conf)
	if err != nil {
		return nil, nil, err
	}

	td, err := TriggerFromConfig(conf)
	if err != nil {
		return nil, nil, err
	}

	ring, err := SinkFromConfig(conf)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := NotifierFromConfig(conf)
	if err != nil {
		return nil, nil, err
	}
	if notifier != nil {
		ring.OnFinished = notifier.RunFinished
	}

	camera, err := cam.New(session, cam.Options{
		Sink:              ring,
		Trigger:           td,
		ReadoutTime:       time.Duration(conf.Camera.ReadoutTimeMs) * time.Millisecond,
		MultiROISupported: conf.Camera.MultiROI,
		MultiROIFillValue: byte(conf.Camera.MultiROIFill),
	})
	if err != nil {
		return nil, nil, err
	}

	return camera, ring, nil
}
