package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/allape/opencam/cam/sink"
	"github.com/allape/opencam/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// streamPollInterval paces the push loop when the ring has no new frame.
const streamPollInterval = 20 * time.Millisecond

type frameHeader struct {
	Width   int   `json:"width"`
	Height  int   `json:"height"`
	Depth   int   `json:"depth"`
	Elapsed int64 `json:"elapsedMs"`
	Binning int   `json:"binning"`
}

// StreamHandler upgrades the connection and pushes buffered frames as a
// JSON header message followed by the raw pixel payload.
func StreamHandler(conf config.Config, ring *sink.Ring) gin.HandlerFunc {
	upgrader := websocket.Upgrader{}

	if conf.Server.Cors {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("upgrade:", err)
			return
		}
		defer func() {
			_ = conn.Close()
		}()

		// Drain client messages so pings and close frames are processed; the
		// closed channel tells the push loop the client is gone, so an idle
		// stream does not keep the handler alive forever.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			img, ok := ring.Pop()
			if !ok {
				select {
				case <-closed:
					return
				case <-time.After(streamPollInterval):
				}
				continue
			}

			header, err := json.Marshal(frameHeader{
				Width:   img.Width,
				Height:  img.Height,
				Depth:   img.Depth,
				Elapsed: img.Metadata.Elapsed.Milliseconds(),
				Binning: img.Metadata.Binning,
			})
			if err != nil {
				log.Println("marshal frame header:", err)
				return
			}

			if err = conn.WriteMessage(websocket.TextMessage, header); err != nil {
				return
			}
			if err = conn.WriteMessage(websocket.BinaryMessage, img.Pixels); err != nil {
				return
			}
		}
	}
}
