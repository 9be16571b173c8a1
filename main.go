package main

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/allape/opencam/cam"
	"github.com/allape/opencam/config"
	"github.com/allape/opencam/factory"
	"github.com/allape/opencam/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var log = logger.New("[main]")

func main() {
	conf, err := config.GetConfig()
	if err != nil {
		log.Println("get config:", err)
	}

	camera, ring, err := factory.CameraFromConfig(conf)
	if err != nil {
		log.Fatalln("camera from config:", err)
	}
	defer func() {
		_ = camera.Close()
	}()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if conf.Server.Cors {
		engine.Use(cors.Default())
	}

	engine.GET("/state", func(c *gin.Context) {
		roi := camera.ROI()
		c.JSON(http.StatusOK, gin.H{
			"state":     camera.State().String(),
			"width":     camera.Width(),
			"height":    camera.Height(),
			"depth":     camera.BytesPerPixel(),
			"binning":   camera.Binning(),
			"exposure":  camera.Exposure(),
			"frameRate": camera.FrameRate(),
			"format":    camera.PixelFormat().String(),
			"roi":       roi,
			"buffered":  ring.Len(),
		})
	})

	engine.POST("/start", func(c *gin.Context) {
		count := cam.Unbounded()
		if frames := c.Query("frames"); frames != "" {
			n, err := strconv.ParseInt(frames, 10, 64)
			if err != nil || n <= 0 {
				c.String(http.StatusBadRequest, "invalid frame count")
				return
			}
			count = cam.Finite(n)
		}

		interval := 0.0
		if ms := c.Query("interval_ms"); ms != "" {
			parsed, err := strconv.ParseFloat(ms, 64)
			if err != nil || parsed < 0 {
				c.String(http.StatusBadRequest, "invalid interval")
				return
			}
			interval = parsed
		}

		if err := camera.StartSequenceAcquisition(count, interval, conf.Sink.StopOnOverflow); err != nil {
			c.String(http.StatusConflict, err.Error())
			return
		}
		c.String(http.StatusOK, "ok")
	})

	engine.POST("/stop", func(c *gin.Context) {
		if err := camera.StopSequenceAcquisition(); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, "ok")
	})

	engine.POST("/snap", func(c *gin.Context) {
		if err := camera.SnapImage(); err != nil {
			c.String(http.StatusConflict, err.Error())
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", camera.ImageBuffer())
	})

	engine.POST("/roi", func(c *gin.Context) {
		x, _ := strconv.Atoi(c.Query("x"))
		y, _ := strconv.Atoi(c.Query("y"))
		width, _ := strconv.Atoi(c.Query("width"))
		height, _ := strconv.Atoi(c.Query("height"))

		if err := camera.SetROI(x, y, width, height); err != nil {
			c.String(http.StatusConflict, err.Error())
			return
		}
		c.JSON(http.StatusOK, camera.ROI())
	})

	engine.POST("/binning", func(c *gin.Context) {
		factor, err := strconv.Atoi(c.Query("factor"))
		if err != nil {
			c.String(http.StatusBadRequest, "invalid factor")
			return
		}
		if err = camera.SetBinning(factor); err != nil {
			c.String(http.StatusConflict, err.Error())
			return
		}
		c.JSON(http.StatusOK, camera.ROI())
	})

	engine.POST("/exposure", func(c *gin.Context) {
		ms, err := strconv.ParseFloat(c.Query("ms"), 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid exposure")
			return
		}
		if err = camera.SetExposure(ms); err != nil {
			c.String(http.StatusConflict, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"exposure": camera.Exposure()})
	})

	engine.GET(conf.Server.Path, StreamHandler(conf, ring))

	go func() {
		log.Fatalln(engine.Run(conf.Server.Addr))
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	log.Println("started on", conf.Server.Addr)
	sig := <-sigs
	log.Println("exiting with", sig)
}
