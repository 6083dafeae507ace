// Package httpapi binds internal/facade's protocol-agnostic operations to an
// HTTP surface with gin, the same router/handler-method style
// cmd/driver/hasher-host/main.go uses for its own REST API (gin.New,
// gin.Recovery, a versioned route group, gin.H JSON bodies).
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"netsim/internal/adaptor"
	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/facade"
	"netsim/internal/idgen"
	"netsim/internal/registry"
)

// NewRouter builds the gin engine exposing f's operations under /v1.
func NewRouter(f *facade.Facade, logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.New()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{facade: f, logger: logger}

	v1 := router.Group("/v1")
	{
		v1.GET("/version", h.getVersion)
		v1.POST("/devices", h.createDevice)
		v1.GET("/devices", h.listDevice)
		v1.GET("/devices/subscribe", h.subscribeDevice)
		v1.PATCH("/devices", h.patchDevice)
		v1.POST("/devices/reset", h.reset)
		v1.DELETE("/chips/:id", h.deleteChip)
		v1.GET("/captures", h.listCapture)
		v1.PATCH("/captures/:id", h.patchCapture)
		v1.GET("/captures/:id", h.getCapture)
	}
	return router
}

type handlers struct {
	facade *facade.Facade
	logger *logrus.Logger
}

func (h *handlers) getVersion(c *gin.Context) {
	v, err := h.facade.GetVersion(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

type chipCreateBody struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type deviceCreateBody struct {
	Name  string           `json:"name"`
	Chips []chipCreateBody `json:"chips"`
}

func (h *handlers) createDevice(c *gin.Context) {
	var body deviceCreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req := facade.DeviceCreate{Name: body.Name}
	for _, ch := range body.Chips {
		req.Chips = append(req.Chips, facade.ChipCreate{Kind: parseKind(ch.Kind), Name: ch.Name})
	}
	dev, err := h.facade.CreateDevice(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": dev.Id, "name": dev.Name})
}

func (h *handlers) deleteChip(c *gin.Context) {
	id, err := parseChipId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.facade.DeleteChip(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type positionBody struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type orientationBody struct {
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
	Roll  float32 `json:"roll"`
}

type chipPatchBody struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	PowerOn *bool  `json:"power_on"`
}

type patchDeviceBody struct {
	Id          *uint32          `json:"id"`
	Name        string           `json:"name"`
	Visible     *bool            `json:"visible"`
	Position    *positionBody    `json:"position"`
	Orientation *orientationBody `json:"orientation"`
	Chips       []chipPatchBody  `json:"chips"`
}

func (h *handlers) patchDevice(c *gin.Context) {
	var body patchDeviceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	fields := facade.PatchDeviceFields{Name: body.Name, Visible: body.Visible}
	if body.Id != nil {
		id := idgen.DeviceId(*body.Id)
		fields.Id = &id
	}
	if body.Position != nil {
		fields.Position = &registry.Position{X: body.Position.X, Y: body.Position.Y, Z: body.Position.Z}
	}
	if body.Orientation != nil {
		fields.Orientation = &registry.Orientation{Yaw: body.Orientation.Yaw, Pitch: body.Orientation.Pitch, Roll: body.Orientation.Roll}
	}
	for _, cp := range body.Chips {
		fields.Chips = append(fields.Chips, facade.ChipPatchFields{
			Kind:    parseKind(cp.Kind),
			Name:    cp.Name,
			Request: adaptor.PatchRequest{PowerOn: cp.PowerOn},
		})
	}
	if err := h.facade.PatchDevice(c.Request.Context(), fields); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listDevice(c *gin.Context) {
	resp := h.facade.ListDevice(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"devices": resp.Devices, "last_modified": resp.LastModified})
}

func (h *handlers) reset(c *gin.Context) {
	_ = h.facade.Reset(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// subscribeDevice implements spec.md §4.J SubscribeDevice over HTTP: a
// long-poll GET that blocks up to 15s, returning 404 on timeout per §5
// ("on timeout it returns HTTP 404 with the timeout message").
func (h *handlers) subscribeDevice(c *gin.Context) {
	var lastModified time.Time
	if raw := c.Query("last_modified"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_modified"})
			return
		}
		lastModified = parsed
	}

	resp, err := h.facade.SubscribeDevice(c.Request.Context(), lastModified)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": resp.Devices, "last_modified": resp.LastModified})
}

func (h *handlers) listCapture(c *gin.Context) {
	patterns := c.QueryArray("pattern")
	captures := h.facade.ListCapture(c.Request.Context(), patterns)
	c.JSON(http.StatusOK, gin.H{"captures": captures})
}

type patchCaptureBody struct {
	State string `json:"state"`
}

func (h *handlers) patchCapture(c *gin.Context) {
	id, err := parseChipId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var body patchCaptureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	state := capture.StateOff
	if strings.EqualFold(body.State, "on") {
		state = capture.StateOn
	}
	if err := h.facade.PatchCapture(c.Request.Context(), id, facade.CapturePatch{State: state}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// chunkSize matches spec.md §4.D's 1024-byte streaming chunk.
const chunkSize = 1024

func (h *handlers) getCapture(c *gin.Context) {
	id, err := parseChipId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	captures := h.facade.ListCapture(c.Request.Context(), nil)
	filename := fmt.Sprintf("netsim-%d.bin", id)
	for _, cap := range captures {
		if cap.ChipId == id {
			filename = captureFilename(cap)
			break
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)

	err = h.facade.GetCapture(c.Request.Context(), id, chunkSize, func(chunk facade.CaptureChunk) error {
		_, werr := c.Writer.Write(chunk.Data)
		return werr
	})
	if err != nil {
		h.logger.WithError(err).WithField("chip_id", id).Warn("httpapi: capture stream ended early")
	}
}

// captureFilename reproduces spec.md §6's
// "netsim-<chip_id>-<device_name>-<ChipKind>.<ext>" naming for the download
// filename, with the capture's creation timestamp appended per §4.C.
func captureFilename(cap capture.Capture) string {
	safeName := strings.ReplaceAll(cap.DeviceName, " ", "_")
	ts := time.Unix(cap.Seconds, int64(cap.Nanos)).UTC().Format("20060102T150405Z")
	return fmt.Sprintf("netsim-%d-%s-%s-%s.%s", cap.ChipId, safeName, cap.ChipKind.String(), ts, cap.Extension)
}

func parseKind(s string) chipkind.Kind {
	switch strings.ToUpper(s) {
	case "BLUETOOTH":
		return chipkind.Bluetooth
	case "WIFI":
		return chipkind.Wifi
	case "UWB":
		return chipkind.Uwb
	case "BLUETOOTH_BEACON":
		return chipkind.BluetoothBeacon
	default:
		return chipkind.Unspecified
	}
}

func parseChipId(raw string) (idgen.ChipId, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("invalid chip id")
	}
	return idgen.ChipId(n), nil
}

// writeError maps a facade error's grpc status code onto an HTTP status,
// per spec.md §7's taxonomy.
func writeError(c *gin.Context, err error) {
	st := status.Convert(err)
	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.AlreadyExists:
		code = http.StatusConflict
	case codes.InvalidArgument:
		code = http.StatusBadRequest
	case codes.FailedPrecondition:
		code = http.StatusConflict
	case codes.Internal:
		code = http.StatusInternalServerError
	}
	c.JSON(code, gin.H{"error": st.Message()})
}
