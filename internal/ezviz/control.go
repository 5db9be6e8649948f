package ezviz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/ezvizbridge/internal/metrics"
)

// SwitchType identifies a device feature switch.
type SwitchType int

// Switch types understood by switchStatus.
const (
	SwitchStateLed   SwitchType = 3
	SwitchPrivacy    SwitchType = 7
	SwitchIRLed      SwitchType = 10
	SwitchAudio      SwitchType = 22
	SwitchFollowMove SwitchType = 25
)

func (t SwitchType) String() string {
	switch t {
	case SwitchStateLed:
		return "state_led"
	case SwitchPrivacy:
		return "privacy"
	case SwitchIRLed:
		return "ir_led"
	case SwitchAudio:
		return "audio"
	case SwitchFollowMove:
		return "follow_move"
	}
	return "switch_" + strconv.Itoa(int(t))
}

// PTZ actions.
const (
	ActionStart = "START"
	ActionStop  = "STOP"
)

var directions = map[string]bool{"up": true, "down": true, "left": true, "right": true}

// PTZControl sends one PTZ command. command is a direction; action is START or STOP.
func (c *Client) PTZControl(ctx context.Context, command, serial, action string, speed int) error {
	if !directions[strings.ToLower(command)] {
		return &Error{Op: "ptz", Message: command, Err: ErrInvalidDirection}
	}
	req, err := c.request(ctx, "ptz")
	if err != nil {
		return err
	}

	start := time.Now()
	var result metaResponse
	resp, err := req.
		SetFormData(map[string]string{
			"command":   strings.ToUpper(command),
			"action":    action,
			"channelNo": "1",
			"speed":     strconv.Itoa(speed),
			"uuid":      uuid.NewString(),
			"serial":    serial,
		}).
		SetResult(&result).
		Put(fmt.Sprintf(ptzPath, serial))
	err = c.checkMeta("ptz", resp, err, result.Meta)
	metrics.ObserveVendorCall("ptz", time.Since(start), err)
	return err
}

// SwitchStatus turns a device feature on or off.
func (c *Client) SwitchStatus(ctx context.Context, serial string, t SwitchType, enable bool) error {
	req, err := c.request(ctx, "switch")
	if err != nil {
		return err
	}

	value := "0"
	if enable {
		value = "1"
	}

	start := time.Now()
	var result legacyResponse
	resp, err := req.
		SetFormData(map[string]string{
			"serial":    serial,
			"enable":    value,
			"type":      strconv.Itoa(int(t)),
			"channel":   "0",
			"channelNo": "1",
		}).
		SetResult(&result).
		Post(switchPath)
	err = c.checkLegacy("switch", resp, err, result)
	metrics.ObserveVendorCall("switch", time.Since(start), err)
	if err != nil {
		c.logger.Debug("Switch failed", "serial", serial, "switch", t.String(), "error", err)
	}
	return err
}

// Camera is a control handle bound to one serial.
type Camera struct {
	client *Client
	serial string
}

// NewCamera returns a handle for serial.
func NewCamera(client *Client, serial string) *Camera {
	return &Camera{client: client, serial: serial}
}

// Serial returns the bound serial.
func (c *Camera) Serial() string { return c.serial }

// Status fetches a fresh record for the camera.
func (c *Camera) Status(ctx context.Context) (CameraInfo, error) {
	return c.client.CameraStatus(ctx, c.serial)
}

// Move nudges the camera: START then STOP in the given direction.
func (c *Camera) Move(ctx context.Context, direction string, speed int) error {
	if err := c.client.PTZControl(ctx, direction, c.serial, ActionStart, speed); err != nil {
		return err
	}
	return c.client.PTZControl(ctx, direction, c.serial, ActionStop, speed)
}

func (c *Camera) SwitchDeviceAudio(ctx context.Context, enable bool) error {
	return c.client.SwitchStatus(ctx, c.serial, SwitchAudio, enable)
}

func (c *Camera) SwitchDeviceIRLed(ctx context.Context, enable bool) error {
	return c.client.SwitchStatus(ctx, c.serial, SwitchIRLed, enable)
}

func (c *Camera) SwitchDeviceStateLed(ctx context.Context, enable bool) error {
	return c.client.SwitchStatus(ctx, c.serial, SwitchStateLed, enable)
}

func (c *Camera) SwitchPrivacyMode(ctx context.Context, enable bool) error {
	return c.client.SwitchStatus(ctx, c.serial, SwitchPrivacy, enable)
}

func (c *Camera) SwitchFollowMove(ctx context.Context, enable bool) error {
	return c.client.SwitchStatus(ctx, c.serial, SwitchFollowMove, enable)
}
