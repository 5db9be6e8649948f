package ezviz

import (
	"context"
	"strconv"
	"time"

	"github.com/smazurov/ezvizbridge/internal/metrics"
)

const (
	pageLimit      = 30
	pagelistFilter = "CLOUD,TIME_PLAN,CONNECTION,SWITCH,STATUS,WIFI,STATUS_EXT,NODISTURB,P2P,TTS,KMS,HIDDNS"
	cameraCategory = "IPC"

	statusOnline        = 1
	unknownSensibility  = "Unknown"
	sensibilityAlgoType = "0"
)

var alarmSoundModes = map[int]string{
	0: "Soft",
	1: "Intensive",
	2: "Silent",
}

// CameraInfo is one camera as reported by the cloud.
type CameraInfo struct {
	Serial               string
	Name                 string
	Status               bool
	DeviceSubCategory    string
	LocalIP              string
	LocalRTSPPort        int
	Privacy              bool
	Audio                bool
	IRLed                bool
	StateLed             bool
	FollowMove           bool
	AlarmNotify          bool
	AlarmSoundMode       string
	Encrypted            bool
	DetectionSensibility string
}

type pagelistResponse struct {
	Meta meta `json:"meta"`
	Page struct {
		HasNext bool `json:"hasNext"`
	} `json:"page"`
	DeviceInfos []deviceInfo              `json:"deviceInfos"`
	Connection  map[string]connectionInfo `json:"CONNECTION"`
	Status      map[string]statusInfo     `json:"STATUS"`
	Switch      map[string][]switchInfo   `json:"SWITCH"`
}

type deviceInfo struct {
	DeviceSerial      string `json:"deviceSerial"`
	Name              string `json:"name"`
	Status            int    `json:"status"`
	DeviceCategory    string `json:"deviceCategory"`
	DeviceSubCategory string `json:"deviceSubCategory"`
}

type connectionInfo struct {
	LocalIP       string `json:"localIp"`
	LocalRTSPPort int    `json:"localRtspPort"`
}

type statusInfo struct {
	GlobalStatus   int `json:"globalStatus"`
	IsEncrypt      int `json:"isEncrypt"`
	AlarmSoundMode int `json:"alarmSoundMode"`
}

type switchInfo struct {
	Type   SwitchType `json:"type"`
	Enable bool       `json:"enable"`
}

type algorithmResponse struct {
	legacyResponse
	AlgorithmConfig struct {
		AlgorithmList []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"algorithmList"`
	} `json:"algorithmConfig"`
}

// LoadCameras lists every camera of the account with full status.
func (c *Client) LoadCameras(ctx context.Context) ([]CameraInfo, error) {
	cameras, err := c.listCameras(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cameras {
		s, err := c.DetectionSensibility(ctx, cameras[i].Serial)
		if err != nil {
			return nil, err
		}
		cameras[i].DetectionSensibility = s
	}
	return cameras, nil
}

// CameraStatus returns a fresh record for one camera.
func (c *Client) CameraStatus(ctx context.Context, serial string) (CameraInfo, error) {
	cameras, err := c.listCameras(ctx)
	if err != nil {
		return CameraInfo{}, err
	}
	for _, cam := range cameras {
		if cam.Serial != serial {
			continue
		}
		s, err := c.DetectionSensibility(ctx, serial)
		if err != nil {
			return CameraInfo{}, err
		}
		cam.DetectionSensibility = s
		return cam, nil
	}
	return CameraInfo{}, &Error{Op: "status", Message: serial, Err: ErrCameraNotFound}
}

func (c *Client) listCameras(ctx context.Context) ([]CameraInfo, error) {
	var cameras []CameraInfo
	for offset := 0; ; offset += pageLimit {
		page, err := c.pagelist(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, d := range page.DeviceInfos {
			if d.DeviceCategory != cameraCategory {
				continue
			}
			cameras = append(cameras, page.camera(d))
		}
		if !page.Page.HasNext || len(page.DeviceInfos) == 0 {
			return cameras, nil
		}
	}
}

func (c *Client) pagelist(ctx context.Context, offset int) (*pagelistResponse, error) {
	req, err := c.request(ctx, "pagelist")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result pagelistResponse
	resp, err := req.
		SetQueryParams(map[string]string{
			"filter":  pagelistFilter,
			"groupId": "-1",
			"limit":   strconv.Itoa(pageLimit),
			"offset":  strconv.Itoa(offset),
		}).
		SetResult(&result).
		Get(pagelistPath)
	err = c.checkMeta("pagelist", resp, err, result.Meta)
	metrics.ObserveVendorCall("pagelist", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *pagelistResponse) camera(d deviceInfo) CameraInfo {
	conn := p.Connection[d.DeviceSerial]
	status := p.Status[d.DeviceSerial]

	info := CameraInfo{
		Serial:            d.DeviceSerial,
		Name:              d.Name,
		Status:            d.Status == statusOnline,
		DeviceSubCategory: d.DeviceSubCategory,
		LocalIP:           conn.LocalIP,
		LocalRTSPPort:     conn.LocalRTSPPort,
		AlarmNotify:       status.GlobalStatus != 0,
		AlarmSoundMode:    alarmSoundMode(status.AlarmSoundMode),
		Encrypted:         status.IsEncrypt != 0,
	}

	for _, sw := range p.Switch[d.DeviceSerial] {
		switch sw.Type {
		case SwitchPrivacy:
			info.Privacy = sw.Enable
		case SwitchAudio:
			info.Audio = sw.Enable
		case SwitchIRLed:
			info.IRLed = sw.Enable
		case SwitchStateLed:
			info.StateLed = sw.Enable
		case SwitchFollowMove:
			info.FollowMove = sw.Enable
		}
	}
	return info
}

func alarmSoundMode(mode int) string {
	if s, ok := alarmSoundModes[mode]; ok {
		return s
	}
	return "Unknown"
}

// DetectionSensibility reads the motion detection level. Cameras without the
// algorithm report "Unknown".
func (c *Client) DetectionSensibility(ctx context.Context, serial string) (string, error) {
	req, err := c.request(ctx, "detection_sensibility")
	if err != nil {
		return "", err
	}

	start := time.Now()
	var result algorithmResponse
	resp, err := req.
		SetFormData(map[string]string{"serial": serial}).
		SetResult(&result).
		Post(algoPath)
	metrics.ObserveVendorCall("detection_sensibility", time.Since(start), err)
	if err != nil {
		return "", &Error{Op: "detection_sensibility", Err: err}
	}
	if resp.IsError() {
		return "", &Error{Op: "detection_sensibility", Message: "http " + resp.Status()}
	}
	if result.ResultCode != "0" {
		return unknownSensibility, nil
	}

	for _, algo := range result.AlgorithmConfig.AlgorithmList {
		if algo.Type == sensibilityAlgoType {
			return algo.Value, nil
		}
	}
	return unknownSensibility, nil
}
