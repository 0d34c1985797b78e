package locator

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/vision"
)

// Device discovery constants.
const (
	// DefaultDeviceTimeout bounds LocateDevices when no timeout is given.
	DefaultDeviceTimeout = 10 * time.Second

	// DefaultTitleConfidence is used for the discovery title when the
	// configuration leaves it unset.
	DefaultTitleConfidence = 0.8

	classConfidenceFloor = 0.6
	classConfidenceCeil  = 0.75
	classConfidenceScale = 0.9
)

// DeviceKeys names the templates used by LocateDevices.
type DeviceKeys struct {
	Title           string
	TitleConfidence float64
	Led             string
	Pump            string
	Converter       string
}

// DeviceKeysFrom reads the discovery keys from the devices section.
func DeviceKeysFrom(c config.DevicesConfig) DeviceKeys {
	return DeviceKeys{
		Title:           c.TitleKey,
		TitleConfidence: c.TitleConfidence,
		Led:             c.LedKey,
		Pump:            c.PumpKey,
		Converter:       c.ConverterKey,
	}
}

// Devices holds every device entry found in one discovery pass.
type Devices struct {
	Leds       []Location
	Pumps      []Location
	Converters []Location
}

// Empty reports whether no class had a hit.
func (d Devices) Empty() bool {
	return len(d.Leds) == 0 && len(d.Pumps) == 0 && len(d.Converters) == 0
}

// ClassConfidence derives the per-class threshold from the configured
// confidence: 90% of it, clamped to [0.6, 0.75].
func ClassConfidence(configured float64) float64 {
	return math.Max(classConfidenceFloor, math.Min(classConfidenceCeil, configured*classConfidenceScale))
}

// LocateDevices finds every LED, pump and converter entry in the device
// discovery list.
//
// The list region is taken from the title template in a single attempt; if
// the title is not visible the whole screen is searched. A pass returns as
// soon as any class has a hit. Empty passes repeat every PollInterval until
// timeout, after which an empty Devices is returned.
func (l *Locator) LocateDevices(ctx context.Context, keys DeviceKeys, timeout time.Duration) Devices {
	if timeout <= 0 {
		timeout = DefaultDeviceTimeout
	}
	region := l.discoveryRegion(keys)

	classes := []struct {
		name      string
		templates []vision.Template
	}{
		{"led", l.resolveClass(keys.Led)},
		{"pump", l.resolveClass(keys.Pump)},
		{"converter", l.resolveClass(keys.Converter)},
	}

	start := l.now()
	deadline := start.Add(timeout)
	passes := 0
	found := false
	defer func() {
		l.record(keys.Title, found, passes, l.now().Sub(start))
	}()

	for l.now().Before(deadline) {
		if l.stop.IsSet() {
			l.logger.Info("device discovery stopped by user")
			return Devices{}
		}
		passes++

		cfg := l.settings.Automation()
		confidence := ClassConfidence(cfg.Confidence)

		gray, origin, err := l.capture(region)
		if err != nil {
			l.logger.Error("device discovery capture failed", "error", err)
			if cfg.ErrorPolicy == config.ErrorPolicyAbort {
				return Devices{}
			}
		} else {
			var hits [3][]Location
			for i, class := range classes {
				for _, t := range class.templates {
					for _, m := range l.matcher.FindAll(gray, t.Image, confidence) {
						hits[i] = append(hits[i], Location{Rect: m.Rect.Add(origin), Score: m.Score, Template: t.Name})
					}
				}
			}
			d := Devices{Leds: hits[0], Pumps: hits[1], Converters: hits[2]}
			if !d.Empty() {
				found = true
				l.logger.Info("devices found",
					"leds", len(d.Leds),
					"pumps", len(d.Pumps),
					"converters", len(d.Converters),
					"confidence", confidence,
				)
				return d
			}
		}

		if !l.sleep(ctx, PollInterval) {
			return Devices{}
		}
	}

	l.logger.Warn("no devices found before timeout", "timeout", timeout)
	return Devices{}
}

// discoveryRegion returns the title's rectangle, or an empty rectangle
// (whole screen) when the title cannot be found in one attempt.
func (l *Locator) discoveryRegion(keys DeviceKeys) image.Rectangle {
	if keys.Title == "" {
		return image.Rectangle{}
	}
	templates := l.templates.Resolve(keys.Title)
	if len(templates) == 0 {
		l.logger.Warn("discovery title has no images, searching whole screen", "key", keys.Title)
		return image.Rectangle{}
	}
	confidence := keys.TitleConfidence
	if confidence <= 0 {
		confidence = DefaultTitleConfidence
	}

	hit, ok, err := l.matchOnce(templates[0], confidence, image.Rectangle{})
	switch {
	case err != nil:
		l.logger.Error("locating discovery title failed, searching whole screen", "error", err)
		return image.Rectangle{}
	case !ok:
		l.logger.Warn("discovery title not visible, searching whole screen", "key", keys.Title)
		return image.Rectangle{}
	}
	l.logger.Info("searching devices inside discovery window", "region", hit.Rect.String())
	return hit.Rect
}

func (l *Locator) resolveClass(key string) []vision.Template {
	if key == "" {
		return nil
	}
	return l.templates.Resolve(key)
}
