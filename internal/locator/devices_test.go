package locator

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/vision"
)

func TestClassConfidence(t *testing.T) {
	tests := []struct {
		configured float64
		want       float64
	}{
		{0.9, 0.75},
		{1.0, 0.75},
		{0.8, 0.72},
		{0.7, 0.63},
		{0.5, 0.6},
		{0, 0.6},
	}
	for _, tt := range tests {
		got := ClassConfidence(tt.configured)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ClassConfidence(%v) = %v, want %v", tt.configured, got, tt.want)
		}
	}
}

func deviceScreen() (screen, led, pump *image.RGBA) {
	screen = mosaic(192, 128, 8, 21)
	led = mosaic(32, 32, 4, 22)
	pump = mosaic(32, 32, 4, 23)
	paste(screen, led, image.Pt(16, 16))
	paste(screen, led, image.Pt(16, 72))
	paste(screen, pump, image.Pt(120, 40))
	return screen, led, pump
}

func TestLocateDevices_WholeScreen(t *testing.T) {
	screen, led, pump := deviceScreen()
	h := newHarness(t, screen, fakeTemplates{
		"tricolor_led_item":     {tmpl("tricolor_led_item", "led.png", led)},
		"afvarionaut_pump_item": {tmpl("afvarionaut_pump_item", "pump.png", pump)},
		"dmx2vfd_item":          {tmpl("dmx2vfd_item", "vfd.png", mosaic(32, 32, 2, 24))},
	})

	got := h.loc.LocateDevices(context.Background(), DeviceKeys{
		Title:     "device_discovery_title",
		Led:       "tricolor_led_item",
		Pump:      "afvarionaut_pump_item",
		Converter: "dmx2vfd_item",
	}, 10*time.Second)

	if len(got.Leds) != 2 || len(got.Pumps) != 1 || len(got.Converters) != 0 {
		t.Fatalf("found %d leds, %d pumps, %d converters, want 2, 1, 0",
			len(got.Leds), len(got.Pumps), len(got.Converters))
	}
	if c := got.Pumps[0].Center(); c != image.Pt(136, 56) {
		t.Errorf("pump center = %v, want (136,56)", c)
	}
	for _, r := range h.screen.regions {
		if r != screen.Bounds() {
			t.Errorf("capture region = %v, want whole screen", r)
		}
	}
}

func TestLocateDevices_TitleRegion(t *testing.T) {
	screen, led, _ := deviceScreen()
	title := crop(screen, image.Rect(8, 8, 56, 112))
	h := newHarness(t, screen, fakeTemplates{
		"device_discovery_title": {tmpl("device_discovery_title", "title.png", title)},
		"tricolor_led_item":      {tmpl("tricolor_led_item", "led.png", led)},
	})

	got := h.loc.LocateDevices(context.Background(), DeviceKeys{
		Title: "device_discovery_title",
		Led:   "tricolor_led_item",
	}, 10*time.Second)

	if len(got.Leds) != 2 {
		t.Fatalf("found %d leds, want 2", len(got.Leds))
	}
	last := h.screen.regions[len(h.screen.regions)-1]
	if last != image.Rect(8, 8, 56, 112) {
		t.Errorf("device search region = %v, want title rect", last)
	}
	if c := got.Leds[0].Center(); c.X != 32 {
		t.Errorf("led center = %v, want x=32 in screen coordinates", c)
	}
}

func TestLocateDevices_Timeout(t *testing.T) {
	h := newHarness(t, mosaic(96, 64, 8, 25), fakeTemplates{
		"tricolor_led_item": {tmpl("tricolor_led_item", "led.png", mosaic(32, 32, 2, 26))},
	})

	got := h.loc.LocateDevices(context.Background(), DeviceKeys{Led: "tricolor_led_item"}, 2*time.Second)

	if !got.Empty() {
		t.Errorf("LocateDevices() = %+v, want empty", got)
	}
	if h.metrics.passes != 4 {
		t.Errorf("passes = %d, want 4", h.metrics.passes)
	}
}

func TestLocateDevices_UsesClampedConfidence(t *testing.T) {
	// A white item over a flat 204 screen scores 0.8: above the 0.75 ceiling
	// even though the configured confidence is higher.
	h := newHarness(t, flat(64, 48, 204), fakeTemplates{
		"tricolor_led_item": {tmpl("tricolor_led_item", "led.png", flat(16, 16, 255))},
	})
	h.settings.setConfidence(0.95)

	got := h.loc.LocateDevices(context.Background(), DeviceKeys{Led: "tricolor_led_item"}, time.Second)

	if len(got.Leds) == 0 {
		t.Error("LocateDevices() found no leds at clamped confidence")
	}
}

func TestDeviceKeysFrom(t *testing.T) {
	keys := DeviceKeysFrom(config.DevicesConfig{
		TitleKey:        "title",
		TitleConfidence: 0.8,
		LedKey:          "led",
		PumpKey:         "pump",
		ConverterKey:    "vfd",
	})
	want := DeviceKeys{Title: "title", TitleConfidence: 0.8, Led: "led", Pump: "pump", Converter: "vfd"}
	if keys != want {
		t.Errorf("DeviceKeysFrom() = %+v, want %+v", keys, want)
	}
}

var _ Templates = fakeTemplates(map[string][]vision.Template{})
