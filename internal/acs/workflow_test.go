package acs

import (
	"context"
	"errors"
	"image"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/locator"
)

// fakePrimitives records calls; outcomes are scripted per key.
type fakePrimitives struct {
	calls    []string
	outcomes map[string]locator.Outcome
	typeOK   bool
	clickOK  bool
	stopped  bool
	devices  locator.Devices
	gotKeys  locator.DeviceKeys
}

func newFakePrimitives() *fakePrimitives {
	return &fakePrimitives{outcomes: map[string]locator.Outcome{}, typeOK: true, clickOK: true}
}

func (f *fakePrimitives) Stopped() bool { return f.stopped }

func (f *fakePrimitives) Pause(context.Context, time.Duration) bool {
	f.calls = append(f.calls, "pause")
	return true
}

func (f *fakePrimitives) Locate(context.Context, string, locator.SearchOptions) (locator.Location, bool) {
	return locator.Location{}, false
}

func (f *fakePrimitives) WaitForImage(context.Context, string, locator.SearchOptions) bool {
	return false
}

func (f *fakePrimitives) FindAndClick(_ context.Context, key string, _ locator.ClickOptions) locator.Outcome {
	f.calls = append(f.calls, "click:"+key)
	if o, ok := f.outcomes[key]; ok {
		return o
	}
	return locator.Clicked
}

func (f *fakePrimitives) ClickAt(_ context.Context, p image.Point, _ string, double bool) bool {
	kind := "at"
	if double {
		kind = "double"
	}
	f.calls = append(f.calls, kind+":"+p.String())
	return f.clickOK
}

func (f *fakePrimitives) TypeText(_ context.Context, text string, opts locator.TypeOptions) bool {
	f.calls = append(f.calls, "type:"+opts.Key+"="+text)
	return f.typeOK
}

func (f *fakePrimitives) PressKey(context.Context, string, ...string) bool { return true }

func (f *fakePrimitives) DragSlider(context.Context, string, int, int, time.Duration) bool {
	return true
}

func (f *fakePrimitives) IsSliderAlreadyMoved(context.Context, string, time.Duration, float64) bool {
	return false
}

func (f *fakePrimitives) LocateDevices(_ context.Context, keys locator.DeviceKeys, _ time.Duration) locator.Devices {
	f.gotKeys = keys
	return f.devices
}

type fakeSettings struct{ devices config.DevicesConfig }

func (s fakeSettings) Devices() config.DevicesConfig { return s.devices }

type fakeWindow struct {
	origin      image.Point
	err         error
	activateErr error
	activated   int
}

func (w *fakeWindow) Origin() (image.Point, error) { return w.origin, w.err }

func (w *fakeWindow) Activate() error {
	w.activated++
	return w.activateErr
}

func newTestWorkflow(p *fakePrimitives, win Window) *Workflow {
	return NewWorkflow(p, fakeSettings{devices: config.Default().Devices}, win, nil)
}

func TestSelectDeviceType(t *testing.T) {
	tests := []struct {
		name      string
		typ       string
		outcomes  map[string]locator.Outcome
		wantErr   error
		wantCalls []string
	}{
		{
			name:      "selected",
			typ:       TypeTricolorLed,
			wantCalls: []string{"click:device_type_field", "click:tricolor_led_type_btn"},
		},
		{
			name:    "unknown type clicks nothing",
			typ:     "Laser",
			wantErr: ErrUnknownDeviceType,
		},
		{
			name:      "field missing",
			typ:       TypeTricolorLed,
			outcomes:  map[string]locator.Outcome{"device_type_field": locator.NotFound},
			wantErr:   ErrTemplateNotFound,
			wantCalls: []string{"click:device_type_field"},
		},
		{
			name:      "stopped at entry",
			typ:       TypeDmx2VfdConverter,
			outcomes:  map[string]locator.Outcome{"dmx2vfd_converter_type_btn": locator.Stopped},
			wantErr:   ErrStopped,
			wantCalls: []string{"click:device_type_field", "click:dmx2vfd_converter_type_btn"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePrimitives()
			if tt.outcomes != nil {
				p.outcomes = tt.outcomes
			}
			w := newTestWorkflow(p, nil)

			msg, err := w.SelectDeviceType(context.Background(), tt.typ)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SelectDeviceType() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !strings.Contains(msg, tt.typ) {
				t.Errorf("message = %q", msg)
			}
			if !slices.Equal(p.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", p.calls, tt.wantCalls)
			}
		})
	}
}

func TestSelectDevicePower(t *testing.T) {
	for _, power := range []string{"6", "12", "18", "36", "60", "100", "120", "140", "150", "160", "200", "Unspecified"} {
		p := newFakePrimitives()
		w := newTestWorkflow(p, nil)
		if _, err := w.SelectDevicePower(context.Background(), power); err != nil {
			t.Errorf("SelectDevicePower(%q) error = %v", power, err)
		}
		want := strings.ToLower(power) + "w_power_btn"
		if power == "Unspecified" {
			want = "unspecified_power_btn"
		}
		if p.calls[1] != "click:"+want {
			t.Errorf("SelectDevicePower(%q) clicked %v", power, p.calls)
		}
	}

	w := newTestWorkflow(newFakePrimitives(), nil)
	if _, err := w.SelectDevicePower(context.Background(), "7"); !errors.Is(err, ErrUnknownDevicePower) {
		t.Errorf("SelectDevicePower(7) error = %v", err)
	}
}

func TestSelectDeviceAndWrite(t *testing.T) {
	loc := locator.Location{Rect: image.Rect(100, 200, 140, 220)}

	t.Run("writes address", func(t *testing.T) {
		p := newFakePrimitives()
		w := newTestWorkflow(p, nil)

		msg, err := w.SelectDeviceAndWrite(context.Background(), "LED", loc, "17")
		if err != nil {
			t.Fatalf("SelectDeviceAndWrite() error = %v", err)
		}
		want := []string{
			"double:(120,210)",
			"pause",
			"type:dmx_slave_address_field=17",
			"click:set_dmx_slave_address_btn",
		}
		if !slices.Equal(p.calls, want) {
			t.Errorf("calls = %v, want %v", p.calls, want)
		}
		if !strings.Contains(msg, "LED") || !strings.Contains(msg, "17") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("field not found", func(t *testing.T) {
		p := newFakePrimitives()
		p.typeOK = false
		w := newTestWorkflow(p, nil)

		_, err := w.SelectDeviceAndWrite(context.Background(), "Pump", loc, "3")
		if !errors.Is(err, ErrTemplateNotFound) || !strings.Contains(err.Error(), "Pump") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("submit not found", func(t *testing.T) {
		p := newFakePrimitives()
		p.outcomes["set_dmx_slave_address_btn"] = locator.NotFound
		w := newTestWorkflow(p, nil)

		if _, err := w.SelectDeviceAndWrite(context.Background(), "Pump", loc, "3"); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("stopped before start", func(t *testing.T) {
		p := newFakePrimitives()
		p.stopped = true
		w := newTestWorkflow(p, nil)

		if _, err := w.SelectDeviceAndWrite(context.Background(), "Pump", loc, "3"); !errors.Is(err, ErrStopped) {
			t.Errorf("error = %v", err)
		}
		if len(p.calls) != 0 {
			t.Errorf("calls = %v, want none", p.calls)
		}
	})
}

func TestClickConfiguration(t *testing.T) {
	p := newFakePrimitives()
	win := &fakeWindow{origin: image.Pt(50, 40), activateErr: errors.New("no focus")}
	w := newTestWorkflow(p, win)

	if err := w.ClickConfiguration(context.Background(), 520, 220); err != nil {
		t.Fatalf("ClickConfiguration() error = %v", err)
	}
	if !slices.Equal(p.calls, []string{"at:(570,260)"}) {
		t.Errorf("calls = %v", p.calls)
	}
	if win.activated != 1 {
		t.Errorf("activated = %d", win.activated)
	}

	win.err = errors.New("window gone")
	if err := w.ClickConfiguration(context.Background(), 1, 1); err == nil {
		t.Error("ClickConfiguration() without window: error = nil")
	}

	if err := newTestWorkflow(p, nil).ClickConfiguration(context.Background(), 1, 1); !errors.Is(err, ErrNoWindow) {
		t.Errorf("nil window error = %v", err)
	}
}

func TestDiscoverDevicesUsesConfiguredKeys(t *testing.T) {
	p := newFakePrimitives()
	p.devices = locator.Devices{Leds: []locator.Location{{}}}
	w := newTestWorkflow(p, nil)

	d := w.DiscoverDevices(context.Background(), 0)
	if len(d.Leds) != 1 {
		t.Errorf("Leds = %d", len(d.Leds))
	}
	if p.gotKeys.Title != "device_discovery_title" || p.gotKeys.Pump != "afvarionaut_pump_item" {
		t.Errorf("keys = %+v", p.gotKeys)
	}
}

func TestSelectionNormalise(t *testing.T) {
	tests := []struct {
		in     Selection
		want   Selection
		wantOK bool
	}{
		{Selection{TypeAFVarionautPump, "140"}, Selection{TypeAFVarionautPump, "140"}, true},
		{Selection{TypeTricolorLed, "140"}, Selection{TypeTricolorLed, "18"}, true},
		{Selection{TypeDmx2VfdConverter, ""}, Selection{TypeDmx2VfdConverter, "Unspecified"}, true},
		{Selection{"Laser", "5"}, Selection{"Laser", "5"}, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Normalise()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%+v.Normalise() = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	for _, typ := range DeviceTypes() {
		if len(PowerOptions(typ)) == 0 {
			t.Errorf("no power options for %s", typ)
		}
	}
}
