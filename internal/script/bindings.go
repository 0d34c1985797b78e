package script

import (
	"context"
	"fmt"
	"image"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/locator"
)

// Automation is the desktop surface exposed to steps as the acs table.
// *acs.Workflow implements it.
type Automation interface {
	acs.Primitives
	DiscoverDevices(ctx context.Context, timeout time.Duration) locator.Devices
	SelectDeviceType(ctx context.Context, name string) (string, error)
	SelectDevicePower(ctx context.Context, value string) (string, error)
	SelectDevice(ctx context.Context, loc locator.Location) error
	SelectDeviceAndWrite(ctx context.Context, kind string, loc locator.Location, address string) (string, error)
	ClickConfiguration(ctx context.Context, x, y int) error
}

// Dataset is the work-list cursor exposed to steps as the dataset table.
// *dataset.Cursor implements it.
type Dataset interface {
	Current() (dataset.Row, bool)
	Advance() bool
	Status() string
	Index() int
	Len() int
	JumpTo(field dataset.Field, value string) bool
}

func automationTable(L *lua.LState, a Automation) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"find_and_click": func(L *lua.LState) int {
			opts := locator.ClickOptions{
				Timeout:    optTimeout(L, 2),
				Button:     L.OptString(3, "left"),
				Double:     L.OptBool(4, false),
				Confidence: float64(L.OptNumber(5, 0)),
			}
			outcome := a.FindAndClick(L.Context(), L.CheckString(1), opts)
			L.Push(lua.LBool(outcome == locator.Clicked))
			L.Push(lua.LString(outcome.String()))
			return 2
		},
		"wait_for_image": func(L *lua.LState) int {
			L.Push(lua.LBool(a.WaitForImage(L.Context(), L.CheckString(1), searchOptions(L))))
			return 1
		},
		"find": func(L *lua.LState) int {
			_, ok := a.Locate(L.Context(), L.CheckString(1), searchOptions(L))
			L.Push(lua.LBool(ok))
			return 1
		},
		"locate": func(L *lua.LState) int {
			loc, ok := a.Locate(L.Context(), L.CheckString(1), searchOptions(L))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(locationTable(L, loc))
			return 1
		},
		"type_text": func(L *lua.LState) int {
			opts := locator.TypeOptions{
				Key:       L.OptString(2, ""),
				Timeout:   optSeconds(L, 3, 0),
				SelectAll: L.OptBool(4, false),
			}
			L.Push(lua.LBool(a.TypeText(L.Context(), L.CheckString(1), opts)))
			return 1
		},
		"press_key": func(L *lua.LState) int {
			var mods []string
			for i := 2; i <= L.GetTop(); i++ {
				mods = append(mods, L.CheckString(i))
			}
			L.Push(lua.LBool(a.PressKey(L.Context(), L.CheckString(1), mods...)))
			return 1
		},
		"drag_slider": func(L *lua.LState) int {
			ok := a.DragSlider(L.Context(), L.CheckString(1), L.CheckInt(2), L.CheckInt(3), optSeconds(L, 4, 1))
			L.Push(lua.LBool(ok))
			return 1
		},
		"is_slider_already_moved": func(L *lua.LState) int {
			moved := a.IsSliderAlreadyMoved(L.Context(), L.CheckString(1),
				optSeconds(L, 2, locator.SliderMovedTimeout.Seconds()),
				float64(L.OptNumber(3, 0)))
			L.Push(lua.LBool(moved))
			return 1
		},
		"click_at": func(L *lua.LState) int {
			p := image.Pt(L.CheckInt(1), L.CheckInt(2))
			L.Push(lua.LBool(a.ClickAt(L.Context(), p, L.OptString(3, "left"), L.OptBool(4, false))))
			return 1
		},
		"sleep": func(L *lua.LState) int {
			L.Push(lua.LBool(a.Pause(L.Context(), optSeconds(L, 1, 0))))
			return 1
		},
		"stopped": func(L *lua.LState) int {
			L.Push(lua.LBool(a.Stopped()))
			return 1
		},
		"locate_devices": func(L *lua.LState) int {
			d := a.DiscoverDevices(L.Context(), optSeconds(L, 1, 0))
			L.Push(locationList(L, d.Leds))
			L.Push(locationList(L, d.Pumps))
			L.Push(locationList(L, d.Converters))
			return 3
		},
		"select_device": func(L *lua.LState) int {
			err := a.SelectDevice(L.Context(), tableLocation(L, 1))
			return pushResult(L, "", err)
		},
		"select_device_type": func(L *lua.LState) int {
			msg, err := a.SelectDeviceType(L.Context(), L.CheckString(1))
			return pushResult(L, msg, err)
		},
		"select_device_power": func(L *lua.LState) int {
			msg, err := a.SelectDevicePower(L.Context(), lua.LVAsString(L.CheckAny(1)))
			return pushResult(L, msg, err)
		},
		"select_device_and_write": func(L *lua.LState) int {
			kind := L.CheckString(1)
			loc := tableLocation(L, 2)
			address := lua.LVAsString(L.CheckAny(3))
			msg, err := a.SelectDeviceAndWrite(L.Context(), kind, loc, address)
			return pushResult(L, msg, err)
		},
		"click_configuration": func(L *lua.LState) int {
			err := a.ClickConfiguration(L.Context(), L.CheckInt(1), L.CheckInt(2))
			L.Push(lua.LBool(err == nil))
			return 1
		},
	})
}

func datasetTable(L *lua.LState, d Dataset) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"current": func(L *lua.LState) int {
			row, ok := d.Current()
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			t := L.NewTable()
			t.RawSetString("no", lua.LString(row.No))
			t.RawSetString("pump", lua.LString(row.Pump))
			t.RawSetString("led", lua.LString(row.Led))
			t.RawSetString("dmx2vfd", lua.LString(row.Dmx2Vfd))
			L.Push(t)
			return 1
		},
		"advance": func(L *lua.LState) int {
			L.Push(lua.LBool(d.Advance()))
			return 1
		},
		"status": func(L *lua.LState) int {
			L.Push(lua.LString(d.Status()))
			return 1
		},
		"index": func(L *lua.LState) int {
			L.Push(lua.LNumber(d.Index()))
			return 1
		},
		"len": func(L *lua.LState) int {
			L.Push(lua.LNumber(d.Len()))
			return 1
		},
		"jump_to": func(L *lua.LState) int {
			field, err := dataset.ParseField(L.CheckString(1))
			if err != nil {
				L.ArgError(1, err.Error())
				return 0
			}
			L.Push(lua.LBool(d.JumpTo(field, lua.LVAsString(L.CheckAny(2)))))
			return 1
		},
	})
}

// pushResult returns ok, message to Lua. On failure the message is the
// error text.
func pushResult(L *lua.LState, msg string, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LString(msg))
	return 2
}

// searchOptions reads (key, timeout?, confidence?, x?, y?, w?, h?).
func searchOptions(L *lua.LState) locator.SearchOptions {
	opts := locator.SearchOptions{
		Timeout:    optTimeout(L, 2),
		Confidence: float64(L.OptNumber(3, 0)),
	}
	if L.Get(4) != lua.LNil {
		x, y := L.CheckInt(4), L.CheckInt(5)
		w, h := L.CheckInt(6), L.CheckInt(7)
		if w <= 0 || h <= 0 {
			L.ArgError(6, "region must have a positive size")
		}
		opts.Region = image.Rect(x, y, x+w, y+h)
	}
	return opts
}

// optTimeout is optSeconds for searches: nil means the default timeout and
// an explicit zero gives up without searching.
func optTimeout(L *lua.LState, n int) time.Duration {
	if L.Get(n) == lua.LNil {
		return 0
	}
	d := time.Duration(float64(L.CheckNumber(n)) * float64(time.Second))
	if d <= 0 {
		return locator.NoWait
	}
	return d
}

func optSeconds(L *lua.LState, n int, def float64) time.Duration {
	return time.Duration(float64(L.OptNumber(n, lua.LNumber(def))) * float64(time.Second))
}

func locationTable(L *lua.LState, loc locator.Location) *lua.LTable {
	c := loc.Center()
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(loc.Rect.Min.X))
	t.RawSetString("y", lua.LNumber(loc.Rect.Min.Y))
	t.RawSetString("w", lua.LNumber(loc.Rect.Dx()))
	t.RawSetString("h", lua.LNumber(loc.Rect.Dy()))
	t.RawSetString("cx", lua.LNumber(c.X))
	t.RawSetString("cy", lua.LNumber(c.Y))
	t.RawSetString("score", lua.LNumber(loc.Score))
	t.RawSetString("template", lua.LString(loc.Template))
	return t
}

func locationList(L *lua.LState, locs []locator.Location) *lua.LTable {
	t := L.CreateTable(len(locs), 0)
	for _, loc := range locs {
		t.Append(locationTable(L, loc))
	}
	return t
}

func tableLocation(L *lua.LState, n int) locator.Location {
	t := L.CheckTable(n)
	num := func(key string) int {
		v, ok := t.RawGetString(key).(lua.LNumber)
		if !ok {
			L.ArgError(n, fmt.Sprintf("location field %q must be a number", key))
		}
		return int(v)
	}
	x, y := num("x"), num("y")
	return locator.Location{Rect: image.Rect(x, y, x+num("w"), y+num("h"))}
}

// toLua converts an extra context value. Unsupported types are skipped.
func toLua(L *lua.LState, v any) (lua.LValue, bool) {
	switch v := v.(type) {
	case nil:
		return lua.LNil, true
	case string:
		return lua.LString(v), true
	case bool:
		return lua.LBool(v), true
	case int:
		return lua.LNumber(v), true
	case int64:
		return lua.LNumber(v), true
	case float64:
		return lua.LNumber(v), true
	case []string:
		t := L.CreateTable(len(v), 0)
		for _, s := range v {
			t.Append(lua.LString(s))
		}
		return t, true
	case fmt.Stringer:
		return lua.LString(v.String()), true
	}
	return nil, false
}
