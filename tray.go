package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	goruntime "runtime"

	"github.com/getlantern/systray"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	xdraw "golang.org/x/image/draw"
)

var (
	iconOn  = trayIcon(color.NRGBA{R: 255, G: 179, B: 0, A: 255})
	iconOff = trayIcon(color.NRGBA{R: 110, G: 110, B: 120, A: 255})
)

func (a *App) setupTray() {
	go func() {
		goruntime.LockOSThread()
		systray.Run(a.onTrayReady, a.onTrayExit)
	}()
}

func (a *App) onTrayReady() {
	systray.SetIcon(iconOff)
	systray.SetTitle("SwitchTray")
	systray.SetTooltip(truncateTooltip("SwitchTray: connecting..."))

	mShow := systray.AddMenuItem("Show Window", "Show SwitchTray window")
	systray.AddSeparator()
	mOn := systray.AddMenuItem("Turn On", "Turn the switch on")
	mOff := systray.AddMenuItem("Turn Off", "Turn the switch off")
	mRefresh := systray.AddMenuItem("Refresh State", "Re-read the switch's power state")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Turn the switch off and quit")

	a.trayReady.Store(true)

	go func() {
		for {
			select {
			case <-mShow.ClickedCh:
				runtime.WindowShow(a.ctx)
				runtime.WindowSetAlwaysOnTop(a.ctx, true)
				runtime.WindowSetAlwaysOnTop(a.ctx, false)
			case <-mOn.ClickedCh:
				go func() { _ = a.TurnOn() }()
			case <-mOff.ClickedCh:
				go func() { _ = a.TurnOff() }()
			case <-mRefresh.ClickedCh:
				go func() { _, _ = a.RefreshState() }()
			case <-mQuit.ClickedCh:
				a.Quit()
			}
		}
	}()
}

func (a *App) onTrayExit() {}

func (a *App) setTrayState(on bool, tooltip string) {
	if !a.trayReady.Load() {
		return
	}
	if on {
		systray.SetIcon(iconOn)
	} else {
		systray.SetIcon(iconOff)
	}
	systray.SetTooltip(truncateTooltip(tooltip))
}

func (a *App) setTrayTooltip(tooltip string) {
	if !a.trayReady.Load() {
		return
	}
	systray.SetTooltip(truncateTooltip(tooltip))
}

func (a *App) teardownTray() {
	if a.trayReady.CompareAndSwap(true, false) {
		systray.Quit()
	}
}

// trayIcon renders a filled disc at 256px, downscales to 64px and wraps the
// PNG in a single-image ICO container, which Windows accepts and other
// platforms read as plain PNG past the header.
func trayIcon(fill color.NRGBA) []byte {
	const srcSize = 256
	src := image.NewNRGBA(image.Rect(0, 0, srcSize, srcSize))
	cx, cy, r := srcSize/2, srcSize/2, srcSize/2-16
	for y := 0; y < srcSize; y++ {
		for x := 0; x < srcSize; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				src.SetNRGBA(x, y, fill)
			}
		}
	}

	const size = 64
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	_ = png.Encode(&buf, dst)
	pngData := buf.Bytes()

	ico := make([]byte, 0, 6+16+len(pngData))
	ico = append(ico, 0, 0)
	ico = append(ico, 1, 0)
	ico = append(ico, 1, 0)
	ico = append(ico, byte(size))
	ico = append(ico, byte(size))
	ico = append(ico, 0)
	ico = append(ico, 0)
	ico = append(ico, 1, 0)
	ico = append(ico, 32, 0)
	dataSize := uint32(len(pngData))
	ico = append(ico, byte(dataSize), byte(dataSize>>8), byte(dataSize>>16), byte(dataSize>>24))
	offset := uint32(6 + 16)
	ico = append(ico, byte(offset), byte(offset>>8), byte(offset>>16), byte(offset>>24))
	ico = append(ico, pngData...)

	return ico
}
