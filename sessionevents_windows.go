//go:build windows

package main

import (
	"log"
	goruntime "runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"switchtray/internal/lifecycle"
)

const (
	wmQueryEndSession  = 0x0011
	wmEndSession       = 0x0016
	wmWTSSessionChange = 0x02B1

	wtsConsoleDisconnect = 0x2
	wtsSessionLock       = 0x7
	wtsSessionLogoff     = 0x8

	notifyForThisSession = 0
)

// hwndMessage is the HWND_MESSAGE pseudo-parent (-3) for message-only windows.
var hwndMessage = ^uintptr(2)

var (
	user32   = syscall.NewLazyDLL("user32.dll")
	wtsapi32 = syscall.NewLazyDLL("wtsapi32.dll")

	procRegisterClassEx            = user32.NewProc("RegisterClassExW")
	procCreateWindowEx             = user32.NewProc("CreateWindowExW")
	procDefWindowProc              = user32.NewProc("DefWindowProcW")
	procGetMessage                 = user32.NewProc("GetMessageW")
	procTranslateMessage           = user32.NewProc("TranslateMessage")
	procDispatchMessage            = user32.NewProc("DispatchMessageW")
	procShutdownBlockReasonCreate  = user32.NewProc("ShutdownBlockReasonCreate")
	procShutdownBlockReasonDestroy = user32.NewProc("ShutdownBlockReasonDestroy")
	procMessageBox                 = user32.NewProc("MessageBoxW")
	procWTSRegisterSession         = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procWTSUnRegisterSession       = wtsapi32.NewProc("WTSUnRegisterSessionNotification")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type winMsg struct {
	HWnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// shutdownVeto delays a cancelable host shutdown via the shutdown block
// reason API while the forced switch-off runs.
type shutdownVeto struct {
	hwnd windows.Handle
}

func (v *shutdownVeto) Block(reason string) {
	r, err := windows.UTF16PtrFromString(reason)
	if err != nil {
		return
	}
	procShutdownBlockReasonCreate.Call(uintptr(v.hwnd), uintptr(unsafe.Pointer(r)))
}

func (v *shutdownVeto) Release() {
	procShutdownBlockReasonDestroy.Call(uintptr(v.hwnd))
}

// watchSessionEvents creates a message-only window whose wndproc feeds host
// session events to the coordinator, and registers for session-change
// notifications. The returned func revokes the session-change registration.
//
// The wndproc handles WM_QUERYENDSESSION synchronously: the coordinator's
// forced switch-off is deadline-bounded, so the handler returns within the
// configured shutdown timeout and answers TRUE to let the session end.
func watchSessionEvents(coord *lifecycle.Coordinator) func() {
	ready := make(chan windows.Handle, 1)

	go func() {
		goruntime.LockOSThread()

		var inst windows.Handle
		if err := windows.GetModuleHandleEx(0, nil, &inst); err != nil {
			log.Printf("[host] GetModuleHandle failed: %v", err)
			ready <- 0
			return
		}
		className, _ := windows.UTF16PtrFromString("SwitchTraySessionEvents")

		wndProc := syscall.NewCallback(func(hwnd windows.Handle, msgID uint32, wparam, lparam uintptr) uintptr {
			switch msgID {
			case wmQueryEndSession:
				coord.SessionEnding(&shutdownVeto{hwnd: hwnd})
				return 1
			case wmEndSession:
				if wparam != 0 {
					// The session is ending for real; no veto is possible here.
					coord.SessionEnding(nil)
				}
				return 0
			case wmWTSSessionChange:
				coord.SessionSwitch(switchReason(wparam))
				return 0
			}
			ret, _, _ := procDefWindowProc.Call(uintptr(hwnd), uintptr(msgID), wparam, lparam)
			return ret
		})

		wc := wndClassEx{
			WndProc:   wndProc,
			Instance:  inst,
			ClassName: className,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		if atom, _, err := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
			log.Printf("[host] RegisterClassEx failed: %v", err)
			ready <- 0
			return
		}

		hwnd, _, err := procCreateWindowEx.Call(
			0,
			uintptr(unsafe.Pointer(className)),
			uintptr(unsafe.Pointer(className)),
			0, 0, 0, 0, 0,
			hwndMessage,
			0,
			uintptr(inst),
			0,
		)
		if hwnd == 0 {
			log.Printf("[host] CreateWindowEx failed: %v", err)
			ready <- 0
			return
		}

		if r, _, err := procWTSRegisterSession.Call(hwnd, notifyForThisSession); r == 0 {
			log.Printf("[host] WTSRegisterSessionNotification failed: %v", err)
		}
		ready <- windows.Handle(hwnd)

		var m winMsg
		for {
			r, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if r == 0 || int32(r) == -1 {
				return
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
			procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
		}
	}()

	hwnd := <-ready
	return func() {
		if hwnd != 0 {
			procWTSUnRegisterSession.Call(uintptr(hwnd))
		}
	}
}

func switchReason(wparam uintptr) lifecycle.SwitchReason {
	switch wparam {
	case wtsConsoleDisconnect:
		return lifecycle.SwitchConsoleDisconnect
	case wtsSessionLogoff:
		return lifecycle.SwitchLogoff
	case wtsSessionLock:
		return lifecycle.SwitchLock
	default:
		return lifecycle.SwitchUnknown
	}
}
