//go:build windows

package main

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

const instanceMutexName = "Global\\SwitchTraySingleInstance"

// ensureSingleInstance holds a named mutex for the process lifetime. A second
// launch finds the mutex taken, tells the user where the running instance
// lives and exits before any tray or device setup happens.
func ensureSingleInstance() {
	name, err := windows.UTF16PtrFromString(instanceMutexName)
	if err != nil {
		return
	}
	if _, err := windows.CreateMutex(nil, false, name); err == windows.ERROR_ALREADY_EXISTS {
		alertAlreadyRunning()
		os.Exit(0)
	}
}

func alertAlreadyRunning() {
	const mbIconInformation = 0x00000040
	text, _ := windows.UTF16PtrFromString("SwitchTray is already running. Check your system tray.")
	caption, _ := windows.UTF16PtrFromString("SwitchTray")
	procMessageBox.Call(0, uintptr(unsafe.Pointer(text)), uintptr(unsafe.Pointer(caption)), mbIconInformation)
}
